package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/exec"
	"sync"

	"github.com/costwatch/costwatch-dashboard/cwerr"
)

// pluginRunner talks JSON-RPC to a local plugin binary over stdin/stdout. The process
// is started on first call and kept alive across calls.
type pluginRunner struct {
	path   string
	config map[string]any

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *json.Encoder
	dec   *json.Decoder
}

func newPluginRunner(path string, config map[string]any) *pluginRunner {
	if config == nil {
		config = map[string]any{}
	}
	return &pluginRunner{path: path, config: config}
}

type rpcRequest struct {
	Method  string         `json:"method"`
	Config  map[string]any `json:"config"`
	Payload any            `json:"payload"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (r *pluginRunner) start() error {
	// Keep plugin process alive across calls; don't tie its lifetime to the request context.
	cmd := exec.CommandContext(context.Background(), r.path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return cwerr.New(cwerr.CodeUnavailable, "plugin failed to start", err)
	}
	r.cmd = cmd
	r.stdin = stdin
	r.enc = json.NewEncoder(stdin)
	r.dec = json.NewDecoder(stdout)
	return nil
}

func (r *pluginRunner) call(ctx context.Context, method string, payload any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		if err := r.start(); err != nil {
			return err
		}
	}

	if err := r.enc.Encode(rpcRequest{Method: method, Config: r.config, Payload: payload}); err != nil {
		r.stop()
		return cwerr.New(cwerr.CodeUnavailable, "plugin write failed", err)
	}

	var resp rpcResponse
	if err := r.dec.Decode(&resp); err != nil {
		// The stream is out of sync; restart on the next call.
		r.stop()
		return cwerr.New(cwerr.CodeUnavailable, "plugin read failed", err)
	}
	if resp.Error != nil {
		if resp.Error.Code != "" {
			return cwerr.New(resp.Error.Code, resp.Error.Message, nil)
		}
		return errors.New(resp.Error.Message)
	}
	if out != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return err
		}
	}
	return nil
}

// stop closes stdin and reaps the process. Callers hold mu.
func (r *pluginRunner) stop() {
	if r.cmd == nil {
		return
	}
	_ = r.stdin.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	r.cmd, r.stdin, r.enc, r.dec = nil, nil, nil, nil
}

// Close terminates the plugin process if running.
func (r *pluginRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop()
	return nil
}
