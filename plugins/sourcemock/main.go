// Command sourcemock is a source plugin serving synthetic cost data over the
// stdin/stdout JSON-RPC protocol.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/schema"
	"github.com/costwatch/costwatch-dashboard/source"
	"github.com/costwatch/costwatch-dashboard/source/mocksource"
)

type rpcRequest struct {
	Method  string          `json:"method"`
	Config  map[string]any  `json:"config"`
	Payload json.RawMessage `json:"payload"`
}

type rpcError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

func main() {
	dec := json.NewDecoder(os.Stdin)
	enc := json.NewEncoder(os.Stdout)

	var provider source.Provider
	for {
		var req rpcRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(errorResponse(err))
			return
		}

		// Config is sent with every call; the first one builds the provider.
		if provider == nil {
			p, err := mocksource.New(req.Config)
			if err != nil {
				_ = enc.Encode(errorResponse(err))
				continue
			}
			provider = p
		}

		result, err := dispatch(context.Background(), provider, req)
		if err != nil {
			_ = enc.Encode(errorResponse(err))
			continue
		}
		_ = enc.Encode(rpcResponse{Result: result})
	}
}

func dispatch(ctx context.Context, p source.Provider, req rpcRequest) (any, error) {
	switch req.Method {
	case "source.usage":
		return p.Usage(ctx)
	case "source.percentiles":
		return p.Percentiles(ctx)
	case "source.alert_windows":
		return p.AlertWindows(ctx)
	case "source.anomalies":
		return p.Anomalies(ctx)
	case "source.alert_rules":
		return p.AlertRules(ctx)
	case "source.alert_rules.upsert":
		var rule schema.AlertRule
		if err := json.Unmarshal(req.Payload, &rule); err != nil {
			return nil, cwerr.New(cwerr.CodeBadRequest, err.Error(), nil)
		}
		return p.UpsertAlertRule(ctx, rule)
	default:
		return nil, fmt.Errorf("unknown method %s", req.Method)
	}
}

func errorResponse(err error) rpcResponse {
	if ce, ok := cwerr.As(err); ok {
		return rpcResponse{Error: &rpcError{Code: ce.Code, Message: ce.Message}}
	}
	return rpcResponse{Error: &rpcError{Message: err.Error()}}
}
