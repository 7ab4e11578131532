// Command secretmock is an in-memory secret plugin for tests.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
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

var store = map[string]string{}

func main() {
	dec := json.NewDecoder(os.Stdin)
	enc := json.NewEncoder(os.Stdout)

	for {
		var req rpcRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(rpcResponse{Error: &rpcError{Message: err.Error()}})
			return
		}

		var payload struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			_ = enc.Encode(rpcResponse{Error: &rpcError{Code: "bad_request", Message: err.Error()}})
			continue
		}

		switch req.Method {
		case "secret.put":
			store[payload.Key] = payload.Value
			_ = enc.Encode(rpcResponse{Result: map[string]string{"status": "ok"}})
		case "secret.get":
			val, ok := store[payload.Key]
			if !ok {
				_ = enc.Encode(rpcResponse{Error: &rpcError{Code: "not_found", Message: fmt.Sprintf("%s not found", payload.Key)}})
				continue
			}
			_ = enc.Encode(rpcResponse{Result: val})
		default:
			_ = enc.Encode(rpcResponse{Error: &rpcError{Message: fmt.Sprintf("unknown method %s", req.Method)}})
		}
	}
}
