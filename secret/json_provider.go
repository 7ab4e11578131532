package secret

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/costwatch/costwatch-dashboard/cwerr"
)

// JsonProvider implements a secret provider backed by a JSON file.
// Nested values are returned as JSON text.
type JsonProvider struct {
	path    string
	persist bool

	mu    sync.RWMutex
	store map[string]any
}

// NewJsonProvider loads secrets from config["path"]. When config["persist"] is true,
// Put writes the whole store back to the file.
func NewJsonProvider(config map[string]any) (Provider, error) {
	path, _ := config["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("json secret provider requires 'path' in config")
	}
	persist, _ := config["persist"].(bool)

	store := make(map[string]any)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &store); err != nil {
			return nil, fmt.Errorf("failed to parse secret file %s: %w", path, err)
		}
	case os.IsNotExist(err) && persist:
		// Created on first Put.
	default:
		return nil, fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	return &JsonProvider{path: path, persist: persist, store: store}, nil
}

// Get returns the plaintext value for a logical key.
func (j *JsonProvider) Get(ctx context.Context, key string) (string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	val, ok := j.store[key]
	if !ok {
		return "", cwerr.New(cwerr.CodeNotFound, "secret not found: "+key, nil)
	}
	if str, ok := val.(string); ok {
		return str, nil
	}

	jsonBytes, err := json.Marshal(val)
	if err != nil {
		return "", fmt.Errorf("failed to marshal secret %s: %w", key, err)
	}
	return string(jsonBytes), nil
}

// Put stores a plaintext value at the logical key.
func (j *JsonProvider) Put(ctx context.Context, key, value string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.store[key] = value
	if !j.persist {
		return nil
	}

	data, err := json.MarshalIndent(j.store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode secret file: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write secret file %s: %w", j.path, err)
	}
	return nil
}

func init() {
	_ = RegisterProvider("json", NewJsonProvider)
}
