package config

import (
	"context"
	"fmt"

	"nirmaan/internal/backend"
	"nirmaan/internal/storage"
)

// Keys holding the remote entered by hand on the device. They survive a
// ledger reset.
const (
	KeyManualBackend = "manual_remote_backend"
	KeyManualURL     = "manual_remote_url"
	KeyManualKey     = "manual_remote_key"
)

// SaveRemote persists a hand-entered remote endpoint.
func SaveRemote(ctx context.Context, kv storage.KV, rc backend.Config) error {
	if err := rc.Validate(); err != nil {
		return err
	}
	err := kv.PutMany(ctx, map[string][]byte{
		KeyManualBackend: []byte(rc.Type),
		KeyManualURL:     []byte(rc.URL),
		KeyManualKey:     []byte(rc.Key),
	})
	if err != nil {
		return fmt.Errorf("save remote: %w", err)
	}
	return nil
}

// LoadPersistedRemote reads the hand-entered remote, zero if none was saved.
func LoadPersistedRemote(ctx context.Context, kv storage.KV) (backend.Config, error) {
	var rc backend.Config
	for key, dst := range map[string]*string{KeyManualURL: &rc.URL, KeyManualKey: &rc.Key} {
		v, _, err := kv.Get(ctx, key)
		if err != nil {
			return backend.Config{}, fmt.Errorf("load %s: %w", key, err)
		}
		*dst = string(v)
	}
	v, _, err := kv.Get(ctx, KeyManualBackend)
	if err != nil {
		return backend.Config{}, fmt.Errorf("load %s: %w", KeyManualBackend, err)
	}
	rc.Type = backend.BackendType(v)
	return rc, nil
}

// ResolveRemote picks the endpoint sync should use. Deployment settings
// win when they are complete; otherwise the hand-entered values apply.
func (c *Config) ResolveRemote(ctx context.Context, kv storage.KV) (backend.Config, error) {
	if env := c.Remote(); env.Type != "" && env.Configured() {
		return env, nil
	}
	return LoadPersistedRemote(ctx, kv)
}
