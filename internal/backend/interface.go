package backend

import (
	"context"
	"slices"

	"nirmaan/internal/remote"
)

// Factory turns a resolved remote configuration into an endpoint.
type Factory interface {
	// CreateEndpoint returns an unconfigured endpoint when cfg lacks a URL
	// or key, never an error for that case.
	CreateEndpoint(ctx context.Context, cfg Config) (remote.Endpoint, error)
}

// BackendType names a remote implementation.
type BackendType string

const (
	SheetsBackend BackendType = "sheets"
	MySQLBackend  BackendType = "mysql"
	MemoryBackend BackendType = "memory"
)

var backendTypes = []BackendType{SheetsBackend, MySQLBackend, MemoryBackend}

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool { return slices.Contains(backendTypes, bt) }

// BackendTypeNames lists the accepted REMOTE_BACKEND values.
func BackendTypeNames() []string {
	out := make([]string, len(backendTypes))
	for i, t := range backendTypes {
		out[i] = string(t)
	}
	return out
}
