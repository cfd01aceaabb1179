package backend

import (
	"fmt"
	"strings"

	"nirmaan/internal/remote/sheets"
	"nirmaan/internal/remote/sqlremote"
)

// Config names a remote endpoint. URL and Key mean different things per
// backend:
//
//	sheets  URL is a spreadsheet id or link, Key a service-account JSON or its path
//	mysql   URL is a DSN without password, Key the password
//	memory  URL is an optional JSON file shared between processes, Key is unused
type Config struct {
	Type BackendType
	URL  string
	Key  string
}

// Configured reports whether the endpoint has enough to connect. The
// memory backend needs nothing.
func (c Config) Configured() bool {
	if c.Type == MemoryBackend {
		return true
	}
	return c.Type != "" && strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Key) != ""
}

// Validate validates the backend configuration. An empty config is valid
// and means sync is disabled.
func (c Config) Validate() error {
	if c.Type == "" {
		return nil
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s (want one of %s)",
			c.Type, strings.Join(BackendTypeNames(), ", "))
	}
	if c.Type == MySQLBackend && c.URL != "" {
		if _, err := sqlremote.ParseDSN(c.URL, c.Key); err != nil {
			return err
		}
	}
	return nil
}

// ProbeAddress is the host:port connectivity checks dial for cfg, or ""
// when the backend has no network dependency.
func ProbeAddress(c Config) string {
	switch c.Type {
	case SheetsBackend:
		return sheets.Host
	case MySQLBackend:
		dsn, err := sqlremote.ParseDSN(c.URL, c.Key)
		if err != nil || dsn.Net != "tcp" {
			return ""
		}
		return dsn.Addr
	default:
		return ""
	}
}
