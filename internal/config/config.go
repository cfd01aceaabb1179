package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nirmaan/internal/backend"
	"nirmaan/internal/log"
)

// Pull policies.
const (
	PolicyLWW       = "lww"
	PolicyOverwrite = "overwrite"
)

type Config struct {
	// Local store
	DBPath string

	// Remote endpoint set at deployment time
	RemoteBackend string
	RemoteURL     string
	RemoteKey     string

	// Scheduling
	PushDelay     time.Duration
	PullInterval  time.Duration
	WatchInterval time.Duration
	ProbeInterval time.Duration
	ProbeAddr     string
	PullPolicy    string

	// Status server
	StatusAddr string

	// AMQP sync events, disabled when URL is empty
	AMQPURL      string
	AMQPExchange string
	DeviceID     string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		DBPath: getEnv("NIRMAAN_DB_PATH", "./data/nirmaan.db"),

		RemoteBackend: getEnv("REMOTE_BACKEND", ""),
		RemoteURL:     getEnv("REMOTE_URL", ""),
		RemoteKey:     getEnv("REMOTE_KEY", ""),

		PushDelay:     getEnvDuration("PUSH_DELAY", 750*time.Millisecond),
		PullInterval:  getEnvDuration("PULL_INTERVAL", 60*time.Second),
		WatchInterval: getEnvDuration("WATCH_INTERVAL", 2*time.Second),
		ProbeInterval: getEnvDuration("PROBE_INTERVAL", 15*time.Second),
		ProbeAddr:     getEnv("PROBE_ADDR", ""),
		PullPolicy:    getEnv("PULL_POLICY", PolicyLWW),

		StatusAddr: getEnv("STATUS_ADDR", ":8081"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "nirmaan.sync"),
		DeviceID:     getEnv("DEVICE_ID", hostname()),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", string(log.FormatText)),
	}

	return cfg
}

// Remote returns the deployment-time endpoint settings.
func (c *Config) Remote() backend.Config {
	return backend.Config{
		Type: backend.BackendType(c.RemoteBackend),
		URL:  c.RemoteURL,
		Key:  c.RemoteKey,
	}
}

// LoggerConfig maps the log settings onto a log.Config.
func (c *Config) LoggerConfig(component string) log.Config {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(c.LogLevel)
	lc.Format = log.ParseFormat(c.LogFormat)
	lc.Component = component
	return lc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if err := c.Remote().Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.PushDelay < 100*time.Millisecond || c.PushDelay > 5*time.Second {
		errors = append(errors, fmt.Sprintf("invalid push delay %v: must be between 100ms and 5s", c.PushDelay))
	}
	if c.PullInterval < 5*time.Second {
		errors = append(errors, fmt.Sprintf("invalid pull interval %v: must be at least 5 seconds", c.PullInterval))
	} else if c.PullInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid pull interval %v: must be at most 24 hours", c.PullInterval))
	}
	if c.WatchInterval < 0 || (c.WatchInterval > 0 && c.WatchInterval < 100*time.Millisecond) {
		errors = append(errors, fmt.Sprintf("invalid watch interval %v: must be 0 or at least 100ms", c.WatchInterval))
	}
	if c.ProbeInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid probe interval %v: must be at least 1 second", c.ProbeInterval))
	}
	if c.ProbeAddr != "" {
		if _, port, err := net.SplitHostPort(c.ProbeAddr); err != nil || port == "" {
			errors = append(errors, fmt.Sprintf("invalid probe address '%s': must be host:port", c.ProbeAddr))
		}
	}

	if c.PullPolicy != PolicyLWW && c.PullPolicy != PolicyOverwrite {
		errors = append(errors, fmt.Sprintf("invalid pull policy '%s': must be one of [%s %s]", c.PullPolicy, PolicyLWW, PolicyOverwrite))
	}

	if c.StatusAddr != "" {
		if _, port, err := net.SplitHostPort(c.StatusAddr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid status address '%s': %v", c.StatusAddr, err))
		} else if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
			errors = append(errors, fmt.Sprintf("invalid status port '%s': must be between 0 and 65535", port))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.DeviceID == "" {
			errors = append(errors, "device id cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
