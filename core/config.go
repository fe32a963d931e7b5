package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultServicePort   = 8000
	DefaultRequeInterval = 5
	DefaultHTTPProto     = "http"
)

// Config is built once at startup and passed by value; nothing mutates it
// after NewService returns.
type Config struct {
	ServiceName     string `koanf:"service_name" mapstructure:"service_name"`
	ServicePort     int    `koanf:"reque_service_port" mapstructure:"reque_service_port"`
	RequireSuccess  bool   `koanf:"require_success" mapstructure:"require_success"`
	RemoveOnFailure bool   `koanf:"remove_from_queue_on_failure" mapstructure:"remove_from_queue_on_failure"`
	DatabaseURL     string `koanf:"database_url" mapstructure:"database_url"`
	HTTPDest        string `koanf:"http_dest" mapstructure:"http_dest"`
	HTTPProto       string `koanf:"http_proto" mapstructure:"http_proto"`
	RequeInterval   int    `koanf:"reque_interval" mapstructure:"reque_interval"`
	ForwardTimeout  int    `koanf:"forward_timeout" mapstructure:"forward_timeout"`
	LogPath         string `koanf:"log_path" mapstructure:"log_path"`
	LogLevel        string `koanf:"log_level" mapstructure:"log_level"`
	LogFormat       string `koanf:"log_format" mapstructure:"log_format"`
	IngestAsync     bool   `koanf:"ingest_async" mapstructure:"ingest_async"`
	CaptureHeaders  bool   `koanf:"capture_headers" mapstructure:"capture_headers"`
	AdminEnabled    bool   `koanf:"admin_enabled" mapstructure:"admin_enabled"`
	// MaxBodyBytes caps captured request bodies; zero means unlimited.
	MaxBodyBytes int64 `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "reque",
		ServicePort:   DefaultServicePort,
		HTTPProto:     DefaultHTTPProto,
		RequeInterval: DefaultRequeInterval,
		LogLevel:      "info",
		LogFormat:     "text",
		IngestAsync:   true,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return configError("service_name", "service_name is required")
	}
	if c.ServicePort <= 0 || c.ServicePort > 65535 {
		return configError("reque_service_port", fmt.Sprintf("reque_service_port %d is out of range", c.ServicePort))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return configError("database_url", "database_url is required")
	}
	if strings.TrimSpace(c.HTTPDest) == "" {
		return configError("http_dest", "http_dest is required")
	}
	proto := c.Proto()
	if proto != "http" && proto != "https" {
		return configError("http_proto", fmt.Sprintf("http_proto %q is invalid", c.HTTPProto))
	}
	if _, err := url.Parse(proto + "://" + c.Destination()); err != nil {
		return configError("http_dest", fmt.Sprintf("http_dest %q is invalid", c.HTTPDest))
	}
	if c.RequeInterval <= 0 {
		return configError("reque_interval", "reque_interval must be a positive number of seconds")
	}
	if c.ForwardTimeout < 0 {
		return configError("forward_timeout", "forward_timeout must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return configError("max_body_bytes", "max_body_bytes must not be negative")
	}
	return nil
}

// Proto normalizes http_proto, accepting "https" as well as "https://".
func (c Config) Proto() string {
	proto := strings.ToLower(strings.TrimSpace(c.HTTPProto))
	return strings.TrimSuffix(proto, "://")
}

func (c Config) Destination() string {
	return strings.TrimRight(strings.TrimSpace(c.HTTPDest), "/")
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.RequeInterval) * time.Second
}

func (c Config) ForwardTimeoutDuration() time.Duration {
	if c.ForwardTimeout <= 0 {
		return 0
	}
	return time.Duration(c.ForwardTimeout) * time.Second
}

func (c Config) Policy() RemovalPolicy {
	return RemovalPolicy{
		RequireSuccess:  c.RequireSuccess,
		RemoveOnFailure: c.RemoveOnFailure,
	}
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.ServicePort)
}

var (
	intConfigKeys = map[string]bool{
		"reque_service_port": true,
		"reque_interval":     true,
		"forward_timeout":    true,
		"max_body_bytes":     true,
	}
	boolConfigKeys = map[string]bool{
		"require_success":              true,
		"remove_from_queue_on_failure": true,
		"ingest_async":                 true,
		"capture_headers":              true,
		"admin_enabled":                true,
	}
)

// normalizeRawConfig lower-cases keys and coerces string scalars for numeric
// and boolean keys, since environment and hand-edited files carry "true" and
// "8000" as text. Unparseable values are left alone so validation reports them.
func normalizeRawConfig(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		text, isText := value.(string)
		switch {
		case isText && intConfigKeys[key]:
			if parsed, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
				value = parsed
			}
		case isText && boolConfigKeys[key]:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(text)); err == nil {
				value = parsed
			}
		}
		out[key] = value
	}
	return out
}
