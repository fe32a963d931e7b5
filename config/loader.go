// Package config provides raw configuration loaders for the relay: settings
// files, process environment and an ordered chain of both.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-reque/core"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSettingsPath = "config/Settings"
	DefaultEnvPrefix    = "REQUE_"
)

// settingsExtensions are probed in order when a path has no extension.
var settingsExtensions = []string{".yaml", ".yml", ".json"}

// FileLoader reads a flat settings document. JSON is read through the YAML
// decoder, which accepts it as a subset.
type FileLoader struct {
	Path     string
	Optional bool
	FS       fs.FS
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}

func (l *FileLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := DefaultSettingsPath
	if l != nil && strings.TrimSpace(l.Path) != "" {
		path = strings.TrimSpace(l.Path)
	}

	resolved, data, err := l.read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && l != nil && l.Optional {
			return map[string]any{}, nil
		}
		return nil, core.ConfigError(err, fmt.Sprintf("config: read settings %q", path))
	}
	return decodeSettings(resolved, data)
}

func (l *FileLoader) read(path string) (string, []byte, error) {
	candidates := []string{path}
	if filepath.Ext(path) == "" {
		candidates = candidates[:0]
		for _, ext := range settingsExtensions {
			candidates = append(candidates, path+ext)
		}
	}
	var lastErr error
	for _, candidate := range candidates {
		data, err := l.readFile(candidate)
		if err == nil {
			return candidate, data, nil
		}
		lastErr = err
		if !errors.Is(err, fs.ErrNotExist) {
			break
		}
	}
	return "", nil, lastErr
}

func (l *FileLoader) readFile(path string) ([]byte, error) {
	if l != nil && l.FS != nil {
		return fs.ReadFile(l.FS, filepath.ToSlash(path))
	}
	return os.ReadFile(path)
}

func decodeSettings(path string, data []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, core.ConfigError(err, fmt.Sprintf("config: parse settings %q", path))
	}
	for key, value := range out {
		if _, nested := value.(map[string]any); nested {
			return nil, core.ConfigError(nil, fmt.Sprintf("config: settings %q: key %q must be a scalar", path, key))
		}
	}
	return out, nil
}

// envAliases maps shortened variable names onto settings keys, so
// REQUE_SERVICE_PORT works alongside REQUE_REQUE_SERVICE_PORT.
var envAliases = map[string]string{
	"service_port": "reque_service_port",
	"interval":     "reque_interval",
}

// EnvLoader reads prefixed environment variables. Values stay strings and are
// coerced by the config provider.
type EnvLoader struct {
	Prefix  string
	Environ func() []string
}

func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{Prefix: prefix}
}

func (l *EnvLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := DefaultEnvPrefix
	environ := os.Environ
	if l != nil {
		if strings.TrimSpace(l.Prefix) != "" {
			prefix = strings.TrimSpace(l.Prefix)
		}
		if l.Environ != nil {
			environ = l.Environ
		}
	}
	prefix = strings.ToUpper(prefix)

	out := map[string]any{}
	for _, pair := range environ() {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || !strings.HasPrefix(strings.ToUpper(name), prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name[len(prefix):]))
		if key == "" {
			continue
		}
		if alias, found := envAliases[key]; found {
			if _, explicit := out[alias]; explicit {
				continue
			}
			key = alias
		}
		out[key] = value
	}
	return out, nil
}

// ChainLoader merges loaders in order; later loaders win per key.
type ChainLoader []core.RawConfigLoader

func (c ChainLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	for _, loader := range c {
		if loader == nil {
			continue
		}
		values, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		for key, value := range values {
			out[strings.ToLower(strings.TrimSpace(key))] = value
		}
	}
	return out, nil
}

// Load builds the validated relay configuration from the settings file at
// path overlaid with REQUE_ environment variables.
func Load(ctx context.Context, path string) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(ChainLoader{
		NewFileLoader(path),
		NewEnvLoader(DefaultEnvPrefix),
	})
	cfg, err := provider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

var (
	_ core.RawConfigLoader = (*FileLoader)(nil)
	_ core.RawConfigLoader = (*EnvLoader)(nil)
	_ core.RawConfigLoader = ChainLoader(nil)
)
