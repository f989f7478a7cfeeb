// Package config loads hatn's process configuration tree: a
// JSON-with-comments file at --config <path>, falling back to
// $HATN_CONFIG_DIR/config.json, per spec.md §6.
//
// Grounded on cuemby-warren/cmd/warren/main.go's persistent-flag +
// cobra.OnInitialize bootstrap shape and apply.go's struct-tagged
// decode-into-typed-envelope pattern, here decoding JSON instead of
// YAML. The comment-stripping pass is stdlib-only: none of the seven
// retrieved example repos imports a JSONC/HCL-with-comments library, so
// a small hand-rolled pass over encoding/json's input is used instead
// of introducing an unvetted dependency (see DESIGN.md).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/log"
)

// Exit codes, per spec.md §6.
const (
	ExitOK     = 0
	ExitUsage  = 64
	ExitConfig = 78
)

const envConfigDir = "HATN_CONFIG_DIR"

// StorageConfig configures the db engine.
type StorageConfig struct {
	Path             string `json:"path"`
	TTLSweepInterval string `json:"ttl_sweep_interval"`
	EncryptionAtRest bool   `json:"encryption_at_rest"`
}

// RPCConfig configures the transport listener.
type RPCConfig struct {
	ListenAddr string `json:"listen_addr"`
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// Config is the full process configuration tree.
type Config struct {
	Log     LogConfig     `json:"log"`
	Storage StorageConfig `json:"storage"`
	RPC     RPCConfig     `json:"rpc"`
}

// Load reads and parses the config tree at path. If path is empty, it
// falls back to $HATN_CONFIG_DIR/config.json per spec.md §6.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, fmt.Sprintf("read config %s", resolved), err)
	}
	stripped := stripComments(raw)

	var cfg Config
	if err := json.Unmarshal(stripped, &cfg); err != nil {
		return nil, herr.Wrap(herr.InvalidInput, fmt.Sprintf("parse config %s", resolved), err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir := os.Getenv(envConfigDir)
	if dir == "" {
		return "", herr.New(herr.InvalidInput, "no --config given and "+envConfigDir+" is not set")
	}
	return filepath.Join(dir, "config.json"), nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = string(log.InfoLevel)
	}
	if cfg.Storage.TTLSweepInterval == "" {
		cfg.Storage.TTLSweepInterval = "30s"
	}
}

// stripComments removes // line comments and /* */ block comments
// outside of JSON string literals, so the documented "JSON with
// comments" format can be parsed with encoding/json unmodified.
func stripComments(input []byte) []byte {
	out := make([]byte, 0, len(input))
	inString := false
	inLineComment := false
	inBlockComment := false
	escaped := false

	for i := 0; i < len(input); i++ {
		c := input[i]

		if inLineComment {
			if c == '\n' {
				inLineComment = false
				out = append(out, c)
			}
			continue
		}
		if inBlockComment {
			if c == '*' && i+1 < len(input) && input[i+1] == '/' {
				inBlockComment = false
				i++
			}
			continue
		}
		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		if c == '/' && i+1 < len(input) {
			switch input[i+1] {
			case '/':
				inLineComment = true
				i++
				continue
			case '*':
				inBlockComment = true
				i++
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
