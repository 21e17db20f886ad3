// Package config loads mrbdec settings from an optional project file, a
// .env file and MRBDEC_* environment variables, in that order of
// increasing precedence.
//
// The project file may be JSONC (.mrbdec.jsonc, .mrbdec.json), whose
// comments and trailing commas are stripped with github.com/tidwall/jsonc
// before decoding, or YAML (.mrbdec.yaml, .mrbdec.yml).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/mrbdec/internal/model"
)

// FileNames are the project file names searched for, in order.
var FileNames = []string{".mrbdec.jsonc", ".mrbdec.json", ".mrbdec.yaml", ".mrbdec.yml"}

// Compiler modes.
const (
	ModeLocal  = "local"
	ModeDocker = "docker"
)

// Config holds every setting. Zero values in a project file leave the
// defaults in place.
type Config struct {
	Extensions   []string `json:"extensions" yaml:"extensions"`
	OutputSuffix string   `json:"outputSuffix" yaml:"outputSuffix"`
	Indent       string   `json:"indent" yaml:"indent"`
	Strict       bool     `json:"strict" yaml:"strict"`
	Annotate     bool     `json:"annotate" yaml:"annotate"`
	VerifyCRC    bool     `json:"verifyCRC" yaml:"verifyCRC"`
	Workers      int      `json:"workers" yaml:"workers"`
	CacheSize    int      `json:"cacheSize" yaml:"cacheSize"`
	Compiler     Compiler `json:"compiler" yaml:"compiler"`
}

// Compiler selects how Ruby source is compiled.
type Compiler struct {
	// Mode is ModeLocal or ModeDocker.
	Mode string `json:"mode" yaml:"mode"`

	// Path is the host mrbc executable used in local mode.
	Path string `json:"path" yaml:"path"`

	// Image and Command are used in docker mode; Command is the mrbc
	// executable inside the image.
	Image   string `json:"image" yaml:"image"`
	Command string `json:"command" yaml:"command"`

	// Timeout is a Go duration string such as "30s". Empty means no limit.
	Timeout string `json:"timeout" yaml:"timeout"`
}

// TimeoutDuration returns the parsed timeout, or zero when it is empty or
// invalid. Validate reports invalid values.
func (c Compiler) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Extensions:   []string{".mrb", "_scp.bin"},
		OutputSuffix: ".rb",
		Indent:       "  ",
		Workers:      runtime.NumCPU(),
		CacheSize:    256,
		Compiler: Compiler{
			Mode:    ModeLocal,
			Path:    "mrbc",
			Command: "mrbc",
		},
	}
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// Path names the project file explicitly; it must exist.
	Path string

	// Dir is searched for FileNames when Path is empty. Empty means the
	// working directory.
	Dir string

	// EnvFile is the dotenv file read for MRBDEC_* values. Empty means
	// ".env" in Dir; a missing file is not an error.
	EnvFile string

	// Lookup reads the process environment. Nil means os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load builds the effective configuration. It does not validate it.
func Load(opts LoadOptions) (*Config, error) {
	path := opts.Path
	if path == "" {
		found, ok, err := Find(opts.Dir)
		if err != nil {
			return nil, err
		}
		if ok {
			path = found
		}
	}
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	dotenv, err := readDotenv(opts)
	if err != nil {
		return nil, err
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	// Real environment variables win over .env entries.
	merged := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := ApplyEnv(cfg, merged); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find returns the first of FileNames present in dir.
func Find(dir string) (string, bool, error) {
	if dir == "" {
		dir = "."
	}
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, true, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("failed to check %s: %w", path, err)
		}
	}
	return "", false, nil
}

// LoadFile decodes a project file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.WrapCLIError(
				model.ExitInputNotFound,
				fmt.Sprintf("config file not found: %s", path),
				err,
			)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return nil
}

func readDotenv(opts LoadOptions) (map[string]string, error) {
	path := opts.EnvFile
	if path == "" {
		path = filepath.Join(opts.Dir, ".env")
		if opts.Dir == "" {
			path = ".env"
		}
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}
