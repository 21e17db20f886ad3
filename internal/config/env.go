package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvWorkers      = "MRBDEC_WORKERS"
	EnvStrict       = "MRBDEC_STRICT"
	EnvAnnotate     = "MRBDEC_ANNOTATE"
	EnvVerifyCRC    = "MRBDEC_VERIFY_CRC"
	EnvOutputSuffix = "MRBDEC_OUTPUT_SUFFIX"
	EnvCompilerMode = "MRBDEC_COMPILER_MODE"
	EnvMrbcPath     = "MRBDEC_MRBC_PATH"
	EnvMrbcImage    = "MRBDEC_MRBC_IMAGE"
	EnvMrbcTimeout  = "MRBDEC_MRBC_TIMEOUT"
	EnvExtensions   = "MRBDEC_EXTENSIONS"
)

// ApplyEnv overrides cfg with the MRBDEC_* variables that lookup finds.
// Blank values are ignored. MRBDEC_EXTENSIONS is a comma-separated list.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	strs := map[string]*string{
		EnvOutputSuffix: &cfg.OutputSuffix,
		EnvCompilerMode: &cfg.Compiler.Mode,
		EnvMrbcPath:     &cfg.Compiler.Path,
		EnvMrbcImage:    &cfg.Compiler.Image,
		EnvMrbcTimeout:  &cfg.Compiler.Timeout,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		EnvStrict:    &cfg.Strict,
		EnvAnnotate:  &cfg.Annotate,
		EnvVerifyCRC: &cfg.VerifyCRC,
	}
	for key, dst := range bools {
		v, ok := get(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = b
	}

	if v, ok := get(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvWorkers, v, err)
		}
		cfg.Workers = n
	}

	if v, ok := get(EnvExtensions); ok {
		var exts []string
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, e)
			}
		}
		cfg.Extensions = exts
	}
	return nil
}
