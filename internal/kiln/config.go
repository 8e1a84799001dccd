package kiln

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kiln/internal/arch"
)

const defaultProbeTimeout = 10 * time.Second

// Config holds the raw key=value pairs from the config file and environment.
type Config struct {
	Values map[string]string
}

// Settings is the typed view of Config used by the commands.
type Settings struct {
	Root         string
	StateDir     string
	Machine      string // overrides uname(2) when set
	Compiler     string // "none" disables the compiler probe
	Kernel       arch.KernelSource
	ProbeTimeout time.Duration
	Debug        bool
}

// configPath returns the config file to read: KILN_CONFIG, or ConfigFile.
func configPath() string {
	if p := os.Getenv("KILN_CONFIG"); p != "" {
		return p
	}
	return ConfigFile
}

// Load the config file, if any, and merge environment overrides on top.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			cfg.Values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), `"'`)
		}
		if err := scanner.Err(); err != nil {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("open %s: %w", path, err)
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

// Merge KILN_* and R2_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "KILN_") && !strings.HasPrefix(env, "R2_") {
			continue
		}
		if key, val, ok := strings.Cut(env, "="); ok {
			cfg.Values[key] = val
		}
	}
}

func initConfig(cfg *Config) (Settings, error) {
	s := Settings{
		Root:         cfg.Values["KILN_ROOT"],
		StateDir:     cfg.Values["KILN_STATE_DIR"],
		Machine:      cfg.Values["KILN_ARCH"],
		Compiler:     cfg.Values["KILN_COMPILER"],
		ProbeTimeout: defaultProbeTimeout,
		Debug:        cfg.Values["KILN_DEBUG"] == "1",
	}
	if s.Root == "" {
		s.Root = "."
	}
	if s.StateDir == "" {
		s.StateDir = filepath.Join(s.Root, "parts")
	}
	if s.Compiler == "" {
		s.Compiler = "gcc"
	}

	kernel, err := arch.ParseKernelSource(cfg.Values["KILN_KERNEL_ARCH"])
	if err != nil {
		return s, fmt.Errorf("KILN_KERNEL_ARCH: %w", err)
	}
	s.Kernel = kernel

	if raw := cfg.Values["KILN_PROBE_TIMEOUT"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			// bare seconds are accepted too
			secs, serr := strconv.Atoi(raw)
			if serr != nil {
				return s, fmt.Errorf("KILN_PROBE_TIMEOUT: invalid duration %q", raw)
			}
			d = time.Duration(secs) * time.Second
		}
		if d <= 0 {
			return s, fmt.Errorf("KILN_PROBE_TIMEOUT: must be positive, got %q", raw)
		}
		s.ProbeTimeout = d
	}

	Debug = s.Debug
	debugf("=> state dir: %s, compiler: %s, kernel arch from %s\n", s.StateDir, s.Compiler, s.Kernel)
	return s, nil
}
