// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from four layers (highest
precedence last):

  0. Built-in defaults (`Defaults()`).
  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml` (optional; a missing file keeps the defaults).
  3. Environment variables prefixed `ADEPT_`, where `__` maps to “.”
     (e.g., `ADEPT_SECURITY__CSRF_KEY → security.csrf_key`).

After merging, the tree is unmarshalled into strongly-typed structs,
validated, enriched with the runtime root path, and cached in an
`atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans – root discovery, YAML read.
  • ERROR spans – YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  – final “config loaded” with key highlights.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves ADEPT_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to the working directory.
func rootDir() string {
	if r := os.Getenv("ADEPT_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads defaults, .env, YAML, env overrides, validates, and caches
// Config.
func Load() (*Config, error) {
	return LoadFrom(rootDir())
}

// LoadFrom is Load with an explicit root directory.  Tests use it with a
// temporary directory.
func LoadFrom(root string) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")
	for key, val := range Defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
			return nil, err
		}
		zap.S().Debugw("config yaml absent, using defaults", "file", yamlPath)
	}

	if err := k.Load(env.Provider("ADEPT_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, "ADEPT_"), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"admin_origin", cfg.HTTP.AdminOrigin,
		"form_dirs", cfg.Forms.Dirs,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }
