// internal/config/model.go
//
// Typed configuration model for the forms server.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                         – dotenv values,
//   • `conf/global.yaml`                      – primary static file,
//   • `ADEPT_`-prefixed environment overrides – highest precedence.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.  Defaults() seeds the tunables the forms
// pipeline treats as external contracts (100 fields, 10KB per value).
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.  AdminOrigin is the scheme+host the
// referer/origin guard accepts, e.g. "https://admin.example.com".
// GeoIPDB is an optional GeoLite2-City file used to tag submissions with
// a country.
type HTTP struct {
	ListenAddr  string `koanf:"listen_addr"  validate:"required,hostname_port"`
	AdminOrigin string `koanf:"admin_origin" validate:"omitempty,url"`
	GeoIPDB     string `koanf:"geoip_db"`
}

//
// Database section
//

// Database holds the DSN of the store that backs options, entity meta,
// settings groups, and rate-limit counters.  Empty DSN selects the in-memory
// store, which is only suitable for development.  Migrate applies the
// idempotent schema at startup.
type Database struct {
	DSN     string `koanf:"dsn"`
	Migrate bool   `koanf:"migrate"`
}

//
// Security section
//

// RateLimit bounds repeated submissions per (form, user, client address).
type RateLimit struct {
	Max    int           `koanf:"max"    validate:"gte=0"`
	Window time.Duration `koanf:"window"`
}

// Security holds CSRF, session, and request sanity limits.  Empty keys are
// replaced by random ones at startup, which invalidates every outstanding
// nonce and session on restart.
type Security struct {
	CSRFKey       string        `koanf:"csrf_key"`
	SessionKey    string        `koanf:"session_key"`
	TokenMaxAge   time.Duration `koanf:"token_max_age"`
	MaxFields     int           `koanf:"max_fields"      validate:"gte=0"`
	MaxFieldBytes int           `koanf:"max_field_bytes" validate:"gte=0"`
	RejectBots    bool          `koanf:"reject_bots"`
	RateLimit     RateLimit     `koanf:"rate_limit"`
}

//
// Crypto section
//

// Crypto locates the AES-256 key for encrypted fields.  Key is a base64
// string; when VaultPath is set the key is fetched from Vault KV-v2 instead.
type Crypto struct {
	Key       string `koanf:"key"`
	VaultPath string `koanf:"vault_path"`
	VaultKey  string `koanf:"vault_key"`
}

//
// Forms section
//

// Forms lists the YAML definition roots and conditional-engine switches.
// DebugConditionals disables the visibility cache for stale-cache triage.
type Forms struct {
	Dirs              []string `koanf:"dirs"`
	DebugConditionals bool     `koanf:"debug_conditionals"`
	MaxDepth          int      `koanf:"max_depth" validate:"gte=0"`
}

//
// Uploads section
//

// Uploads configures the disk uploader used by file fields.
type Uploads struct {
	Dir          string   `koanf:"dir"`
	URLPrefix    string   `koanf:"url_prefix"`
	MaxBytes     int64    `koanf:"max_bytes" validate:"gte=0"`
	AllowedTypes []string `koanf:"allowed_types"`
}

//
// Log section
//

// Log configures the file logger.
type Log struct {
	Dir string `koanf:"dir"`
	Tee bool   `koanf:"tee"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Security Security `koanf:"security"`
	Crypto   Crypto   `koanf:"crypto"`
	Forms    Forms    `koanf:"forms"`
	Uploads  Uploads  `koanf:"uploads"`
	Log      Log      `koanf:"log"`
	Paths    Paths    `koanf:"-"`
}

// Defaults returns the baseline configuration that file and env layers
// override.
func Defaults() map[string]any {
	return map[string]any{
		"http.listen_addr":           "127.0.0.1:8080",
		"security.token_max_age":     "12h",
		"security.max_fields":        100,
		"security.max_field_bytes":   10 * 1024,
		"security.reject_bots":       true,
		"security.rate_limit.max":    10,
		"security.rate_limit.window": "1m",
		"forms.max_depth":            10,
		"uploads.dir":                "uploads",
		"uploads.url_prefix":         "/uploads/",
		"uploads.max_bytes":          5 << 20,
		"uploads.allowed_types":      []string{"image/png", "image/jpeg", "image/gif", "application/pdf"},
		"log.dir":                    "logs",
		"crypto.vault_key":           "key",
	}
}
