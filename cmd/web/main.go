// cmd/web/main.go
//
// Adept Forms – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load configuration (.env → conf/global.yaml → ADEPT_* env).
//
//  2. Start the daily rotating logger (tees to console when running in a TTY
//     or when log.tee is set).
//
//  3. Open the store: MySQL when database.dsn is set, in-memory otherwise.
//
//  4. Resolve the field-encryption key (Vault KV-v2 or crypto.key).
//
//  5. Build the shared form resources: CSRF tokens, security policy, rate
//     limiter, uploader, webhook dispatcher, and post-success actions.
//
//  6. Load YAML form definitions, initialise components, and bind every
//     registered form to its storage strategy.
//
//  7. Serve:
//
//     • /metrics                 – Prometheus
//     • /uploads/*               – files accepted by file fields
//     • /admin/*                 – component routes (forms, settings)
//
//     wrapped in ForceHTTPS → Security headers → request info → session.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/adept-forms/internal/acl"
	"github.com/yanizio/adept-forms/internal/component"
	"github.com/yanizio/adept-forms/internal/config"
	"github.com/yanizio/adept-forms/internal/crypt"
	"github.com/yanizio/adept-forms/internal/database"
	"github.com/yanizio/adept-forms/internal/form"
	"github.com/yanizio/adept-forms/internal/logger"
	"github.com/yanizio/adept-forms/internal/message"
	"github.com/yanizio/adept-forms/internal/middleware"
	"github.com/yanizio/adept-forms/internal/requestinfo"
	"github.com/yanizio/adept-forms/internal/server"
	"github.com/yanizio/adept-forms/internal/session"
	"github.com/yanizio/adept-forms/internal/storage"
	"github.com/yanizio/adept-forms/internal/throttle"
	"github.com/yanizio/adept-forms/internal/vault"

	_ "github.com/yanizio/adept-forms/components/forms"
	_ "github.com/yanizio/adept-forms/components/settings"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logDir := cfg.Log.Dir
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(cfg.Paths.Root, logDir)
	}
	lg, err := logger.New(logDir, cfg.Log.Tee || runningInTTY())
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer lg.Sync()

	//
	// ── 1.  Store ───────────────────────────────────────────────────────
	//
	deps := component.Deps{Log: lg, Kinds: form.DefaultKinds()}
	var counter throttle.Counter
	if cfg.Database.DSN != "" {
		lg.Info("connecting to database …")
		db, err := database.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if cfg.Database.Migrate {
			for _, stmt := range append(storage.Schema, component.Migrations()...) {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}
			lg.Info("schema up to date")
		}
		store := storage.NewSQL(db)
		deps.DB = db
		deps.Stores = form.Stores{KV: store, Meta: store, Groups: store}
		counter = store
	} else {
		lg.Warn("database.dsn is empty; using the in-memory store")
		mem := storage.NewMemory()
		deps.Stores = form.Stores{KV: mem, Meta: mem, Groups: mem}
		counter = throttle.NewMemory()
	}

	//
	// ── 2.  Encryption key ──────────────────────────────────────────────
	//
	key, err := encryptionKey(ctx, cfg, lg)
	if err != nil {
		return err
	}
	if key != nil {
		if deps.Cipher, err = crypt.New(key); err != nil {
			return fmt.Errorf("encryption key: %w", err)
		}
	} else {
		lg.Warn("no encryption key configured; encrypted fields will reject input")
	}

	//
	// ── 3.  Form resources ──────────────────────────────────────────────
	//
	csrfKey := secretOrRandom(cfg.Security.CSRFKey, "security.csrf_key", lg)
	deps.Tokens = form.NewTokens(csrfKey, cfg.Security.TokenMaxAge)
	sessions := &session.Manager{Key: secretOrRandom(cfg.Security.SessionKey, "security.session_key", lg)}

	deps.Security = &form.Security{
		Tokens:        deps.Tokens,
		AdminOrigin:   cfg.HTTP.AdminOrigin,
		MaxFields:     cfg.Security.MaxFields,
		MaxFieldBytes: cfg.Security.MaxFieldBytes,
		RejectBots:    cfg.Security.RejectBots,
		Limiter: &throttle.Limiter{
			Counter: counter,
			Max:     cfg.Security.RateLimit.Max,
			Window:  cfg.Security.RateLimit.Window,
		},
	}
	if deps.DB != nil {
		deps.Security.Caps = &acl.Checker{DB: deps.DB.DB}
	}

	uploadDir := cfg.Uploads.Dir
	if !filepath.IsAbs(uploadDir) {
		uploadDir = filepath.Join(cfg.Paths.Root, uploadDir)
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}
	deps.Uploader = &form.DiskUploader{
		Dir:          uploadDir,
		URLPrefix:    cfg.Uploads.URLPrefix,
		MaxBytes:     cfg.Uploads.MaxBytes,
		AllowedTypes: cfg.Uploads.AllowedTypes,
	}

	webhooks := message.NewDispatcher(message.Options{}, lg)
	deps.Actions = &form.Actions{Webhooks: webhooks, DB: deps.DB}
	deps.DebugConditionals = cfg.Forms.DebugConditionals
	deps.MaxDepth = cfg.Forms.MaxDepth

	if err := requestinfo.InitGeo(cfg.HTTP.GeoIPDB); err != nil {
		lg.Warnw("geo lookup disabled", "err", err)
	}

	//
	// ── 4.  Forms and components ────────────────────────────────────────
	//
	if len(cfg.Forms.Dirs) > 0 {
		if err := form.RegisterForms(cfg.Forms.Dirs, deps.Kinds); err != nil {
			return fmt.Errorf("load form definitions: %w", err)
		}
	}
	if err := component.InitAll(deps); err != nil {
		return err
	}
	var bindErrs []error
	for _, id := range form.FormIDs() {
		f, _ := form.GetForm(id)
		bindErrs = append(bindErrs, deps.Stores.Bind(f))
	}
	if err := errors.Join(bindErrs...); err != nil {
		return fmt.Errorf("bind forms: %w", err)
	}
	lg.Infow("forms ready", "count", len(form.FormIDs()))

	//
	// ── 5.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(chimw.Recoverer, middleware.Security, requestinfo.Enrich, sessions.Attach, withLogger(lg))
	r.Handle("/metrics", promhttp.Handler())
	prefix := "/" + strings.Trim(cfg.Uploads.URLPrefix, "/") + "/"
	if !strings.Contains(cfg.Uploads.URLPrefix, "://") {
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(uploadDir))))
	}
	r.Group(func(admin chi.Router) {
		if deps.Security.Caps != nil {
			admin.Use(acl.RequireCapability(deps.Security.Caps, "read"))
		}
		component.Mount(admin)
	})

	srv := server.New(cfg.HTTP.ListenAddr, middleware.ForceHTTPS(cfg.HTTP.AdminOrigin, r))
	err = server.Run(ctx, srv, lg)

	//
	// ── 6.  Drain webhooks ──────────────────────────────────────────────
	//
	dctx, cancel := context.WithTimeout(context.Background(), server.ShutdownGrace)
	defer cancel()
	if cerr := webhooks.Close(dctx); cerr != nil {
		lg.Warnw("webhook queue not drained", "err", cerr)
	}
	return err
}

// encryptionKey prefers Vault when crypto.vault_path is set, then the
// base64 crypto.key.  Neither configured returns nil.
func encryptionKey(ctx context.Context, cfg *config.Config, lg *zap.SugaredLogger) ([]byte, error) {
	if cfg.Crypto.VaultPath != "" {
		vc, err := vault.New(ctx, lg)
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		return vault.EncryptionKey(ctx, vc, cfg.Crypto.VaultPath, cfg.Crypto.VaultKey)
	}
	if cfg.Crypto.Key == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.Crypto.Key))
	if err != nil {
		return nil, fmt.Errorf("crypto.key: %w", err)
	}
	return raw, nil
}

// secretOrRandom returns s as bytes, or 32 random bytes when s is empty.
func secretOrRandom(s, name string, lg *zap.SugaredLogger) []byte {
	if s != "" {
		return []byte(s)
	}
	lg.Warnw("no key configured; generated one for this process", "key", name)
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// withLogger stores lg in every request context for logger.FromContext.
func withLogger(lg *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), lg)))
		})
	}
}
