// internal/vault/vault.go
//
// Vault client wrapper for the encryption key source.
//
// Context
// -------
//   - Wraps the HashiCorp Vault Go SDK behind a concurrency-safe client.
//   - The only secret the forms service reads is the AES key used for
//     encrypted fields.  It lives in a KV-v2 secret and is fetched once at
//     boot through `EncryptionKey`, then cached for the configured TTL.
//   - Token renewal runs in the background when the token is renewable.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, zap.S())                  // during boot.
//  2. key, err := cli.EncryptionKey(ctx, "secret/forms", "key")
//
// Notes
// -----
// • Oxford commas, two spaces after periods, no m-dash.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

//
// SECTION 1.  Public façade
//

// KV is the narrow read surface the key loader needs.  *Client satisfies
// it; tests use a map-backed fake.
type KV interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client
	log *zap.SugaredLogger

	cacheMu sync.RWMutex
	cache   map[string]cached // path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from VAULT_ADDR / VAULT_TOKEN and starts a
// token-renewal loop bound to ctx.
func New(ctx context.Context, log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := &Client{api: apiCli, log: log, cache: make(map[string]cached)}
	go c.renewLoop(ctx)
	return c, nil
}

// GetKV fetches a single key from a KV-v2 secret.  When ttl > 0 the value is
// cached for that long.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}
	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		cv, ok := c.cache[canonical]
		c.cacheMu.RUnlock()
		if ok && time.Now().Before(cv.exp) {
			return cv.val, nil
		}
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}
	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

// EncryptionKey reads a base64 AES-256 key from kv and checks its length.
func EncryptionKey(ctx context.Context, kv KV, secretPath, key string) ([]byte, error) {
	enc, err := kv.GetKV(ctx, secretPath, key, time.Hour)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(enc))
	if err != nil {
		return nil, fmt.Errorf("vault key %s#%s: %w", secretPath, key, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("vault key %s#%s: want 32 bytes, got %d", secretPath, key, len(raw))
	}
	return raw, nil
}

//
// SECTION 2.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		sec, err := c.api.Auth().Token().RenewSelf(0)
		if err != nil {
			c.log.Warnw("vault token renew failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			c.log.Infow("vault token not renewable, sleeping")
			backoff(ctx, time.Hour)
			continue
		}

		w, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{Secret: sec})
		if err != nil {
			c.log.Warnw("vault watcher init", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		c.watch(ctx, w)
		backoff(ctx, 15*time.Second)
	}
}

func (c *Client) watch(ctx context.Context, w *vault.LifetimeWatcher) {
	go w.Start()
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				c.log.Warnw("vault token renewal stopped", "err", err)
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.log.Debugw("vault token renewed", "ttl", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 3.  Helpers
//

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
