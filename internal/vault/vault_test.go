package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

type mapKV map[string]string

func (m mapKV) GetKV(_ context.Context, path, key string, _ time.Duration) (string, error) {
	v, ok := m[path+"#"+key]
	if !ok {
		return "", errors.New("missing")
	}
	return v, nil
}

func TestEncryptionKey(t *testing.T) {
	good := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	kv := mapKV{"secret/forms#key": good, "secret/forms#short": short, "secret/forms#junk": "%%%"}

	key, err := EncryptionKey(context.Background(), kv, "secret/forms", "key")
	if err != nil || len(key) != 32 {
		t.Fatalf("EncryptionKey = %d bytes, %v", len(key), err)
	}
	for _, k := range []string{"short", "junk", "absent"} {
		if _, err := EncryptionKey(context.Background(), kv, "secret/forms", k); err == nil {
			t.Errorf("%s: expected error", k)
		}
	}
}

func TestSplitMount(t *testing.T) {
	m, r := splitMount("secret/forms/aes")
	if m != "secret" || r != "forms/aes" {
		t.Fatalf("splitMount = %q, %q", m, r)
	}
}
