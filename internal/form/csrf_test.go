package form

import (
	"testing"
	"time"
)

func TestTokens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tk := NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	tk.now = func() time.Time { return now }

	tok, err := tk.Generate("general", 7)
	if err != nil {
		t.Fatal(err)
	}
	if !tk.Verify("general", 7, tok) {
		t.Fatal("fresh token rejected")
	}
	if tk.Verify("other", 7, tok) {
		t.Fatal("token accepted for another form")
	}
	if tk.Verify("general", 8, tok) {
		t.Fatal("token accepted for another user")
	}
	if tk.Verify("general", 7, tok[:len(tok)-2]+"AA") {
		t.Fatal("tampered token accepted")
	}
	if tk.Verify("general", 7, "garbage") {
		t.Fatal("garbage accepted")
	}

	now = now.Add(2 * time.Hour)
	if tk.Verify("general", 7, tok) {
		t.Fatal("expired token accepted")
	}
}

func TestTokensDifferentKeys(t *testing.T) {
	a := NewTokens([]byte("key-a-key-a-key-a-key-a-key-a-aa"), 0)
	b := NewTokens([]byte("key-b-key-b-key-b-key-b-key-b-bb"), 0)
	tok, _ := a.Generate("f", 1)
	if b.Verify("f", 1, tok) {
		t.Fatal("token verified under a different key")
	}
	if a.MaxAge() != defaultTokenAge {
		t.Fatalf("MaxAge = %v", a.MaxAge())
	}
}
