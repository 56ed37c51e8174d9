package message

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDispatcherDeliversAfterCallerContextEnds(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []string
		done = make(chan struct{}, 1)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		done <- struct{}{}
	}))
	defer srv.Close()

	d := NewDispatcher(Options{Workers: 1}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL, bytes.NewReader([]byte(`{"a":1}`)))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Enqueue(ctx, req); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != `{"a":1}` {
		t.Fatalf("server saw %q", got)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{}, zap.NewNop().Sugar())
	if err := d.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	if err := d.Enqueue(context.Background(), req); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}
