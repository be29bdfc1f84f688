package request

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cicerone/pkg/store"
	"cicerone/pkg/tracker"
)

func newTestClient() *Client {
	return New(store.NewMemoryStore(), tracker.New(), ClientConfig{
		Retries:   3,
		Timeout:   5 * time.Second,
		BaseDelay: 10 * time.Millisecond,
	})
}

func TestGet_Sequential(t *testing.T) {
	// Handler sleeps to prove sequential execution per provider
	var conc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)

		if current > 1 {
			t.Errorf("Concurrency detected! Expected sequential.")
		}
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(200)
		if _, err := w.Write([]byte("ok")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := newTestClient()

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
}

func TestGet_Retry(t *testing.T) {
	attempts := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(429)
			return
		}
		w.WriteHeader(200)
		if _, err := w.Write([]byte("success")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := newTestClient()

	body, err := client.Get(context.Background(), svr.URL, "")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}
	if string(body) != "success" {
		t.Errorf("Expected 'success', got '%s'", string(body))
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestPost_RetryResendsBody(t *testing.T) {
	payload := `{"duration":"100","user_text":"hi"}`
	attempts := 0
	var bodies []string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if attempts < 3 {
			w.WriteHeader(429)
			return
		}
		w.WriteHeader(200)
		if _, err := w.Write([]byte("ok")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := newTestClient()

	body, err := client.Post(context.Background(), svr.URL, []byte(payload), nil)
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("Expected 'ok', got '%s'", string(body))
	}
	if attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}
	for i, b := range bodies {
		if b != payload {
			t.Errorf("Attempt %d body mismatch: got '%s'", i+1, b)
		}
	}
}

func TestGet_CacheHit(t *testing.T) {
	calls := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(200)
		_, _ = w.Write([]byte("payload"))
	}))
	defer svr.Close()

	client := newTestClient()

	for i := 0; i < 2; i++ {
		body, err := client.Get(context.Background(), svr.URL, "cache-key")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(body) != "payload" {
			t.Errorf("Body mismatch: %s", body)
		}
	}
	if calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", calls)
	}
}

func TestPost_ClientError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer svr.Close()

	client := newTestClient()

	_, err := client.Post(context.Background(), svr.URL, []byte(`{}`), map[string]string{"Content-Type": "application/json"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", statusErr.StatusCode)
	}
	if string(statusErr.Body) != `{"error":"bad token"}` {
		t.Errorf("Body mismatch: %s", statusErr.Body)
	}
}
