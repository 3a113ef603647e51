package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/curatarr/internal/shared"
)

func testOptions() ClientOptions {
	return ClientOptions{Timeout: 2 * time.Second}
}

func TestClient(t *testing.T) {
	t.Run("Decodes JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Api-Key") != "secret" {
				t.Errorf("expected api key header, got %q", r.Header.Get("X-Api-Key"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"value": 42}`))
		}))
		defer server.Close()

		c := newClient("test", server.URL, testOptions())
		c.header.Set("X-Api-Key", "secret")

		var out struct {
			Value int `json:"value"`
		}
		if err := c.get(context.Background(), "get", "/", nil, &out); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Value != 42 {
			t.Errorf("expected 42, got %d", out.Value)
		}
	})

	t.Run("Status Mapping", func(t *testing.T) {
		tc := []struct {
			name   string
			status int
			body   string
			want   error
		}{
			{"unauthorized", http.StatusUnauthorized, "", ErrUnauthorized},
			{"forbidden", http.StatusForbidden, "", ErrUnauthorized},
			{"server error", http.StatusInternalServerError, "boom", ErrUnreachable},
			{"not found", http.StatusNotFound, "", ErrUnreachable},
			{"malformed body", http.StatusOK, "{not json", ErrMalformedResponse},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				c := newClient("test-"+tt.name, server.URL, testOptions())
				var out map[string]any
				err := c.get(context.Background(), "get", "/", nil, &out)
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}

				var pe *ProviderError
				if !errors.As(err, &pe) {
					t.Fatalf("expected *ProviderError, got %T", err)
				}
				if pe.Provider != "test-"+tt.name {
					t.Errorf("expected provider name on error, got %q", pe.Provider)
				}
			})
		}
	})

	t.Run("Connection Refused Is Unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		c := newClient("closed", url, testOptions())
		err := c.get(context.Background(), "get", "/", nil, nil)
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("expected unreachable, got %v", err)
		}
		if !IsUnavailable(err) {
			t.Error("expected IsUnavailable to be true")
		}
	})

	t.Run("Timeout Is Unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		c := newClient("slow", server.URL, ClientOptions{Timeout: 50 * time.Millisecond})
		err := c.get(context.Background(), "get", "/", nil, nil)
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("expected unreachable, got %v", err)
		}
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected timeout, got %v", err)
		}
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected service unavailable, got %v", err)
		}
	})

	t.Run("Breaker Opens After Consecutive Failures", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := newClient("breaker", server.URL, testOptions())
		for range 5 {
			_ = c.get(context.Background(), "get", "/", nil, nil)
		}

		err := c.get(context.Background(), "get", "/", nil, nil)
		if !errors.Is(err, ErrUnreachable) {
			t.Fatalf("expected unreachable from open breaker, got %v", err)
		}
		if hits != 5 {
			t.Errorf("expected breaker to short-circuit the 6th call, server saw %d", hits)
		}
	})

	t.Run("Unauthorized Does Not Trip Breaker", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := newClient("auth-breaker", server.URL, testOptions())
		for range 8 {
			err := c.get(context.Background(), "get", "/", nil, nil)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		}
		if hits != 8 {
			t.Errorf("expected every call to reach the server, got %d", hits)
		}
	})
}

func TestProviderError(t *testing.T) {
	err := newError("jellyfin", "list users", KindMalformedResponse, errors.New("bad json"))

	if !errors.Is(err, ErrMalformedResponse) {
		t.Error("expected errors.Is to match ErrMalformedResponse")
	}
	if errors.Is(err, ErrUnreachable) {
		t.Error("expected errors.Is not to match ErrUnreachable")
	}
	if errors.Is(err, shared.ErrServiceUnavailable) || errors.Is(err, shared.ErrTimeout) {
		t.Error("expected a malformed response not to read as unavailable")
	}
	if KindOf(err) != KindMalformedResponse {
		t.Errorf("expected malformed kind, got %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("expected zero kind for plain errors")
	}
	if got := err.Error(); got != "jellyfin list users: malformed: bad json" {
		t.Errorf("unexpected message %q", got)
	}
}
