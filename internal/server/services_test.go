package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/desertthunder/curatarr/internal/shared"
)

type fakeListenServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
}

func newFakeListenServer(listenErr error) *fakeListenServer {
	return &fakeListenServer{listenErr: listenErr, stop: make(chan struct{})}
}

func (f *fakeListenServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeListenServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.stop)
	return nil
}

type fakeLoop struct {
	startErr       error
	started, stops atomic.Int32
}

func (f *fakeLoop) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Add(1)
	return nil
}

func (f *fakeLoop) Stop() error {
	f.stops.Add(1)
	return nil
}

func TestHTTPService(t *testing.T) {
	t.Run("shuts down when the context ends", func(t *testing.T) {
		srv := newFakeListenServer(nil)
		svc := NewHTTPService(srv, time.Second)
		assert.Equal(t, "http-server", svc.String())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
		assert.EqualValues(t, 1, srv.shutdowns.Load())
	})

	t.Run("listen failure", func(t *testing.T) {
		srv := newFakeListenServer(errors.New("address in use"))
		err := NewHTTPService(srv, 0).Serve(context.Background())
		assert.ErrorContains(t, err, "address in use")
	})
}

func TestSchedulerService(t *testing.T) {
	loop := &fakeLoop{}
	svc := NewSchedulerService(loop)
	assert.Equal(t, "scheduler", svc.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Serve(ctx), context.Canceled)
	assert.EqualValues(t, 1, loop.started.Load())
	assert.EqualValues(t, 1, loop.stops.Load())

	failing := &fakeLoop{startErr: errors.New("already running")}
	assert.ErrorContains(t, NewSchedulerService(failing).Serve(context.Background()), "already running")
	assert.Zero(t, failing.stops.Load())
}

func TestSupervisor(t *testing.T) {
	root := NewSupervisor(shared.NewLogger(nil), time.Second)
	loop := &fakeLoop{}
	root.Add(NewSchedulerService(loop))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := root.ServeBackground(ctx)
	require.Eventually(t, func() bool { return loop.started.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-errCh
	assert.EqualValues(t, 1, loop.stops.Load())
}

func TestOAuthHandler(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","refresh_token":"def","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokens.Close()

	config := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokens.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	serve := func(h *OAuthHandler, query string) int {
		router := NewRouter(shared.NewLogger(nil))
		router.Handler(h)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
		return rec.Code
	}
	wait := func(h *OAuthHandler) (*oauth2.Token, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return h.Wait(ctx)
	}

	t.Run("exchanges the code once", func(t *testing.T) {
		h := NewOAuthHandler(config, "trakt", "", "s1")
		assert.Equal(t, []string{"/callback"}, h.Routes())
		assert.Equal(t, http.StatusOK, serve(h, "state=s1&code=good"))

		token, err := wait(h)
		require.NoError(t, err)
		assert.Equal(t, "abc", token.AccessToken)
		assert.Equal(t, "def", token.RefreshToken)

		assert.Equal(t, http.StatusBadRequest, serve(h, "state=s1&code=good"))
	})

	t.Run("state mismatch", func(t *testing.T) {
		h := NewOAuthHandler(config, "trakt", "", "s1")
		assert.Equal(t, http.StatusBadRequest, serve(h, "state=other&code=good"))
		_, err := wait(h)
		assert.ErrorContains(t, err, "invalid state")
	})

	t.Run("denied", func(t *testing.T) {
		h := NewOAuthHandler(config, "trakt", "", "s1")
		assert.Equal(t, http.StatusBadRequest, serve(h, "state=s1&error=access_denied"))
		_, err := wait(h)
		assert.ErrorContains(t, err, "access_denied")
	})

	t.Run("exchange failure", func(t *testing.T) {
		h := NewOAuthHandler(config, "trakt", "", "s1")
		assert.Equal(t, http.StatusBadGateway, serve(h, "state=s1&code=bad"))
		_, err := wait(h)
		assert.ErrorContains(t, err, "token exchange failed")
	})

	t.Run("wait times out", func(t *testing.T) {
		h := NewOAuthHandler(config, "trakt", "/oauth/trakt", "s1")
		assert.Equal(t, []string{"/oauth/trakt"}, h.Routes())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := h.Wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
