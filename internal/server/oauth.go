package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// OAuthResult is the outcome of one authorization code callback.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler receives the authorization code redirect for a library provider (Trakt) and exchanges the
// code for a token. Only the first callback is processed.
type OAuthHandler struct {
	config   *oauth2.Config
	state    string
	path     string
	provider string
	results  chan OAuthResult
	once     sync.Once

	mu  sync.Mutex
	hit bool
}

// NewOAuthHandler creates a handler for provider that serves its callback at path and expects state.
func NewOAuthHandler(config *oauth2.Config, provider, path, state string) *OAuthHandler {
	if path == "" {
		path = "/callback"
	}
	return &OAuthHandler{
		config:   config,
		state:    state,
		path:     path,
		provider: provider,
		results:  make(chan OAuthResult, 1),
	}
}

func (h *OAuthHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP checks the state parameter, exchanges the code, and publishes the result.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%s: invalid state parameter", h.provider)})
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.Send(OAuthResult{err: fmt.Errorf("%s: authorization denied: %s %s", h.provider, q.Get("error"), q.Get("error_description"))})
		http.Error(w, "authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("%s: token exchange failed: %w", h.provider, err)})
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}
	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>curatarr</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 20vh">
  <h1>%s authorized</h1>
  <p>You can close this window and return to the terminal.</p>
</body>
</html>
`, h.provider)
}

// Send publishes result once and closes the channel.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Fail ends the flow with err, e.g. when the callback server cannot listen.
func (h *OAuthHandler) Fail(err error) {
	h.Send(OAuthResult{err: err})
}

// Result returns a channel that receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

// Wait blocks until the callback completes or ctx ends.
func (h *OAuthHandler) Wait(ctx context.Context) (*oauth2.Token, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: waiting for authorization: %w", h.provider, ctx.Err())
	case res := <-h.results:
		if err := res.Error(); err != nil {
			return nil, err
		}
		return res.Token, nil
	}
}
