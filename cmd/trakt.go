package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/server"
	"github.com/desertthunder/curatarr/internal/shared"
)

const defaultAuthTimeout = 5 * time.Minute

const traktGroup = "trakt"

// TraktAuth runs the authorization code flow against a local callback server and stores the token in the trakt
// settings group.
func (r *Runner) TraktAuth(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	values, err := r.settings.Values(traktGroup)
	if err != nil {
		return err
	}
	clientID, clientSecret := values.String("client_id"), values.String("client_secret")
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("%w: set trakt client_id and client_secret first", shared.ErrMissingCredentials)
	}

	addr := net.JoinHostPort("localhost", strconv.Itoa(cmd.Int("port")))
	config := providers.TraktOAuthConfig(providers.TraktConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  "http://" + addr + "/callback",
	})

	state, err := shared.GenerateState()
	if err != nil {
		return err
	}

	callback := server.NewOAuthHandler(config, traktGroup, "/callback", state)
	router := server.NewRouter(r.logger)
	router.Handler(callback)
	srv := server.NewHTTPServer(addr, router)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("callback server failed", "error", err)
			callback.Fail(err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	authURL := config.AuthCodeURL(state)
	r.writePlain("Open this URL to authorize curatarr with Trakt:\n\n%s\n\n", authURL)
	if !cmd.Bool("no-browser") {
		if err := shared.OpenBrowser(ctx, authURL); err != nil {
			r.logger.Warn("could not open browser", "error", err)
		}
	}
	r.writePlain("Waiting for the callback on %s...\n", addr)

	waitCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()
	token, err := callback.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	encoded, err := providers.EncodeTraktToken(token)
	if err != nil {
		return err
	}
	if _, err := r.settings.Update(ctx, traktGroup, "authorization", encoded); err != nil {
		return fmt.Errorf("failed to store trakt token: %w", err)
	}

	r.logger.Info("trakt authorized", "expires", token.Expiry)
	r.writePlain("✓ Trakt authorized\n")
	r.writePlain("Enable it with `curatarr settings set trakt enabled true`\n")
	return nil
}
