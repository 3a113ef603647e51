// Package server provides the HTTP API, routing, middleware, and OAuth handling.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [ChiRouter] implements it over a [chi.Mux], so route patterns may carry {params}.
// [Middleware] is applied in the order it is added.
//
// # API
//
// [API] registers the JSON endpoints under /api plus /metrics and /healthz. Handlers decode bodies
// with goccy/go-json, validate them with go-playground/validator, and map errors to status codes
// through [StatusFor].
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback used by "trakt auth".
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel. It only processes one callback to prevent replay attacks.
//
// # Supervision
//
// [HTTPService] and [SchedulerService] adapt the HTTP server and the job scheduler to suture services
// so "serve" can restart either one independently.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
