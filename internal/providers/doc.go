// Package providers defines the capability interfaces for external media services and implements them for each vendor.
//
// # Capabilities
//
// A provider implements one or more of:
//   - [Library] : users, favorites and watch history from a media server (jellyfin, plex, trakt)
//   - [Request] : quality profiles and title requests (radarr, sonarr directly, overseerr and jellyseerr as proxies)
//   - [Generation] : model listing and suggestion generation (gemini, ollama, openai)
//
// # Transport
//
// Every vendor client shares one transport that applies a per-call timeout, a [rate.Limiter] and a
// [gobreaker.CircuitBreaker]. Responses are decoded with goccy/go-json.
//
// Trakt authenticates with an [oauth2.Token] stored in its settings group; the [oauth2.Config] client refreshes it.
//
// # Error Handling
//
// Every operation returns a [*ProviderError] with one of three kinds:
//   - [ErrUnreachable] : transport failure, timeout, non-2xx status or an open breaker
//   - [ErrUnauthorized] : HTTP 401 or 403
//   - [ErrMalformedResponse] : the body could not be decoded into the expected shape
//
// Only unreachable errors count against the breaker.
//
// # Generation Output
//
// Generation providers are asked for {"suggestions": [...]} JSON and the text is decoded with [ParseCandidates].
// Candidates are returned raw; validation and deduplication belong to the recommendation pipeline.
package providers
