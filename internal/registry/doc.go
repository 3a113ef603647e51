// Package registry describes every provider known to the settings engine and builds the concrete
// [providers.Library], [providers.Request] and [providers.Generation] implementations from their current settings.
//
// Enablement always goes through [settings.Engine.Update], so exclusivity between providers is enforced in one place.
// Built providers are cached per group and rebuilt when the group's settings change.
package registry
