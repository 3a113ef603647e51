package settings

import (
	"slices"

	"github.com/desertthunder/curatarr/internal/providers"
)

// ExclusivityRule states that enabling a group with Capability (and Tier, unless [providers.TierNone])
// disables every other enabled group with the same capability whose tier is in ExcludesTiers.
// An empty ExcludesTiers excludes every tier.
type ExclusivityRule struct {
	Capability    providers.Capability
	Tier          providers.RequestTier
	ExcludesTiers []providers.RequestTier
}

// DefaultRules allow one generation provider and keep request proxies and direct managers apart.
var DefaultRules = []ExclusivityRule{
	{Capability: providers.CapGeneration, Tier: providers.TierNone},
	{Capability: providers.CapRequest, Tier: providers.TierProxy, ExcludesTiers: []providers.RequestTier{providers.TierProxy, providers.TierDirect}},
	{Capability: providers.CapRequest, Tier: providers.TierDirect, ExcludesTiers: []providers.RequestTier{providers.TierProxy}},
}

func (r ExclusivityRule) matches(g GroupSchema) bool {
	if !g.Capabilities.Has(r.Capability) {
		return false
	}
	return r.Tier == providers.TierNone || r.Tier == "" || g.Tier == r.Tier
}

func (r ExclusivityRule) excludes(target, other GroupSchema) bool {
	if other.Name == target.Name || !other.Capabilities.Has(r.Capability) {
		return false
	}
	return len(r.ExcludesTiers) == 0 || slices.Contains(r.ExcludesTiers, other.Tier)
}

// conflicts returns the names of groups that must be disabled when target is enabled, sorted.
func conflicts(rules []ExclusivityRule, schemas map[string]GroupSchema, target GroupSchema) []string {
	var names []string
	for _, rule := range rules {
		if !rule.matches(target) {
			continue
		}
		for name, other := range schemas {
			if rule.excludes(target, other) && !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names
}
