package registry

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/settings"
	"github.com/desertthunder/curatarr/internal/shared"
)

var (
	ErrUnknownProvider   = fmt.Errorf("%w: unknown provider", shared.ErrNotFound)
	ErrNoProviderEnabled = fmt.Errorf("no provider enabled")
	ErrMissingCapability = fmt.Errorf("provider lacks capability")
)

// Descriptor is a provider as seen through its settings group.
type Descriptor struct {
	Name         string                `json:"name"`
	Capabilities providers.Capability  `json:"-"`
	Enabled      bool                  `json:"enabled"`
	Tier         providers.RequestTier `json:"tier"`
	Fields       []settings.FieldSpec  `json:"fields"`
}

type cached struct {
	provider any
	group    settings.Values
	app      settings.Values
	buildErr error
}

// Registry resolves providers by name or capability.
type Registry struct {
	settings *settings.Engine
	factory  Factory
	logger   *log.Logger

	mu     sync.Mutex
	cache  map[string]cached
	models map[string][]string

	unsubscribe func()
}

// New creates a registry over engine and subscribes to its changes. Call [Registry.Close] to unsubscribe.
func New(engine *settings.Engine, factory Factory, logger *log.Logger) *Registry {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	r := &Registry{
		settings: engine,
		factory:  factory,
		logger:   shared.WithLogger(logger, "component", "registry"),
		cache:    make(map[string]cached),
		models:   make(map[string][]string),
	}
	r.unsubscribe = engine.Subscribe(r.onChange)
	return r
}

// Close stops listening for settings changes.
func (r *Registry) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

func (r *Registry) onChange(c settings.Change) {
	r.mu.Lock()
	delete(r.cache, c.Group)
	r.mu.Unlock()

	schema, ok := r.settings.Schema(c.Group)
	if !ok || c.Key != settings.EnabledKey || !schema.Capabilities.Has(providers.CapGeneration) {
		return
	}
	if on, _ := c.New.(bool); !on {
		return
	}

	if _, err := r.RefreshModels(context.Background(), c.Group); err != nil {
		r.logger.Warn("model refresh failed", "provider", c.Group, "error", err)
	}
}

func (r *Registry) descriptor(s settings.GroupSchema) Descriptor {
	fields := make([]settings.FieldSpec, 0, len(s.Fields))
	for _, key := range s.Keys() {
		fields = append(fields, s.Fields[key])
	}
	return Descriptor{
		Name:         s.Name,
		Capabilities: s.Capabilities,
		Enabled:      r.settings.Enabled(s.Name),
		Tier:         s.Tier,
		Fields:       fields,
	}
}

// Descriptors returns every provider, enabled or not, sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	var out []Descriptor
	for _, s := range r.settings.Schemas() {
		if s.IsProvider() {
			out = append(out, r.descriptor(s))
		}
	}
	return out
}

// Descriptor returns one provider, enabled or not.
func (r *Registry) Descriptor(name string) (Descriptor, error) {
	s, ok := r.settings.Schema(name)
	if !ok || !s.IsProvider() {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return r.descriptor(s), nil
}

// ProvidersWithCapability returns the enabled providers holding cap, sorted by name.
func (r *Registry) ProvidersWithCapability(cap providers.Capability) []Descriptor {
	var out []Descriptor
	for _, d := range r.Descriptors() {
		if d.Enabled && d.Capabilities.Has(cap) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEnabled toggles a provider through the settings engine, which disables conflicting providers.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	if _, err := r.Descriptor(name); err != nil {
		return err
	}
	_, err := r.settings.Update(ctx, name, settings.EnabledKey, enabled)
	return err
}

// build returns the cached provider for name, rebuilding it when the group or app values differ from
// the ones it was built with.
func (r *Registry) build(ctx context.Context, name string) (any, error) {
	if _, err := r.Descriptor(name); err != nil {
		return nil, err
	}

	group, err := r.settings.Values(name)
	if err != nil {
		return nil, err
	}
	app, err := r.settings.Values(settings.AppGroup)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache[name]; ok && maps.Equal(c.group, group) && maps.Equal(c.app, app) {
		return c.provider, c.buildErr
	}

	p, err := r.factory(ctx, name, group, app)
	if err != nil {
		err = fmt.Errorf("%w: failed to build %s: %w", shared.ErrInvalidConfig, name, err)
	}
	r.cache[name] = cached{provider: p, group: group, app: app, buildErr: err}
	return p, err
}

// Library returns the library provider called name.
func (r *Registry) Library(ctx context.Context, name string) (providers.Library, error) {
	p, err := r.build(ctx, name)
	if err != nil {
		return nil, err
	}
	lib, ok := p.(providers.Library)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a library provider", ErrMissingCapability, name)
	}
	return lib, nil
}

// Request returns the request provider called name.
func (r *Registry) Request(ctx context.Context, name string) (providers.Request, error) {
	p, err := r.build(ctx, name)
	if err != nil {
		return nil, err
	}
	req, ok := p.(providers.Request)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a request provider", ErrMissingCapability, name)
	}
	return req, nil
}

// Generation returns the generation provider called name.
func (r *Registry) Generation(ctx context.Context, name string) (providers.Generation, error) {
	p, err := r.build(ctx, name)
	if err != nil {
		return nil, err
	}
	gen, ok := p.(providers.Generation)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a generation provider", ErrMissingCapability, name)
	}
	return gen, nil
}

// ActiveGeneration returns the enabled generation provider.
func (r *Registry) ActiveGeneration(ctx context.Context) (providers.Generation, error) {
	enabled := r.ProvidersWithCapability(providers.CapGeneration)
	if len(enabled) == 0 {
		return nil, fmt.Errorf("%w: no generation provider is enabled", ErrNoProviderEnabled)
	}
	return r.Generation(ctx, enabled[0].Name)
}

// Metadata returns the metadata provider called name.
func (r *Registry) Metadata(ctx context.Context, name string) (providers.Metadata, error) {
	p, err := r.build(ctx, name)
	if err != nil {
		return nil, err
	}
	md, ok := p.(providers.Metadata)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a metadata provider", ErrMissingCapability, name)
	}
	return md, nil
}

// ActiveMetadata returns the first enabled metadata provider.
func (r *Registry) ActiveMetadata(ctx context.Context) (providers.Metadata, error) {
	enabled := r.ProvidersWithCapability(providers.CapMetadata)
	if len(enabled) == 0 {
		return nil, fmt.Errorf("%w: no metadata provider is enabled", ErrNoProviderEnabled)
	}
	return r.Metadata(ctx, enabled[0].Name)
}

// Models returns the cached model list of a generation provider.
func (r *Registry) Models(name string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[name]
	return m, ok
}

// RefreshModels lists the models of a generation provider and caches the result.
func (r *Registry) RefreshModels(ctx context.Context, name string) ([]string, error) {
	gen, err := r.Generation(ctx, name)
	if err != nil {
		return nil, err
	}

	list, err := gen.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.models[name] = list
	r.mu.Unlock()
	r.logger.Debug("refreshed models", "provider", name, "count", len(list))
	return list, nil
}
