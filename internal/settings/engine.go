// Package settings holds typed, persisted configuration for the application and every provider group,
// and enforces the exclusivity constraints between providers.
package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

// EnabledKey is the key every provider group uses to toggle the provider.
const EnabledKey = "enabled"

// Store persists setting values.
type Store interface {
	LoadAll(ctx context.Context) ([]models.SettingRecord, error)
	Save(ctx context.Context, rec models.SettingRecord) error
}

// Setting is a value together with its schema metadata.
type Setting struct {
	Group       string    `json:"group"`
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Hidden      bool      `json:"hidden"`
}

// Change describes one persisted value change. Cascade is set for changes made to satisfy a constraint.
type Change struct {
	Group   string
	Key     string
	Old     any
	New     any
	Cascade bool
}

// Engine owns all setting values. It is the only writer of provider enablement.
type Engine struct {
	store   Store
	schemas map[string]GroupSchema
	rules   []ExclusivityRule
	logger  *log.Logger

	// locks and values have one entry per group, fixed at construction.
	locks  map[string]*sync.RWMutex
	values map[string]map[string]any

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// Option configures an [Engine].
type Option func(*Engine)

// WithRules replaces [DefaultRules].
func WithRules(rules []ExclusivityRule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine for the given schemas. Values start at their defaults until [Engine.Seed] or [Engine.Load] runs.
func New(store Store, schemas []GroupSchema, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		schemas: make(map[string]GroupSchema, len(schemas)),
		rules:   DefaultRules,
		locks:   make(map[string]*sync.RWMutex, len(schemas)),
		values:  make(map[string]map[string]any, len(schemas)),
		subs:    make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = shared.NewLogger(nil)
	}
	e.logger = shared.WithLogger(e.logger, "component", "settings")

	for _, s := range schemas {
		e.schemas[s.Name] = s
		e.locks[s.Name] = &sync.RWMutex{}
		vals := make(map[string]any, len(s.Fields))
		for k, f := range s.Fields {
			vals[k] = f.Default
		}
		e.values[s.Name] = vals
	}
	return e
}

// Load replaces cached values with the persisted ones. Unknown keys are ignored and values that no longer
// coerce fall back to their defaults.
func (e *Engine) Load(ctx context.Context) error {
	_, err := e.load(ctx)
	return err
}

func (e *Engine) load(ctx context.Context) (map[string]map[string]bool, error) {
	records, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	present := make(map[string]map[string]bool)
	for _, rec := range records {
		schema, ok := e.schemas[rec.Group]
		if !ok {
			continue
		}
		spec, ok := schema.Fields[rec.Key]
		if !ok {
			continue
		}

		v, err := coerceStored(spec, rec.Value)
		if err != nil {
			e.logger.Warn("ignoring stored setting", "group", rec.Group, "key", rec.Key, "error", err)
			continue
		}

		if present[rec.Group] == nil {
			present[rec.Group] = make(map[string]bool)
		}
		present[rec.Group][rec.Key] = true

		lock := e.locks[rec.Group]
		lock.Lock()
		e.values[rec.Group][rec.Key] = v
		lock.Unlock()
	}
	return present, nil
}

// coerceStored is [Coerce] without the required check: stored nils are legitimate unset values.
func coerceStored(spec FieldSpec, v any) (any, error) {
	spec.Required = false
	return Coerce(spec, v)
}

// Seed persists defaults for every missing key, then applies {GROUP}_{KEY} environment overrides through [Engine.Update].
// Invalid overrides are logged and skipped.
func (e *Engine) Seed(ctx context.Context) error {
	present, err := e.load(ctx)
	if err != nil {
		return err
	}

	for _, name := range e.Groups() {
		schema := e.schemas[name]
		for _, key := range schema.Keys() {
			if present[name][key] {
				continue
			}
			rec := models.SettingRecord{Group: name, Key: key, Value: schema.Fields[key].Default}
			if err := e.store.Save(ctx, rec); err != nil {
				return fmt.Errorf("%w: seeding %s.%s: %v", ErrPersistence, name, key, err)
			}
		}
	}

	for _, name := range e.Groups() {
		for _, key := range e.schemas[name].Keys() {
			raw, ok := shared.LookupSettingEnv(name, key)
			if !ok {
				continue
			}
			if _, err := e.Update(ctx, name, key, raw); err != nil {
				e.logger.Warn("skipping environment override", "env", shared.EnvKey(name, key), "error", err)
				continue
			}
			e.logger.Debug("applied environment override", "env", shared.EnvKey(name, key))
		}
	}
	return nil
}

// Groups returns every group name, sorted.
func (e *Engine) Groups() []string {
	names := make([]string, 0, len(e.schemas))
	for name := range e.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the schema of a group.
func (e *Engine) Schema(group string) (GroupSchema, bool) {
	s, ok := e.schemas[group]
	return s, ok
}

// Schemas returns every group schema sorted by name.
func (e *Engine) Schemas() []GroupSchema {
	out := make([]GroupSchema, 0, len(e.schemas))
	for _, name := range e.Groups() {
		out = append(out, e.schemas[name])
	}
	return out
}

func (e *Engine) spec(group, key string) (GroupSchema, FieldSpec, error) {
	schema, ok := e.schemas[group]
	if !ok {
		return GroupSchema{}, FieldSpec{}, fmt.Errorf("%w: unknown group %q", ErrNotFound, group)
	}
	spec, ok := schema.Fields[key]
	if !ok {
		return GroupSchema{}, FieldSpec{}, fmt.Errorf("%w: unknown key %s.%s", ErrNotFound, group, key)
	}
	return schema, spec, nil
}

func setting(group string, spec FieldSpec, v any) Setting {
	return Setting{
		Group:       group,
		Key:         spec.Key,
		Value:       v,
		Type:        spec.Type,
		Description: spec.Description,
		Required:    spec.Required,
		Hidden:      spec.Hidden,
	}
}

// Get returns one setting.
func (e *Engine) Get(_ context.Context, group, key string) (Setting, error) {
	_, spec, err := e.spec(group, key)
	if err != nil {
		return Setting{}, err
	}

	lock := e.locks[group]
	lock.RLock()
	defer lock.RUnlock()
	return setting(group, spec, e.values[group][key]), nil
}

// Group returns every setting of a group keyed by setting key.
func (e *Engine) Group(_ context.Context, group string) (map[string]Setting, error) {
	if _, ok := e.schemas[group]; !ok {
		return nil, fmt.Errorf("%w: unknown group %q", ErrNotFound, group)
	}

	lock := e.locks[group]
	lock.RLock()
	defer lock.RUnlock()
	return e.snapshot(group), nil
}

// snapshot copies a group; the caller holds the group lock.
func (e *Engine) snapshot(group string) map[string]Setting {
	schema := e.schemas[group]
	out := make(map[string]Setting, len(schema.Fields))
	for key, spec := range schema.Fields {
		out[key] = setting(group, spec, e.values[group][key])
	}
	return out
}

// Values returns a plain copy of a group's values.
func (e *Engine) Values(group string) (Values, error) {
	if _, ok := e.schemas[group]; !ok {
		return nil, fmt.Errorf("%w: unknown group %q", ErrNotFound, group)
	}

	lock := e.locks[group]
	lock.RLock()
	defer lock.RUnlock()
	out := make(Values, len(e.values[group]))
	for k, v := range e.values[group] {
		out[k] = v
	}
	return out, nil
}

// Enabled reports whether a provider group is enabled.
func (e *Engine) Enabled(group string) bool {
	v, err := e.Values(group)
	if err != nil {
		return false
	}
	return v.Bool(EnabledKey)
}

// Update coerces and persists one value and returns the group as it is after the update.
//
// Enabling a provider disables every provider it conflicts with in the same operation. The locks of the
// target group and of every group it can conflict with are held for the whole operation, acquired in
// name order. On any failure nothing changes: cascades already written are restored.
func (e *Engine) Update(ctx context.Context, group, key string, raw any) (map[string]Setting, error) {
	schema, spec, err := e.spec(group, key)
	if err != nil {
		return nil, err
	}

	value, err := Coerce(spec, raw)
	if err != nil {
		return nil, err
	}

	var candidates []string
	if key == EnabledKey && schema.IsProvider() {
		candidates = conflicts(e.rules, e.schemas, schema)
	}

	lockSet := append([]string{group}, candidates...)
	slices.Sort(lockSet)
	for _, name := range lockSet {
		e.locks[name].Lock()
	}
	defer func() {
		for i := len(lockSet) - 1; i >= 0; i-- {
			e.locks[lockSet[i]].Unlock()
		}
	}()

	old := e.values[group][key]

	var cascades []string
	if enabling, _ := value.(bool); enabling {
		for _, name := range candidates {
			if on, _ := e.values[name][EnabledKey].(bool); on {
				cascades = append(cascades, name)
			}
		}
	}

	var written []string
	restore := func() {
		for _, name := range written {
			rec := models.SettingRecord{Group: name, Key: EnabledKey, Value: true}
			if err := e.store.Save(ctx, rec); err != nil {
				e.logger.Error("failed to restore cascaded setting", "group", name, "error", err)
			}
		}
	}

	for _, name := range cascades {
		rec := models.SettingRecord{Group: name, Key: EnabledKey, Value: false}
		if err := e.store.Save(ctx, rec); err != nil {
			restore()
			return nil, fmt.Errorf("%w: disabling %s for %s: %v", ErrConstraintViolation, name, group, err)
		}
		written = append(written, name)
	}

	if err := e.store.Save(ctx, models.SettingRecord{Group: group, Key: key, Value: value}); err != nil {
		restore()
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrPersistence, group, key, err)
	}

	changes := make([]Change, 0, len(cascades)+1)
	for _, name := range cascades {
		e.values[name][EnabledKey] = false
		changes = append(changes, Change{Group: name, Key: EnabledKey, Old: true, New: false, Cascade: true})
	}
	e.values[group][key] = value
	changes = append(changes, Change{Group: group, Key: key, Old: old, New: value})

	if len(cascades) > 0 {
		e.logger.Info("disabled conflicting providers", "enabled", group, "disabled", cascades)
	}

	e.notify(changes)
	return e.snapshot(group), nil
}

// Subscribe registers fn to receive every change. Each change is delivered on its own goroutine.
// The returned function removes the subscription.
func (e *Engine) Subscribe(fn func(Change)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) notify(changes []Change) {
	e.subMu.Lock()
	subs := make([]func(Change), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()

	for _, fn := range subs {
		for _, c := range changes {
			go fn(c)
		}
	}
}

// IsUserError reports whether err was caused by the caller's input rather than the store.
func IsUserError(err error) bool {
	return errors.Is(err, ErrTypeMismatch) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConstraintViolation)
}
