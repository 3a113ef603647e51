package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/settings"
	"github.com/desertthunder/curatarr/internal/shared"
)

func visibleSettings(group map[string]settings.Setting) []settings.Setting {
	out := make([]settings.Setting, 0, len(group))
	for _, s := range group {
		if !s.Hidden {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// displayValue masks credentials in plain output.
func displayValue(s settings.Setting) string {
	if s.Value == nil {
		return "-"
	}
	v := fmt.Sprint(s.Value)
	if (strings.Contains(s.Key, "api_key") || strings.Contains(s.Key, "secret")) && len(v) > 4 {
		return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
	}
	return v
}

func (r *Runner) writeGroup(name string, group map[string]settings.Setting) {
	r.writePlain("[%s]\n", name)
	for _, s := range visibleSettings(group) {
		r.writePlain("  %-36s %s\n", s.Key, displayValue(s))
	}
}

// SettingsList prints every group.
func (r *Runner) SettingsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	all := make(map[string][]settings.Setting)
	for _, name := range r.settings.Groups() {
		group, err := r.settings.Group(ctx, name)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			all[name] = visibleSettings(group)
			continue
		}
		r.writeGroup(name, group)
		r.writePlain("\n")
	}

	if cmd.Bool("json") {
		return r.writeJSON(all, cmd.Bool("pretty"))
	}
	return nil
}

// SettingsGet prints a group or a single key.
func (r *Runner) SettingsGet(ctx context.Context, cmd *cli.Command) error {
	group := cmd.StringArg("group")
	if group == "" {
		return fmt.Errorf("%w: group", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if key := cmd.StringArg("key"); key != "" {
		s, err := r.settings.Get(ctx, group, key)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(s, cmd.Bool("pretty"))
		}
		return r.writePlain("%s\n", displayValue(s))
	}

	values, err := r.settings.Group(ctx, group)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(visibleSettings(values), cmd.Bool("pretty"))
	}
	r.writeGroup(group, values)
	return nil
}

// SettingsSet updates one key. Providers disabled by the update are reported.
func (r *Runner) SettingsSet(ctx context.Context, cmd *cli.Command) error {
	group, key := cmd.StringArg("group"), cmd.StringArg("key")
	if group == "" || key == "" {
		return fmt.Errorf("%w: group and key", shared.ErrMissingArgument)
	}

	var value any
	if !cmd.Bool("clear") {
		raw := cmd.StringArg("value")
		if raw == "" {
			return fmt.Errorf("%w: value (or --clear)", shared.ErrMissingArgument)
		}
		value = raw
	}

	if err := r.open(ctx); err != nil {
		return err
	}

	before := make(map[string]bool)
	for _, name := range r.settings.Groups() {
		before[name] = r.settings.Enabled(name)
	}

	updated, err := r.settings.Update(ctx, group, key, value)
	if err != nil {
		return err
	}

	r.logger.Info("setting updated", "group", group, "key", key)
	r.writePlain("✓ %s.%s = %s\n", group, key, displayValue(updated[key]))
	for _, name := range r.settings.Groups() {
		if name != group && before[name] && !r.settings.Enabled(name) {
			r.writePlain("  %s disabled (conflicts with %s)\n", name, group)
		}
	}
	return nil
}

// SettingsSchema prints field types and descriptions for one group, or all of them.
func (r *Runner) SettingsSchema(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	schemas := r.settings.Schemas()
	if name := cmd.StringArg("group"); name != "" {
		schema, ok := r.settings.Schema(name)
		if !ok {
			return fmt.Errorf("%w: settings group %q", settings.ErrNotFound, name)
		}
		schemas = []settings.GroupSchema{schema}
	}

	if cmd.Bool("json") {
		return r.writeJSON(schemas, cmd.Bool("pretty"))
	}

	for _, schema := range schemas {
		header := schema.Name
		if schema.IsProvider() {
			header = fmt.Sprintf("%s (%s, tier %s)", schema.Name, schema.Capabilities, schema.Tier)
		}
		r.writePlain("[%s]\n", header)
		for _, key := range schema.Keys() {
			f := schema.Fields[key]
			if f.Hidden {
				continue
			}
			required := ""
			if f.Required {
				required = " required"
			}
			r.writePlain("  %-36s %-6s%s  %s\n", key, f.Type, required, f.Description)
		}
		r.writePlain("\n")
	}
	return nil
}
