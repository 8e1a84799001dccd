package states

import "kiln/internal/arch"

// Part property keys that affect each step. Plugins add their own through
// WithPluginProperties.
var (
	pullProperties = []string{
		"source",
		"source-type",
		"source-branch",
		"source-commit",
		"source-tag",
		"source-depth",
		"source-subdir",
		"stage-packages",
		"plugin",
	}
	buildProperties = []string{
		"after",
		"build-attributes",
		"build-packages",
		"disable-parallel",
		"organize",
		"prepare",
		"build",
		"install",
	}
)

// Option adjusts how a state's properties of interest are projected.
type Option func(*options)

type options struct {
	pluginPull  []string
	pluginBuild []string
}

// WithPluginProperties adds plugin-declared property names to the pull and
// build projections.
func WithPluginProperties(pull, build []string) Option {
	return func(o *options) {
		o.pluginPull = append(o.pluginPull, pull...)
		o.pluginBuild = append(o.pluginBuild, build...)
	}
}

// PropertiesOfInterest projects a part's declared properties onto the keys
// that can change the output of step. Keys outside the projection never
// invalidate the step.
func PropertiesOfInterest(step Step, properties map[string]any, opts ...Option) map[string]any {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	out := make(map[string]any)
	switch step {
	case Pull:
		pick(out, properties, pullProperties, o.pluginPull)
	case Build:
		pick(out, properties, buildProperties, o.pluginBuild)
	case Stage:
		out["stage"] = orDefault(properties["stage"], []any{"*"})
		out["filesets"] = orDefault(properties["filesets"], map[string]any{})
	case Prime:
		out["snap"] = orDefault(properties["snap"], []any{"*"})
	}
	return out
}

// ProjectOptionsOfInterest projects the resolved target onto the options
// that can change the output of step. Staged and primed content no longer
// depends on the architecture, so those steps project nothing.
func ProjectOptionsOfInterest(step Step, target arch.Target) map[string]any {
	switch step {
	case Pull:
		return map[string]any{"deb_arch": target.DebArch}
	case Build:
		return map[string]any{
			"arch_triplet": target.Triplet,
			"deb_arch":     target.DebArch,
		}
	}
	return map[string]any{}
}

func pick(dst, src map[string]any, keyLists ...[]string) {
	for _, keys := range keyLists {
		for _, k := range keys {
			if v, ok := src[k]; ok {
				dst[k] = v
			}
		}
	}
}

// orDefault treats nil and empty collections as unset.
func orDefault(v any, def any) any {
	switch x := v.(type) {
	case nil:
		return def
	case []any:
		if len(x) == 0 {
			return def
		}
	case []string:
		if len(x) == 0 {
			return def
		}
	case map[string]any:
		if len(x) == 0 {
			return def
		}
	case string:
		if x == "" {
			return def
		}
	}
	return v
}
