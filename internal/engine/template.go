package engine

import (
	"fmt"
	"regexp"
	"strings"

	"flowconsole/backend/pkg/models"
)

// templateRe matches `{{ source.path.to.value }}` references inside config
// strings. The source is either `trigger` or the name of an earlier node.
var templateRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// templateContext is the data visible to templated config values: the
// original trigger input plus the outputs of every previously executed node,
// keyed by node name.
type templateContext struct {
	trigger map[string]any
	nodes   map[string]map[string]any
	// latest is the most recent previous output, the default target for
	// unqualified gate field paths.
	latest map[string]any
}

func newTemplateContext(previous []models.NodeResult, triggerInput map[string]any) templateContext {
	tc := templateContext{
		trigger: triggerInput,
		nodes:   make(map[string]map[string]any, len(previous)),
	}
	for _, r := range previous {
		tc.nodes[r.NodeName] = r.Output
	}
	if len(previous) > 0 {
		tc.latest = previous[len(previous)-1].Output
	}
	return tc
}

// resolveValue walks a decoded config value and substitutes template
// references. A string that is exactly one reference resolves to the raw
// referenced value, preserving its type; references embedded in a longer
// string are interpolated as text. Unresolvable references are left intact.
func (tc templateContext) resolveValue(v any) any {
	switch val := v.(type) {
	case string:
		return tc.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = tc.resolveValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = tc.resolveValue(item)
		}
		return out
	default:
		return v
	}
}

func (tc templateContext) resolveString(s string) any {
	// Whole-string reference keeps the referenced value's type.
	if m := templateRe.FindStringSubmatch(s); m != nil && m[0] == s {
		if resolved, ok := tc.lookup(m[1]); ok {
			return resolved
		}
		return s
	}

	return templateRe.ReplaceAllStringFunc(s, func(match string) string {
		ref := templateRe.FindStringSubmatch(match)[1]
		if resolved, ok := tc.lookup(ref); ok {
			return fmt.Sprintf("%v", resolved)
		}
		return match
	})
}

// lookup resolves a dotted reference like `trigger.user.id` or
// `Fetch Order.body.total`.
func (tc templateContext) lookup(ref string) (any, bool) {
	parts := strings.Split(ref, ".")
	if len(parts) == 0 {
		return nil, false
	}

	if parts[0] == "trigger" {
		return lookupPath(tc.trigger, parts[1:])
	}

	// Node names may themselves contain dots; prefer the longest name match.
	for i := len(parts); i >= 1; i-- {
		name := strings.Join(parts[:i], ".")
		if output, ok := tc.nodes[name]; ok {
			return lookupPath(output, parts[i:])
		}
	}
	return nil, false
}

// lookupPath descends through nested maps following the path segments.
func lookupPath(root map[string]any, path []string) (any, bool) {
	var current any = root
	for _, seg := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
