// Package template renders campaign templates against contact merge
// fields and persists the last-used template per sender.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/outreach/internal/pkg/logger"
)

// tokenPattern matches a single-brace merge token. Any content except
// braces counts as a token name, spaces and punctuation included; a
// stray "{" without a closing brace passes through verbatim.
var tokenPattern = regexp.MustCompile(`\{([^{}]*?)\}`)

// liquidPattern detects Liquid syntax so plain brace-only templates skip
// the Liquid engine entirely.
var liquidPattern = regexp.MustCompile(`\{\{.*?\}\}|\{%.*?%\}`)

// Renderer merges contact attributes into subject and body templates.
// Templates may use Liquid ({{ name }}, {% if %}) which is rendered
// first, then the legacy single-brace {token} form. Rendering a template
// with no tokens is the identity.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template string -> *liquid.Template
}

func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}

	// {{ first_name | default: "Friend" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return defaultVal
		}
		return value
	})
	return r
}

// Render substitutes attrs into tpl. Unknown single-brace tokens render
// as "[token not found]"; nil attribute values render as empty strings.
// Liquid errors degrade to the raw template rather than failing a send.
func (r *Renderer) Render(tpl string, attrs map[string]interface{}) string {
	out := tpl
	if liquidPattern.MatchString(out) {
		out = r.renderLiquid(out, attrs)
	}
	return mergeTokens(out, attrs)
}

// mergeTokens substitutes every single-brace token. Matches that are
// part of Liquid syntax (doubled braces, {% tags %}) only reach this
// point when the Liquid pass degraded to the raw template; those are
// left untouched.
func mergeTokens(out string, attrs map[string]interface{}) string {
	matches := tokenPattern.FindAllStringSubmatchIndex(out, -1)
	if len(matches) == 0 {
		return out
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		name := out[m[2]:m[3]]
		if strings.HasPrefix(name, "%") ||
			(start > 0 && out[start-1] == '{') ||
			(end < len(out) && out[end] == '}') {
			continue
		}
		b.WriteString(out[last:start])
		b.WriteString(tokenValue(name, attrs))
		last = end
	}
	b.WriteString(out[last:])
	return b.String()
}

func tokenValue(name string, attrs map[string]interface{}) string {
	val, ok := attrs[name]
	if !ok {
		return "[" + name + " not found]"
	}
	if val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}

func (r *Renderer) renderLiquid(tpl string, attrs map[string]interface{}) string {
	var parsed *liquid.Template
	if cached, ok := r.cache.Load(tpl); ok {
		parsed = cached.(*liquid.Template)
	} else {
		var err error
		parsed, err = r.engine.ParseString(tpl)
		if err != nil {
			logger.Warn("liquid parse failed, using raw template", "error", err.Error())
			return tpl
		}
		r.cache.Store(tpl, parsed)
	}

	out, err := parsed.RenderString(attrs)
	if err != nil {
		logger.Warn("liquid render failed, using raw template", "error", err.Error())
		return tpl
	}
	return out
}
