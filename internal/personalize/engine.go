// Package personalize renders campaign subject and content templates for a
// single recipient using the Liquid template language.
//
// Rendering is lax: a missing field substitutes as the empty string so raw
// placeholders never leak into a delivered message, and a template that
// fails to parse falls back to its literal text. Rendering placeholder-free
// text is a no-op, so re-rendering already-rendered output is safe.
package personalize

import (
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/luisant/mailcore/internal/domain"
)

// Engine renders Liquid templates with per-template parse caching.
// Safe for concurrent use.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// New creates a personalization engine with the standard filters plus a
// `default` filter for fallback values.
func New() *Engine {
	e := &Engine{engine: liquid.NewEngine()}

	// {{ firstName | default: "there" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s, ok := value.(string); ok && s == "" {
			return defaultVal
		}
		return value
	})

	return e
}

// Render substitutes the recipient's fields into the template. It never
// returns an error: parse or render failures fall back to the raw template.
func (e *Engine) Render(tmpl string, r *domain.Recipient) string {
	return e.RenderBindings(tmpl, Bindings(r))
}

// RenderBindings renders the template against an explicit binding map.
func (e *Engine) RenderBindings(tmpl string, bindings map[string]interface{}) string {
	if tmpl == "" || !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	parsed, err := e.parse(tmpl)
	if err != nil {
		return tmpl
	}
	out, err := parsed.RenderString(bindings)
	if err != nil {
		return tmpl
	}
	return out
}

func (e *Engine) parse(tmpl string) (*liquid.Template, error) {
	if cached, ok := e.cache.Load(tmpl); ok {
		return cached.(*liquid.Template), nil
	}
	parsed, err := e.engine.ParseString(tmpl)
	if err != nil {
		return nil, err
	}
	e.cache.Store(tmpl, parsed)
	return parsed, nil
}

// Bindings builds the render context for a recipient: the well-known
// fields plus any custom fields. Custom fields never shadow the well-known
// names.
func Bindings(r *domain.Recipient) map[string]interface{} {
	b := make(map[string]interface{}, len(r.CustomFields)+3)
	for k, v := range r.CustomFields {
		b[k] = v
	}
	b["firstName"] = deref(r.FirstName)
	b["lastName"] = deref(r.LastName)
	b["email"] = r.Email
	return b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
