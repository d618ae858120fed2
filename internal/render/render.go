// Package render turns catalog templates into file content.
//
// Rendering is a pure function of (template, context); it never touches
// the filesystem it is generating into. Parsed templates are cached, and
// the cache is safe for concurrent use.
package render

import (
	"bytes"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"
	"unicode"
)

// Error reports a failed render: a missing template, a parse failure, or
// an unresolvable variable. It aborts the whole plan before any staging
// write happens.
type Error struct {
	Template string
	Detail   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rendering template %q: %s", e.Template, e.Detail)
}

// Renderer renders templates with caching and built-in helper functions.
type Renderer struct {
	funcMap template.FuncMap
	cache   map[string]*template.Template
	mu      sync.RWMutex
}

// New creates a renderer with the built-in helper functions.
func New() *Renderer {
	return &Renderer{
		funcMap: defaultFuncMap(),
		cache:   make(map[string]*template.Template),
	}
}

// RenderFS renders a template file from a catalog filesystem.
func (r *Renderer) RenderFS(fsys fs.FS, path string, data any) ([]byte, error) {
	cacheKey := "fs:" + path

	r.mu.RLock()
	tmpl, ok := r.cache[cacheKey]
	r.mu.RUnlock()

	if !ok {
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, &Error{Template: path, Detail: fmt.Sprintf("reading: %v", err)}
		}
		tmpl, err = r.parse(path, string(raw))
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[cacheKey] = tmpl
		r.mu.Unlock()
	}

	return r.execute(tmpl, path, data)
}

// RenderString renders an inline template (mutation payloads). The name is
// used for caching and error messages.
func (r *Renderer) RenderString(name, templateStr string, data any) ([]byte, error) {
	cacheKey := "string:" + name + ":" + templateStr

	r.mu.RLock()
	tmpl, ok := r.cache[cacheKey]
	r.mu.RUnlock()

	if !ok {
		var err error
		tmpl, err = r.parse(name, templateStr)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[cacheKey] = tmpl
		r.mu.Unlock()
	}

	return r.execute(tmpl, name, data)
}

func (r *Renderer) parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(r.funcMap).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &Error{Template: name, Detail: err.Error()}
	}
	return tmpl, nil
}

func (r *Renderer) execute(tmpl *template.Template, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, &Error{Template: name, Detail: err.Error()}
	}
	return buf.Bytes(), nil
}

// defaultFuncMap returns the helper functions available to all templates.
func defaultFuncMap() template.FuncMap {
	return template.FuncMap{
		"pascalCase": PascalCase,
		"camelCase":  CamelCase,
		"snakeCase":  SnakeCase,
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"trim":       strings.TrimSpace,
		"join":       strings.Join,
		"replace":    strings.ReplaceAll,
		"hasPrefix":  strings.HasPrefix,
		"quote":      func(s string) string { return fmt.Sprintf("%q", s) },
	}
}

// PascalCase converts snake_case, kebab-case, or camelCase to PascalCase.
// Examples: auth-jwt → AuthJwt, user_name → UserName.
func PascalCase(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		return ""
	}
	for i, part := range parts {
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, "")
}

// CamelCase converts snake_case, kebab-case, or PascalCase to camelCase.
func CamelCase(s string) string {
	p := PascalCase(s)
	if p == "" {
		return ""
	}
	return strings.ToLower(p[:1]) + p[1:]
}

// SnakeCase converts PascalCase or camelCase to snake_case; kebab-case
// becomes snake_case too.
func SnakeCase(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "-", "_")
	if strings.Contains(s, "_") {
		return strings.ToLower(s)
	}

	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := rune(s[i-1])
				if unicode.IsLower(prev) {
					b.WriteRune('_')
				} else if i+1 < len(s) && unicode.IsLower(rune(s[i+1])) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
