package prompts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingPlaceholder = errors.New("missing placeholder value")
	ErrMalformedTemplate  = errors.New("malformed template")
)

// Render substitutes {name} placeholders. {{ and }} produce literal braces.
func Render(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	err := walk(tmpl, func(lit string) { b.WriteString(lit) }, func(name string) error {
		v, ok := values[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingPlaceholder, name)
		}
		b.WriteString(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Placeholders lists the distinct names a template references, in order.
func Placeholders(tmpl string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	err := walk(tmpl, func(string) {}, func(name string) error {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		return nil
	})
	return out, err
}

func walk(tmpl string, lit func(string), field func(string) error) error {
	start := 0
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			lit(tmpl[start:i])
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				lit("{")
				i++
				start = i + 1
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return fmt.Errorf("%w: unclosed '{' at offset %d", ErrMalformedTemplate, i)
			}
			name := tmpl[i+1 : i+1+end]
			if !validName(name) {
				return fmt.Errorf("%w: bad placeholder %q at offset %d", ErrMalformedTemplate, name, i)
			}
			if err := field(name); err != nil {
				return err
			}
			i += end + 1
			start = i + 1
		case '}':
			lit(tmpl[start:i])
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				lit("}")
				i++
				start = i + 1
				continue
			}
			return fmt.Errorf("%w: single '}' at offset %d", ErrMalformedTemplate, i)
		}
	}
	lit(tmpl[start:])
	return nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
