package actions

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Params holds form values keyed by field name, exactly as submitted.
type Params map[string]string

// ParamsFrom flattens decoded form signals into Params. Nested values are
// kept as their JSON text.
func ParamsFrom(signals map[string]any) Params {
	p := Params{}
	for k, v := range signals {
		switch x := v.(type) {
		case nil:
		case string:
			p[k] = x
		case bool:
			p[k] = strconv.FormatBool(x)
		case float64:
			p[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case json.Number:
			p[k] = x.String()
		default:
			b, err := json.Marshal(x)
			if err == nil {
				p[k] = string(b)
			}
		}
	}
	return p
}

// Raw returns the value untouched.
func (p Params) Raw(key string) string {
	return p[key]
}

// Text returns the value with surrounding whitespace removed.
func (p Params) Text(key string) string {
	return strings.TrimSpace(p[key])
}

var (
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// Int parses a leading integer ("12abc" is 12). Unparseable or zero values
// yield def, matching the `parseInt(x) || def` idiom of the form.
func (p Params) Int(key string, def int) int {
	m := intPrefix.FindString(p.Text(key))
	if m == "" {
		return def
	}
	n, err := strconv.Atoi(m)
	if err != nil || n == 0 {
		return def
	}
	return n
}

// Float parses a leading decimal; unparseable or zero values yield def.
func (p Params) Float(key string, def float64) float64 {
	m := floatPrefix.FindString(p.Text(key))
	if m == "" {
		return def
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || f == 0 {
		return def
	}
	return f
}

// Bool is true only for the literal "true".
func (p Params) Bool(key string) bool {
	return p.Text(key) == "true"
}

// Query builds a query string from field->param pairs, skipping blank fields.
func (p Params) Query(pairs ...[2]string) url.Values {
	q := url.Values{}
	for _, pair := range pairs {
		if v := p.Raw(pair[0]); strings.TrimSpace(v) != "" {
			q.Set(pair[1], v)
		}
	}
	return q
}
