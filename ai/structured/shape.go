package structured

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/teranos/featsmith/errors"
)

// Shape lists the keys a reply object must carry, each with a string value.
type Shape struct {
	keys []string
}

// NewShape builds a shape from distinct, non-empty keys
func NewShape(keys ...string) (Shape, error) {
	if len(keys) == 0 {
		return Shape{}, errors.NewInvalidRequestError("shape needs at least one key")
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return Shape{}, errors.NewInvalidRequestError("shape key is empty")
		}
		if seen[k] {
			return Shape{}, errors.NewInvalidRequestError("duplicate shape key %q", k)
		}
		seen[k] = true
	}
	return Shape{keys: append([]string(nil), keys...)}, nil
}

// MustShape is NewShape for package-level shapes
func MustShape(keys ...string) Shape {
	s, err := NewShape(keys...)
	if err != nil {
		panic(err)
	}
	return s
}

// Keys returns the keys in declaration order
func (s Shape) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Format renders the example object shown to the model, e.g.
// {"move_code": "FILL_IN_CODE"}.
func (s Shape) Format() string {
	var b strings.Builder
	b.WriteString("{")
	for i, k := range s.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		key, _ := json.Marshal(k)
		b.Write(key)
		b.WriteString(`: "`)
		b.WriteString(placeholder(k))
		b.WriteString(`"`)
	}
	b.WriteString("}")
	return b.String()
}

// placeholder names the value the model fills in: the last underscore
// segment of the key, upper-cased.
func placeholder(key string) string {
	if i := strings.LastIndex(key, "_"); i >= 0 && i < len(key)-1 {
		key = key[i+1:]
	}
	return "FILL_IN_" + strings.ToUpper(key)
}

// Validate parses raw as a JSON object and extracts every key of the shape.
// Extra keys are ignored. Errors are marked ErrMalformedResponse.
func (s Shape) Validate(raw string) (map[string]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "reply is not a JSON object"), errors.ErrMalformedResponse)
	}

	fields := make(map[string]string, len(s.keys))
	var missing []string
	for _, k := range s.keys {
		v, ok := obj[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		// null decodes into a nil pointer, not an empty string
		var str *string
		if err := json.Unmarshal(v, &str); err != nil || str == nil {
			return nil, errors.Mark(errors.Newf("key %q is not a string", k), errors.ErrMalformedResponse)
		}
		fields[k] = *str
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.Mark(errors.Newf("reply is missing keys %v", missing), errors.ErrMalformedResponse)
	}
	return fields, nil
}
