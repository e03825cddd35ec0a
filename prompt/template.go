// Package prompt loads and renders the prompts sent to the model.
//
// Prompts are markdown documents with YAML frontmatter. The body may
// reference variables with {{name}} syntax:
//   - {{feature}} - the language feature a sample should exercise
//   - {{code}}    - source that failed to compile
//   - {{error}}   - the compiler's error output
//
// Rendering fails when a referenced variable has no value, so a prompt is
// never sent with a hole in it.
package prompt

import (
	"regexp"
	"sort"
	"strings"

	"github.com/teranos/featsmith/errors"
)

// ErrMissingValue is returned by Execute when a placeholder has no value
var ErrMissingValue = errors.New("missing template value")

// Template represents a parsed prompt body with {{name}} placeholders
type Template struct {
	raw      string
	segments []segment
}

// segment is either literal text or a placeholder name
type segment struct {
	literal bool
	content string
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Parse creates a Template from a raw template string
func Parse(raw string) (*Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty template")
	}

	t := &Template{raw: raw}
	matches := placeholderPattern.FindAllStringSubmatchIndex(raw, -1)
	lastEnd := 0

	for _, match := range matches {
		start, end := match[0], match[1]
		name := raw[match[2]:match[3]]

		if start > lastEnd {
			t.segments = append(t.segments, segment{literal: true, content: raw[lastEnd:start]})
		}
		t.segments = append(t.segments, segment{content: name})
		lastEnd = end
	}

	if lastEnd < len(raw) {
		t.segments = append(t.segments, segment{literal: true, content: raw[lastEnd:]})
	}

	return t, nil
}

// Execute interpolates the template. Every placeholder must have a value in
// vars; extra entries in vars are ignored.
func (t *Template) Execute(vars map[string]string) (string, error) {
	var result strings.Builder
	result.Grow(len(t.raw) * 2)

	for _, seg := range t.segments {
		if seg.literal {
			result.WriteString(seg.content)
			continue
		}

		value, ok := vars[seg.content]
		if !ok {
			return "", errors.Mark(errors.Newf("no value for {{%s}}", seg.content), ErrMissingValue)
		}
		result.WriteString(value)
	}

	return result.String(), nil
}

// Placeholders returns the distinct placeholder names in the template, sorted
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	for _, seg := range t.segments {
		if !seg.literal && !seen[seg.content] {
			seen[seg.content] = true
			names = append(names, seg.content)
		}
	}
	sort.Strings(names)
	return names
}

// Raw returns the original template string
func (t *Template) Raw() string {
	return t.raw
}
