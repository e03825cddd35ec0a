// Package feature holds the catalog of Move language features that samples
// are generated for.
package feature

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/teranos/featsmith/errors"
)

// All is the fixed catalog, in generation order.
var All = []string{
	"primitive types",
	"binary operators",
	"comparison",
	"casting",
	"vector",
	"byte strings",
	"hex strings",
	"vector operations",
	"vector slice",
	"vector rotate",
	"vector remove",
	"references",
	"mutable references",
	"freeze",
	"subtyping",
	"ownership",
	"tuple",
	"unit",
	"let binding",
	"type annotation",
	"optional type annotation",
	"multiple declaration",
	"tuple destruction",
	"struct destruction",
	"destructuring references",
	"ignoring values",
	"assignments",
	"expression blocks",
	"shadowing",
	"move and copy",
	"equality",
	"abort",
	"conditionals",
	"while loop",
	"for loop",
	"break",
	"continue",
	"the loop expression",
	"function visibility",
	"entry function",
	"function type parameters",
	"function acquires",
	"native functions",
	"inline function",
	"struct pattern matching",
	"borrowing structs and fields",
	"field read and write",
	"privileged struct operations",
	"constant",
	"generic functions",
	"generic structs",
	"type argument",
	"type inference",
	"phantom type parameters",
	"generic type instantiation",
	"type parameter constraints",
	"the copy ability",
	"the drop ability",
	"the store ability",
	"the key ability",
	"uses other module",
	"aliases",
	"friend modules",
	"global storage",
	"the move_to operation",
	"the move_from operation",
	"the borrow_global operation",
	"the borrow_global_mut operation",
	"the exists operation",
}

var whitespace = regexp.MustCompile(`\s+`)

// UnitName returns the directory name for one generated instance of a
// feature: whitespace runs become "_" and the instance index is appended.
//
//	UnitName("vector rotate", 2) == "vector_rotate_2"
func UnitName(feature string, instance int) string {
	return fmt.Sprintf("%s_%d", whitespace.ReplaceAllString(strings.TrimSpace(feature), "_"), instance)
}

// Known reports whether name is in the catalog
func Known(name string) bool {
	for _, f := range All {
		if f == name {
			return true
		}
	}
	return false
}

// Select resolves a requested feature list. An empty request selects the
// whole catalog; unknown names are rejected with a hint.
func Select(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), All...), nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, r := range requested {
		name := strings.Join(strings.Fields(r), " ")
		if !Known(name) {
			name = strings.Join(strings.Fields(strings.ReplaceAll(r, "_", " ")), " ")
		}
		if !Known(name) {
			return nil, errors.WithHint(
				errors.NewInvalidRequestError("unknown feature %q", r),
				"run 'featsmith features' to list the catalog",
			)
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}
