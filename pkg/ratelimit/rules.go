package ratelimit

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Rule maps a route pattern to a category.
//
// Pattern forms:
//   - "/*" matches every path
//   - "/api/forum/*" matches "/api/forum" and every path below it
//   - "^/api/events/[^/]+$" is a regular expression (must start with "^")
//   - anything else is an exact path
//
// Patterns are matched against the canonical path (see CanonicalPath), so
// "/api/forum/posts" also covers "/api/forum/posts/" and
// "/api/forum/./posts".
type Rule struct {
	// Name identifies the rule in logs and in route policy lookups.
	Name string

	// Methods restricts the rule to these HTTP methods. Empty means any.
	Methods []string

	// Pattern is matched against the request path.
	Pattern string

	// Category is applied to matching requests. It is ignored when Exempt.
	Category string

	// PrivilegedCategory, when set, replaces Category for callers the
	// privileged-role registry confirms.
	PrivilegedCategory string

	// Exempt routes are not rate limited at all.
	Exempt bool
}

// Classification is the result of matching a request against the rules.
type Classification struct {
	// Rule is the name of the first matching rule.
	Rule string

	// Category is nil for exempt routes.
	Category *Category

	// Privileged is the looser category for privileged callers, or nil.
	Privileged *Category
}

// Exempt reports whether the request skips rate limiting.
func (c Classification) Exempt() bool {
	return c.Category == nil
}

// Resolve picks the category for a caller. privileged must be the outcome
// of a successful registry lookup; callers whose lookup failed pass false
// and get the stricter category.
func (c Classification) Resolve(privileged bool) *Category {
	if privileged && c.Privileged != nil {
		return c.Privileged
	}
	return c.Category
}

type compiledRule struct {
	rule    Rule
	methods map[string]struct{}
	regex   *regexp.Regexp
	prefix  string
	exact   string
	any     bool
}

func compileRule(r Rule) (compiledRule, error) {
	cr := compiledRule{rule: r}

	if len(r.Methods) > 0 {
		cr.methods = make(map[string]struct{}, len(r.Methods))
		for _, m := range r.Methods {
			cr.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}
	}

	pattern := strings.TrimSpace(r.Pattern)
	switch {
	case pattern == "":
		return cr, fmt.Errorf("rule %q: pattern must not be empty", r.Name)
	case pattern == "/*":
		cr.any = true
	case strings.HasPrefix(pattern, "^"):
		re, err := regexp.Compile(pattern)
		if err != nil {
			return cr, fmt.Errorf("rule %q: invalid pattern: %w", r.Name, err)
		}
		cr.regex = re
	case strings.HasSuffix(pattern, "/*"):
		cr.prefix = CanonicalPath(strings.TrimSuffix(pattern, "/*"))
	default:
		cr.exact = CanonicalPath(pattern)
	}

	return cr, nil
}

func (cr compiledRule) matches(path, method string) bool {
	if cr.methods != nil {
		if _, ok := cr.methods[method]; !ok {
			return false
		}
	}

	switch {
	case cr.any:
		return true
	case cr.regex != nil:
		return cr.regex.MatchString(path)
	case cr.prefix != "":
		return path == cr.prefix || strings.HasPrefix(path, cr.prefix+"/")
	default:
		return path == cr.exact
	}
}

// CanonicalPath resolves dot segments, collapses repeated slashes and drops
// a trailing slash. Every spelling of a path an upstream router would treat
// as the same resource maps to one string.
func CanonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	// path.Clean keeps "/" and strips every other trailing slash.
	return path.Clean(p)
}
