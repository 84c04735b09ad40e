package gateway

import (
	"sort"
	"strings"
)

// RouteRule maps an inbound path prefix to a downstream service.
// Method "*" matches any verb. The prefix is stripped before
// forwarding, so /posts/123 reaches the post service as /123 and a
// bare /posts as /.
type RouteRule struct {
	Prefix       string
	Method       string
	Target       string
	RequiresAuth bool
}

// Rewrite returns the downstream path for an inbound path already
// matched against this rule.
func (r RouteRule) Rewrite(path string) string {
	rest := strings.TrimPrefix(path, r.Prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// Table resolves inbound requests by longest-prefix match.
type Table struct {
	rules []RouteRule
}

func NewTable(rules []RouteRule) *Table {
	sorted := append([]RouteRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{rules: sorted}
}

// Match finds the most specific rule for path+method. Prefixes match
// on segment boundaries only: /posts matches /posts and /posts/1 but
// not /postscript.
func (t *Table) Match(method, path string) (RouteRule, bool) {
	for _, r := range t.rules {
		if !strings.HasPrefix(path, r.Prefix) {
			continue
		}
		if len(path) > len(r.Prefix) && path[len(r.Prefix)] != '/' {
			continue
		}
		if r.Method != "*" && r.Method != method {
			continue
		}
		return r, true
	}
	return RouteRule{}, false
}

// DefaultRoutes mirrors the mesh's public surface. /auth stays open
// so register/login can mint the token everything else requires.
func DefaultRoutes() []RouteRule {
	return []RouteRule{
		{Prefix: "/auth", Method: "*", Target: "auth"},
		{Prefix: "/users", Method: "*", Target: "user", RequiresAuth: true},
		{Prefix: "/posts", Method: "*", Target: "post", RequiresAuth: true},
		{Prefix: "/feed", Method: "*", Target: "feed", RequiresAuth: true},
		{Prefix: "/notifications", Method: "*", Target: "notification", RequiresAuth: true},
		{Prefix: "/jobs", Method: "*", Target: "job", RequiresAuth: true},
		{Prefix: "/search", Method: "*", Target: "search", RequiresAuth: true},
	}
}
