package gateway

import (
	"regexp"
	"strings"

	"github.com/c360/scanbridge/errors"
)

// OriginPolicy decides which browser origins may open a connection. Patterns
// are exact origin strings, with `*` matching any run of characters, e.g.
// "http://localhost:*". A request with no Origin header is always admitted
// since non-browser clients do not send one.
type OriginPolicy struct {
	patterns []*regexp.Regexp
}

// NewOriginPolicy compiles the allow-list patterns.
func NewOriginPolicy(allowed []string) (*OriginPolicy, error) {
	policy := &OriginPolicy{}
	for _, raw := range allowed {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		re, err := compileOriginPattern(pattern)
		if err != nil {
			return nil, errors.WrapInvalid(err, "gateway", "NewOriginPolicy", "compile origin pattern")
		}
		policy.patterns = append(policy.patterns, re)
	}
	return policy, nil
}

// compileOriginPattern turns a glob-style origin pattern into an anchored
// regexp. Everything except `*` is matched literally.
func compileOriginPattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

// Allow reports whether a connection with the given Origin header value is
// admitted. An empty value means the header was absent.
func (p *OriginPolicy) Allow(origin string) bool {
	if origin == "" {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}
