// Package authority maps verified JWT claims to authority tokens consumed by
// access-control checks.
package authority

import (
	"sort"
	"strings"
)

const (
	DefaultRolesClaim = "roles"
	DefaultRolePrefix = "ROLE_"
	claimPathSep      = "."
)

// Claims is the decoded payload of an already verified token.
type Claims map[string]any

// Set holds authority tokens. Each token appears at most once.
type Set map[string]struct{}

func NewSet(tokens ...string) Set {
	s := make(Set, len(tokens))
	for _, t := range tokens {
		s.Add(t)
	}
	return s
}

func (s Set) Add(token string) {
	if token == "" {
		return
	}
	s[token] = struct{}{}
}

func (s Set) Has(token string) bool {
	_, ok := s[token]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Slice returns the tokens in lexical order.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Mapping describes how one claim contributes authorities.
type Mapping struct {
	// Claim is the claim name, or a dotted path into nested objects
	// such as "realm_access.roles".
	Claim string
	// Prefix is prepended to every value, e.g. "ROLE_" or "SCOPE_".
	Prefix string
	// Delimiter splits a single string value into several entries.
	// Empty means the whole string is one entry.
	Delimiter string
	Uppercase bool
}

// Extractor derives authorities from claims. Any func with this shape can be
// plugged into the authentication layer.
type Extractor func(claims Claims) Set

var defaultMapping = Mapping{Claim: DefaultRolesClaim, Prefix: DefaultRolePrefix}

// ExtractAuthorityFromClaims applies the default "roles" mapping.
func ExtractAuthorityFromClaims(claims Claims) Set {
	return extract(claims, []Mapping{defaultMapping})
}

// NewExtractor returns an Extractor for the given mappings. With no mappings
// it falls back to the default "roles" mapping.
func NewExtractor(mappings ...Mapping) Extractor {
	if len(mappings) == 0 {
		mappings = []Mapping{defaultMapping}
	}
	ms := append([]Mapping(nil), mappings...)
	return func(claims Claims) Set {
		return extract(claims, ms)
	}
}

func extract(claims Claims, mappings []Mapping) Set {
	out := make(Set)
	for _, m := range mappings {
		raw, ok := lookup(claims, m.Claim)
		if !ok {
			continue
		}
		for _, v := range values(raw, m.Delimiter) {
			out.Add(m.normalize(v))
		}
	}
	return out
}

func (m Mapping) normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if m.Uppercase {
		v = strings.ToUpper(v)
	}
	return m.Prefix + v
}

func lookup(claims Claims, path string) (any, bool) {
	if claims == nil || path == "" {
		return nil, false
	}
	if v, ok := claims[path]; ok {
		return v, true
	}

	var cur any = map[string]any(claims)
	for _, part := range strings.Split(path, claimPathSep) {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case Claims:
		return o, true
	default:
		return nil, false
	}
}

// values flattens a claim value into string entries. A lone string counts as
// a one-element list; anything that is not a string is skipped.
func values(raw any, delimiter string) []string {
	switch v := raw.(type) {
	case string:
		if delimiter == "" {
			return []string{v}
		}
		return strings.Split(v, delimiter)
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
