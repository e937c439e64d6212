package authz

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSuperRole always satisfies a role requirement.
const DefaultSuperRole = "admin"

// Rule binds a route pattern to its allowed roles. An empty Roles list means any
// authenticated caller may pass.
type Rule struct {
	Pattern string   `yaml:"pattern"`
	Roles   []string `yaml:"roles"`
}

// Policy is the declarative form of a [Map], and the shape of the YAML policy file.
type Policy struct {
	SuperRole string   `yaml:"super_role"`
	Public    []string `yaml:"public"`
	Routes    []Rule   `yaml:"routes"`
}

type matcher struct {
	raw    string
	prefix string
	glob   bool
}

func compile(pattern string) (matcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return matcher{}, fmt.Errorf("authz: pattern %q must start with /", pattern)
	}
	if pattern == "/*" {
		return matcher{raw: pattern, prefix: "/"}, nil
	}
	if base, ok := strings.CutSuffix(pattern, "/*"); ok && !hasMeta(base) {
		return matcher{raw: pattern, prefix: path.Clean(base)}, nil
	}
	if hasMeta(pattern) {
		if _, err := path.Match(pattern, "/"); err != nil {
			return matcher{}, fmt.Errorf("authz: pattern %q: %w", pattern, err)
		}
		return matcher{raw: pattern, glob: true}, nil
	}
	return matcher{raw: path.Clean(pattern)}, nil
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func (m matcher) match(p string) bool {
	switch {
	case m.prefix == "/":
		return true
	case m.prefix != "":
		return p == m.prefix || strings.HasPrefix(p, m.prefix+"/")
	case m.glob:
		ok, _ := path.Match(m.raw, p)
		return ok
	default:
		return p == m.raw
	}
}

type rule struct {
	matcher
	roles []string
}

// Map is the compiled route table.
type Map struct {
	superRole string
	public    []matcher
	rules     []rule
}

// New compiles p. Invalid patterns are rejected so that a typo cannot silently open a route.
func New(p Policy) (*Map, error) {
	m := &Map{superRole: strings.TrimSpace(p.SuperRole)}
	if m.superRole == "" {
		m.superRole = DefaultSuperRole
	}

	for _, raw := range p.Public {
		c, err := compile(raw)
		if err != nil {
			return nil, err
		}
		m.public = append(m.public, c)
	}

	for _, r := range p.Routes {
		c, err := compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		roles := make([]string, 0, len(r.Roles))
		for _, role := range r.Roles {
			role = strings.TrimSpace(role)
			if role == "" {
				return nil, fmt.Errorf("authz: empty role in rule %q", r.Pattern)
			}
			roles = append(roles, role)
		}
		m.rules = append(m.rules, rule{matcher: c, roles: roles})
	}

	return m, nil
}

// MustNew is New for package-level tables; it panics on an invalid policy.
func MustNew(p Policy) *Map {
	m, err := New(p)
	if err != nil {
		panic(err)
	}
	return m
}

// Load decodes a YAML policy from r. Unknown fields are rejected.
func Load(r io.Reader) (*Map, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return New(Policy{})
		}
		return nil, fmt.Errorf("authz: decode policy: %w", err)
	}
	return New(p)
}

// LoadFile reads a YAML policy file.
func LoadFile(name string) (*Map, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("authz: open policy: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// SuperRole is the role that satisfies every requirement.
func (m *Map) SuperRole() string {
	return m.superRole
}

// RequiresAuth reports whether p is outside the public list. Paths that are not in
// clean form are never public.
func (m *Map) RequiresAuth(p string) bool {
	p = normalize(p)
	if path.Clean(p) != p {
		return true
	}
	for _, pub := range m.public {
		if pub.match(p) {
			return false
		}
	}
	return true
}

// RequiredRoles returns the roles of the first rule matching p, or nil when no rule
// matches. The returned slice is a copy.
func (m *Map) RequiredRoles(p string) []string {
	p = normalize(p)
	for _, r := range m.rules {
		if r.match(p) {
			if len(r.roles) == 0 {
				return nil
			}
			out := make([]string, len(r.roles))
			copy(out, r.roles)
			return out
		}
	}
	return nil
}

// Satisfies reports whether role meets required under this map's super-role.
func (m *Map) Satisfies(role string, required []string) bool {
	return Satisfies(role, required, m.superRole)
}

// Satisfies is the role check: an empty requirement always passes, superRole always
// passes, otherwise role must be listed.
func Satisfies(role string, required []string, superRole string) bool {
	if len(required) == 0 {
		return true
	}
	if role == "" {
		return false
	}
	if superRole != "" && role == superRole {
		return true
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}

// normalize only roots p. It never resolves dot segments or slashes: the table must see
// the path the router dispatches on.
func normalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
