package dist

import (
	"strings"

	"github.com/matzehuels/stackpip/pkg/errors"
)

// Specifier is a parsed PEP 440 version specifier such as ">=1.0,<2".
// The zero value matches any version.
type Specifier struct {
	raw     string
	clauses []clause
}

type clause struct {
	op       string
	value    string
	wildcard bool
	version  *Version
}

// specifier operators, longest first so prefixes don't shadow them.
var operators = []string{"===", "~=", "==", "!=", ">=", "<=", ">", "<"}

// ParseSpecifier parses a comma separated clause list.
// An empty string yields the match-all Specifier.
func ParseSpecifier(s string) (Specifier, error) {
	s = strings.TrimSpace(s)
	spec := Specifier{raw: s}
	if s == "" {
		return spec, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseClause(part)
		if err != nil {
			return Specifier{}, err
		}
		spec.clauses = append(spec.clauses, c)
	}
	return spec, nil
}

// MustSpecifier is like ParseSpecifier but panics on error. Intended for tests
// and literals.
func MustSpecifier(s string) Specifier {
	spec, err := ParseSpecifier(s)
	if err != nil {
		panic(err)
	}
	return spec
}

func parseClause(part string) (clause, error) {
	var c clause
	for _, op := range operators {
		if strings.HasPrefix(part, op) {
			c.op = op
			c.value = strings.TrimSpace(part[len(op):])
			break
		}
	}
	if c.op == "" || c.value == "" {
		return clause{}, errors.New(errors.ErrCodeInvalidRequirement, "invalid version specifier %q", part)
	}
	if c.op == "===" {
		return c, nil
	}

	if strings.HasSuffix(c.value, ".*") {
		if c.op != "==" && c.op != "!=" {
			return clause{}, errors.New(errors.ErrCodeInvalidRequirement, "wildcard not allowed with %s in %q", c.op, part)
		}
		c.wildcard = true
	}

	v, err := ParseVersion(strings.TrimSuffix(c.value, ".*"))
	if err != nil {
		return clause{}, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid version in specifier %q", part)
	}
	c.version = v

	switch {
	case c.wildcard && (v.IsPrerelease() || v.IsPostrelease() || v.local != ""):
		return clause{}, errors.New(errors.ErrCodeInvalidRequirement, "wildcard needs a plain release in %q", part)
	case c.op == "~=" && len(v.release) < 2:
		return clause{}, errors.New(errors.ErrCodeInvalidRequirement, "~= requires at least two release segments: %q", part)
	case v.local != "" && c.op != "==" && c.op != "!=":
		return clause{}, errors.New(errors.ErrCodeInvalidRequirement, "local version label not allowed with %s in %q", c.op, part)
	}
	return c, nil
}

// String returns the specifier as written.
func (s Specifier) String() string { return s.raw }

// IsEmpty reports whether the specifier has no clauses.
func (s Specifier) IsEmpty() bool { return len(s.clauses) == 0 }

// Pinned returns the exact version for a single "==X" clause without
// wildcard.
func (s Specifier) Pinned() (string, bool) {
	if len(s.clauses) != 1 {
		return "", false
	}
	c := s.clauses[0]
	if (c.op == "==" && !c.wildcard) || c.op == "===" {
		return c.value, true
	}
	return "", false
}

// Contains reports whether v satisfies every clause.
func (s Specifier) Contains(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	parsed, perr := ParseVersion(v)

	for _, c := range s.clauses {
		if c.op == "===" {
			if v != c.value {
				return false
			}
			continue
		}
		if perr != nil {
			// Unparseable installed versions only match an identical pin.
			if c.op == "==" && !c.wildcard && strings.EqualFold(v, c.value) {
				continue
			}
			return false
		}
		if !c.matches(parsed) {
			return false
		}
	}
	return true
}

func (c clause) matches(v *Version) bool {
	switch c.op {
	case "==":
		if c.wildcard {
			return prefixMatch(v, c.version.epoch, c.version.release)
		}
		return c.equal(v)
	case "!=":
		if c.wildcard {
			return !prefixMatch(v, c.version.epoch, c.version.release)
		}
		return !c.equal(v)
	}

	// Ordered comparisons ignore local labels.
	v = v.Public()
	cmp := v.Compare(c.version)
	switch c.op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		// >1.0 excludes 1.0.post1 unless the bound is itself a post-release.
		if v.IsPostrelease() && !c.version.IsPostrelease() && v.sameRelease(c.version) {
			return false
		}
		return cmp > 0
	case "<":
		// <1.0 excludes 1.0rc1 unless the bound is itself a pre-release.
		if v.IsPrerelease() && !c.version.IsPrerelease() && v.sameRelease(c.version) {
			return false
		}
		return cmp < 0
	case "~=":
		rel := c.version.release
		return cmp >= 0 && prefixMatch(v, c.version.epoch, rel[:len(rel)-1])
	}
	return false
}

// equal compares public versions unless the clause names a local label.
func (c clause) equal(v *Version) bool {
	if c.version.local == "" {
		v = v.Public()
	}
	return v.Compare(c.version) == 0
}

// prefixMatch implements "==1.4.*": the epoch matches and the leading
// release segments of v, zero padded, equal want.
func prefixMatch(v *Version, epoch int, want []int) bool {
	if v.epoch != epoch {
		return false
	}
	for i, seg := range want {
		got := 0
		if i < len(v.release) {
			got = v.release[i]
		}
		if got != seg {
			return false
		}
	}
	return true
}
