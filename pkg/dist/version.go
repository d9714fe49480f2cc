package dist

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/matzehuels/stackpip/pkg/errors"
)

// pep440 is the permissive version grammar from PEP 440 appendix B.
var pep440 = regexp.MustCompile(`^v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?:[-_.]?(?P<pre_l>alpha|a|beta|b|preview|pre|c|rc)[-_.]?(?P<pre_n>[0-9]+)?)?` +
	`(?:-(?P<post_n1>[0-9]+)|[-_.]?(?P<post_l>post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?)?` +
	`(?:[-_.]?(?P<dev_l>dev)[-_.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

// Version is a parsed PEP 440 version.
//
// Release segments are ordered by go-version, which pads missing segments
// with zeros the same way PEP 440 does. Pre, post and dev markers are ranked
// here since go-version has no notion of post-releases.
type Version struct {
	raw     string
	epoch   int
	release []int
	core    *version.Version
	pre     int // index into preLabels, -1 when absent
	preN    int
	post    int // -1 when absent
	dev     int // -1 when absent
	local   string
}

var preLabels = []string{"a", "b", "rc"}

// ParseVersion parses v with the PEP 440 normalization rules: case is
// ignored, "alpha"/"beta"/"c"/"pre"/"preview" map to a/b/rc, "rev"/"r"/"-N"
// are post-releases and separators are optional.
func ParseVersion(v string) (*Version, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	m := pep440.FindStringSubmatch(s)
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "invalid version %q", v)
	}
	group := func(name string) string { return m[pep440.SubexpIndex(name)] }
	num := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}

	out := &Version{raw: v, pre: -1, post: -1, dev: -1, local: group("local")}
	if e := group("epoch"); e != "" {
		out.epoch = num(e)
	}
	rel := group("release")
	for _, seg := range strings.Split(rel, ".") {
		out.release = append(out.release, num(seg))
	}
	core, err := version.NewVersion(rel)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid version %q", v)
	}
	out.core = core

	switch l := group("pre_l"); l {
	case "":
	case "a", "alpha":
		out.pre = 0
	case "b", "beta":
		out.pre = 1
	default:
		out.pre = 2
	}
	out.preN = num(group("pre_n"))

	switch {
	case group("post_n1") != "":
		out.post = num(group("post_n1"))
	case group("post_l") != "":
		out.post = num(group("post_n2"))
	}
	if group("dev_l") != "" {
		out.dev = num(group("dev_n"))
	}
	return out, nil
}

// String returns the normalized form, e.g. "1.0rc1.post2.dev3".
func (v *Version) String() string {
	var b strings.Builder
	if v.epoch != 0 {
		b.WriteString(strconv.Itoa(v.epoch) + "!")
	}
	for i, seg := range v.release {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(seg))
	}
	if v.pre >= 0 {
		b.WriteString(preLabels[v.pre] + strconv.Itoa(v.preN))
	}
	if v.post >= 0 {
		b.WriteString(".post" + strconv.Itoa(v.post))
	}
	if v.dev >= 0 {
		b.WriteString(".dev" + strconv.Itoa(v.dev))
	}
	if v.local != "" {
		b.WriteString("+" + v.local)
	}
	return b.String()
}

// IsPrerelease reports whether v carries a pre or dev marker.
func (v *Version) IsPrerelease() bool { return v.pre >= 0 || v.dev >= 0 }

// IsPostrelease reports whether v carries a post marker.
func (v *Version) IsPostrelease() bool { return v.post >= 0 }

// Public returns v without its local label.
func (v *Version) Public() *Version {
	if v.local == "" {
		return v
	}
	c := *v
	c.local = ""
	return &c
}

// Compare orders v and o: -1, 0 or +1.
func (v *Version) Compare(o *Version) int {
	if c := cmpInt(v.epoch, o.epoch); c != 0 {
		return c
	}
	if c := v.core.Compare(o.core); c != 0 {
		return c
	}
	if c := cmpInt(v.preRank(), o.preRank()); c != 0 {
		return c
	}
	if v.pre >= 0 && o.pre >= 0 {
		if c := cmpInt(v.preN, o.preN); c != 0 {
			return c
		}
	}
	if c := cmpInt(v.post, o.post); c != 0 {
		return c
	}
	if c := cmpInt(v.devRank(), o.devRank()); c != 0 {
		return c
	}
	return compareLocal(v.local, o.local)
}

// preRank places dev-only releases before every pre-release, and final or
// post releases after them.
func (v *Version) preRank() int {
	switch {
	case v.pre >= 0:
		return v.pre
	case v.post < 0 && v.dev >= 0:
		return -1
	}
	return len(preLabels)
}

func (v *Version) devRank() int {
	if v.dev < 0 {
		return int(^uint(0) >> 1)
	}
	return v.dev
}

// sameRelease reports whether v and o share epoch and release segments.
func (v *Version) sameRelease(o *Version) bool {
	return v.epoch == o.epoch && v.core.Equal(o.core)
}

// compareLocal orders local labels segment by segment; numeric segments
// sort after alphanumeric ones and no label sorts first.
func compareLocal(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	split := func(s string) []string {
		return strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '-' || r == '_' })
	}
	as, bs := split(a), split(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if c := cmpInt(an, bn); c != 0 {
				return c
			}
		case aerr == nil:
			return 1
		case berr == nil:
			return -1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(as), len(bs))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CompareVersions orders two version strings. Unparseable versions fall back
// to string comparison.
func CompareVersions(a, b string) int {
	va, errA := ParseVersion(a)
	vb, errB := ParseVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}
