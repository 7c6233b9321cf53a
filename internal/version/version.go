// Package version implements parsing and ordering of package versions as
// published on PyPI: epoch, dotted release, pre/post/dev segments, and
// local identifiers.
package version

import (
	"cmp"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a parsed package version.
type Version struct {
	Epoch   int
	Release []int
	Pre     string // normalized: "a", "b", "rc"; empty for none
	PreNum  int
	Post    int // -1 for none
	Dev     int // -1 for none
	Local   string
}

// Adapted from the canonical version-matching regular expression published
// with PEP 440.
var versionRE = regexp.MustCompile(`(?i)^v?` +
	`(?:(?P<epoch>\d+)!)?` +
	`(?P<release>\d+(?:\.\d+)*)` +
	`(?:[-_.]?(?P<prekind>a|b|c|rc|alpha|beta|pre|preview)[-_.]?(?P<prenum>\d*))?` +
	`(?:-(?P<postimplicit>\d+)|[-_.]?(?:post|rev|r)[-_.]?(?P<postnum>\d*))?` +
	`(?:[-_.]?dev[-_.]?(?P<devnum>\d*))?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

// New parses a version string.
func New(s string) (Version, error) {
	s = strings.TrimSpace(s)
	idx := versionRE.FindStringSubmatchIndex(s)
	if idx == nil {
		return Version{}, errors.Errorf("invalid version %q", s)
	}

	group := func(name string) (string, bool) {
		i := versionRE.SubexpIndex(name)
		if idx[2*i] < 0 {
			return "", false
		}
		return s[idx[2*i]:idx[2*i+1]], true
	}
	num := func(name string) int {
		g, _ := group(name)
		n, _ := strconv.Atoi(g)
		return n
	}

	v := Version{Post: -1, Dev: -1}
	v.Epoch = num("epoch")

	release, _ := group("release")
	for _, part := range strings.Split(release, ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, errors.Wrapf(err, "invalid release segment in %q", s)
		}
		v.Release = append(v.Release, n)
	}

	if kind, ok := group("prekind"); ok {
		v.Pre = normalizePreKind(kind)
		v.PreNum = num("prenum")
	}

	if n, ok := group("postimplicit"); ok {
		v.Post, _ = strconv.Atoi(n)
	} else if _, ok := group("postnum"); ok {
		v.Post = num("postnum")
	}

	if _, ok := group("devnum"); ok {
		v.Dev = num("devnum")
	}

	local, _ := group("local")
	v.Local = strings.NewReplacer("-", ".", "_", ".").Replace(strings.ToLower(local))

	return v, nil
}

func normalizePreKind(kind string) string {
	switch strings.ToLower(kind) {
	case "a", "alpha":
		return "a"
	case "b", "beta":
		return "b"
	default: // c, rc, pre, preview
		return "rc"
	}
}

// String renders the canonical form of the version.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		b.WriteString(strconv.Itoa(v.Epoch))
		b.WriteByte('!')
	}
	for i, n := range v.Release {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}
	if v.Pre != "" {
		b.WriteString(v.Pre)
		b.WriteString(strconv.Itoa(v.PreNum))
	}
	if v.Post >= 0 {
		b.WriteString(".post")
		b.WriteString(strconv.Itoa(v.Post))
	}
	if v.Dev >= 0 {
		b.WriteString(".dev")
		b.WriteString(strconv.Itoa(v.Dev))
	}
	if v.Local != "" {
		b.WriteByte('+')
		b.WriteString(v.Local)
	}
	return b.String()
}

// IsPrerelease reports whether the version has a pre or dev segment.
func (v Version) IsPrerelease() bool {
	return v.Pre != "" || v.Dev >= 0
}

// stage orders a version's lifecycle segment within one release number:
// dev-only < alpha < beta < rc < final.
func (v Version) stage() int {
	switch {
	case v.Pre == "" && v.Post < 0 && v.Dev >= 0:
		return 0
	case v.Pre == "a":
		return 1
	case v.Pre == "b":
		return 2
	case v.Pre == "rc":
		return 3
	default:
		return 4
	}
}

// Compare returns -1, 0, or 1 ordering v against o. Local identifiers order
// a version after its bare form and compare segment-wise.
func Compare(v, o Version) int {
	if c := cmp.Compare(v.Epoch, o.Epoch); c != 0 {
		return c
	}
	if c := compareRelease(v.Release, o.Release); c != 0 {
		return c
	}
	if c := cmp.Compare(v.stage(), o.stage()); c != 0 {
		return c
	}
	if v.Pre != "" {
		if c := cmp.Compare(v.PreNum, o.PreNum); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(postKey(v.Post), postKey(o.Post)); c != 0 {
		return c
	}
	if c := cmp.Compare(devKey(v.Dev), devKey(o.Dev)); c != 0 {
		return c
	}
	return compareLocal(v.Local, o.Local)
}

// Cmp parses and compares two version strings. Unparseable versions sort
// first, matching the lenient ordering used for registry data.
func Cmp(a, b string) int {
	av, err := New(a)
	if err != nil {
		return -1
	}
	bv, err := New(b)
	if err != nil {
		return 1
	}
	return Compare(av, bv)
}

func compareRelease(a, b []int) int {
	// Releases compare with implicit zero padding: 1.0 == 1.0.0.
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if c := cmp.Compare(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func postKey(post int) int {
	if post < 0 {
		return -1
	}
	return post
}

func devKey(dev int) int {
	if dev < 0 {
		return int(^uint(0) >> 1) // absence sorts after any dev number
	}
	return dev
}

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
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < min(len(as), len(bs)); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if c := cmp.Compare(an, bn); c != 0 {
				return c
			}
		case aerr == nil:
			return 1 // numeric segments sort after alphanumeric
		case berr == nil:
			return -1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmp.Compare(len(as), len(bs))
}
