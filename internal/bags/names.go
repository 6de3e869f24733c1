package bags

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// bagNamePattern captures identifier, version, sequence and the optional
// extension (without its leading dot).
var bagNamePattern = regexp.MustCompile(`^([^.]+)\.mbag(\d+(?:_\d+)*)-(\d+)(?:\.(.+))?$`)

// versionFieldSeparators splits version strings on both "." and "_".
var versionFieldSeparators = regexp.MustCompile(`[._]`)

// ParseError reports a name that does not follow the bag naming convention.
type ParseError struct {
	Name string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("not a legal bag name: %q", e.Name)
}

// Name is the parsed form of a bag filename.
type Name struct {
	Identifier string
	Version    string
	Sequence   string
	Extension  string
}

// String re-serializes the name into its filename form.
func (n Name) String() string {
	s := n.Identifier + ".mbag" + n.Version + "-" + n.Sequence
	if n.Extension != "" {
		s += "." + n.Extension
	}
	return s
}

// IsLegalBagName reports whether name follows the bag naming convention.
func IsLegalBagName(name string) bool {
	return bagNamePattern.MatchString(name)
}

// ParseBagName splits a bag filename into its fields. Extension is empty when
// the name carries none.
func ParseBagName(name string) (Name, error) {
	m := bagNamePattern.FindStringSubmatch(name)
	if m == nil {
		return Name{}, &ParseError{Name: name}
	}
	return Name{
		Identifier: m[1],
		Version:    m[2],
		Sequence:   m[3],
		Extension:  m[4],
	}, nil
}

// MultibagVersion returns the version field of a bag name.
func MultibagVersion(name string) (string, error) {
	parsed, err := ParseBagName(name)
	if err != nil {
		return "", err
	}
	return parsed.Version, nil
}

// CompareVersions orders two version strings field by field. Fields are split
// on "." and "_" alike and compared numerically when both are digit runs,
// lexically otherwise. When one list is a prefix of the other, the shorter one
// sorts first.
func CompareVersions(a, b string) int {
	af := versionFieldSeparators.Split(a, -1)
	bf := versionFieldSeparators.Split(b, -1)
	for i := 0; i < len(af) && i < len(bf); i++ {
		if c := compareField(af[i], bf[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(af) < len(bf):
		return -1
	case len(af) > len(bf):
		return 1
	}
	return 0
}

// CompareBagNames orders two bag names by identifier, version, sequence and
// extension, in that order. Either name failing to parse is an error.
func CompareBagNames(a, b string) (int, error) {
	an, err := ParseBagName(a)
	if err != nil {
		return 0, err
	}
	bn, err := ParseBagName(b)
	if err != nil {
		return 0, err
	}
	return compareParsed(an, bn), nil
}

func compareParsed(a, b Name) int {
	if c := strings.Compare(a.Identifier, b.Identifier); c != 0 {
		return c
	}
	if c := CompareVersions(a.Version, b.Version); c != 0 {
		return c
	}
	if c := compareDigits(a.Sequence, b.Sequence); c != 0 {
		return c
	}
	return strings.Compare(a.Extension, b.Extension)
}

// FindLatestHeadBag returns the greatest name in names under CompareBagNames.
// Callers are expected to pass a single dataset's bag family.
func FindLatestHeadBag(names []string) (string, error) {
	if len(names) == 0 {
		return "", fmt.Errorf("no bag names given")
	}
	var (
		best       string
		bestParsed Name
	)
	for i, name := range names {
		parsed, err := ParseBagName(name)
		if err != nil {
			return "", err
		}
		if i == 0 || compareParsed(parsed, bestParsed) > 0 {
			best, bestParsed = name, parsed
		}
	}
	return best, nil
}

// SortBagNames sorts names in ascending CompareBagNames order.
func SortBagNames(names []string) error {
	parsed := make(map[string]Name, len(names))
	for _, name := range names {
		p, err := ParseBagName(name)
		if err != nil {
			return err
		}
		parsed[name] = p
	}
	sort.SliceStable(names, func(i, j int) bool {
		return compareParsed(parsed[names[i]], parsed[names[j]]) < 0
	})
	return nil
}

// SelectVersion keeps the names whose version matches version. The requested
// version may use "." separators ("1.2") and still match "mbag1_2" names.
// Illegal names are dropped.
func SelectVersion(names []string, version string) []string {
	want := strings.ReplaceAll(version, ".", "_")
	var out []string
	for _, name := range names {
		parsed, err := ParseBagName(name)
		if err != nil {
			continue
		}
		if parsed.Version == want {
			out = append(out, name)
		}
	}
	return out
}

// URLDecode percent-decodes s with form semantics: "+" also becomes a space.
func URLDecode(s string) (string, error) {
	return url.QueryUnescape(s)
}

func compareField(a, b string) int {
	if isDigits(a) && isDigits(b) {
		return compareDigits(a, b)
	}
	return strings.Compare(a, b)
}

// compareDigits compares two unsigned decimal strings of any length.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
