// Package extract finds the ClusterImageSets applied by an upstream deploy
// job by scanning its console log.
//
// A log line names a changed ClusterImageSet when it contains, in this
// order:
//
//	the action token      apply
//	the kind token        ClusterImageSet
//	a quoted name         'openshift-v4.14.3' or "openshift-v4.14.3"
//
// The name is enclosed in a matching pair of quotes and, after the prefix,
// consists only of letters, digits and the characters . _ + -
//
// Anything else on the line is ignored, so the tokens may be embedded in
// structured payloads such as serialized argument lists:
//
//	['apply', 'x', 'ClusterImageSet', 'openshift-v4.14.3']
package extract

import (
	"bufio"
	"io"
	"regexp"

	"github.com/pkg/errors"
)

// DefaultPrefix is the prefix every ClusterImageSet name starts with.
const DefaultPrefix = "openshift-v"

// maxLineSize bounds the length of a single console log line.
const maxLineSize = 1024 * 1024

// nameChars are the characters allowed in a name after its prefix.
const nameChars = `[A-Za-z0-9._+-]*`

// Matcher extracts ClusterImageSet names whose name starts with a fixed
// prefix.
type Matcher struct {
	prefix string
	re     *regexp.Regexp
}

// NewMatcher returns a Matcher for names starting with prefix.
func NewMatcher(prefix string) (*Matcher, error) {
	if prefix == "" {
		return nil, errors.New("prefix cannot be empty")
	}
	name := regexp.QuoteMeta(prefix) + nameChars
	re, err := regexp.Compile(`\bapply\b.*\bClusterImageSet\b.*?(?:'(` + name + `)'|"(` + name + `)")`)
	if err != nil {
		return nil, errors.Wrapf(err, "could not compile pattern for prefix %q", prefix)
	}
	return &Matcher{prefix: prefix, re: re}, nil
}

// Prefix returns the name prefix m matches.
func (m *Matcher) Prefix() string {
	return m.prefix
}

// Match returns the ClusterImageSet name applied on line, if any.
func (m *Matcher) Match(line string) (string, bool) {
	sm := m.re.FindStringSubmatch(line)
	if sm == nil {
		return "", false
	}
	if sm[1] != "" {
		return sm[1], true
	}
	return sm[2], true
}

// Extract scans r line by line and returns the names of all applied
// ClusterImageSets in the order they appear. Duplicates are kept. A log
// without any match yields an empty slice and no error.
func (m *Matcher) Extract(r io.Reader) ([]string, error) {
	names := []string{}

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxLineSize)
	for s.Scan() {
		if name, ok := m.Match(s.Text()); ok {
			names = append(names, name)
		}
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "could not scan console log")
	}
	return names, nil
}

// Unique returns names without duplicates, keeping the first occurrence of
// each.
func Unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
