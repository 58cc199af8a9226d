// Package pathmap translates file paths between the Source's and the
// Target's view of the same media library, for deployments where the two
// servers mount the same files at different filesystem roots (e.g. one
// container sees /data/scenes, the other /mnt/media/scenes).
package pathmap

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule rewrites a Source-side path into its Target-side equivalent using a
// regular expression with capture groups and a Go-style replacement
// template ($1, $2, ...). Rules are tried in order; the first match wins.
type Rule struct {
	Name            string
	SourcePattern   string
	TargetPattern   string
	CaseInsensitive bool

	compiled *regexp.Regexp
}

// Mapper holds a compiled, ordered list of path rules. A Mapper with no
// rules is the identity mapping, so deployments sharing one filesystem
// root need no configuration at all.
type Mapper struct {
	rules []Rule
}

// New compiles the given rules in order. An invalid regular expression in
// any rule is returned as an error rather than silently skipped, since a
// broken rule would otherwise fail matches silently at sync time.
func New(rules []Rule) (*Mapper, error) {
	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		pattern := r.SourcePattern
		if r.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pathmap: rule %q: %w", r.Name, err)
		}
		r.compiled = re
		compiled[i] = r
	}
	return &Mapper{rules: compiled}, nil
}

// ToTarget rewrites a Source-side path to the Target's equivalent. If no
// rule matches, the path is returned unchanged.
func (m *Mapper) ToTarget(sourcePath string) string {
	for _, r := range m.rules {
		if loc := r.compiled.FindStringSubmatchIndex(sourcePath); loc != nil {
			return string(r.compiled.ExpandString(nil, r.TargetPattern, sourcePath, loc))
		}
	}
	return sourcePath
}

// ToSource reverses ToTarget by swapping the roles of the pattern and the
// replacement template; this only works for rules whose TargetPattern is
// itself a fixed-prefix string (no backreferences past $0), which holds
// for every mount-point-style rule this package is meant to express.
func (m *Mapper) ToSource(targetPath string) string {
	for _, r := range m.rules {
		prefix := literalPrefix(r.TargetPattern)
		if prefix == "" || !strings.HasPrefix(targetPath, prefix) {
			continue
		}
		rest := targetPath[len(prefix):]
		srcPrefix := literalPrefix(strings.TrimPrefix(r.SourcePattern, "^"))
		return srcPrefix + rest
	}
	return targetPath
}

// literalPrefix extracts the non-regex, non-template literal prefix of a
// pattern/template string, stopping at the first '$' or regex metachar.
func literalPrefix(s string) string {
	for i, c := range s {
		if c == '$' || strings.ContainsRune(`(.[*+?^\`, c) {
			return s[:i]
		}
	}
	return s
}
