// Package pathpriv obfuscates file paths for logging so operators can
// share diagnostic output without leaking the contents of a library.
// Each path segment is deterministically replaced by one of a fixed set
// of bland placeholder words, keyed by a hash of the segment, so the same
// segment always maps to the same word within a process's lifetime.
package pathpriv

import (
	"crypto/md5"
	"encoding/binary"
	"path"
	"strconv"
	"strings"
)

// words is the fixed substitution vocabulary. Its contents are arbitrary;
// what matters is that it is stable and long enough to make collisions
// within one path uncommon.
var words = [64]string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel",
	"india", "juliet", "kilo", "lima", "mike", "november", "oscar", "papa",
	"quebec", "romeo", "sierra", "tango", "uniform", "victor", "whiskey", "xray",
	"yankee", "zulu", "amber", "birch", "cedar", "denim", "ember", "flint",
	"grove", "haze", "ivory", "jade", "karst", "lilac", "maple", "nectar",
	"onyx", "pearl", "quartz", "raven", "slate", "teal", "umber", "violet",
	"willow", "xenon", "yarrow", "zephyr", "acorn", "basil", "clove", "dune",
	"elm", "fern", "gale", "heath", "iris", "junco", "knoll", "larch",
}

// Obfuscator substitutes path segments with words from the fixed
// vocabulary, keyed by an MD5 hash of the segment so the mapping is
// deterministic. Collisions (two different segments hashing to the same
// word) are broken with a numeric suffix, scoped to one Obfuscator
// instance — a fresh Obfuscator should be created per plugin invocation.
type Obfuscator struct {
	used map[string]string // segment -> assigned word (with suffix if needed)
	taken map[string]bool  // assigned words already in use this session
}

// New returns an Obfuscator with empty per-process state.
func New() *Obfuscator {
	return &Obfuscator{used: make(map[string]string), taken: make(map[string]bool)}
}

// Path obfuscates every segment of p except the final segment's file
// extension, which is preserved so log output still conveys file type.
func (o *Obfuscator) Path(p string) string {
	segments := strings.Split(filepath(p), "/")
	out := make([]string, len(segments))
	for i, seg := range segments {
		if seg == "" {
			out[i] = seg
			continue
		}
		if i == len(segments)-1 {
			ext := path.Ext(seg)
			out[i] = o.segment(strings.TrimSuffix(seg, ext)) + ext
			continue
		}
		out[i] = o.segment(seg)
	}
	return strings.Join(out, "/")
}

func filepath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func (o *Obfuscator) segment(seg string) string {
	if w, ok := o.used[seg]; ok {
		return w
	}

	sum := md5.Sum([]byte(seg))
	idx := binary.BigEndian.Uint32(sum[:4]) % uint32(len(words))
	word := words[idx]

	candidate := word
	suffix := 2
	for o.taken[candidate] {
		candidate = word + strconv.Itoa(suffix)
		suffix++
	}

	o.used[seg] = candidate
	o.taken[candidate] = true
	return candidate
}
