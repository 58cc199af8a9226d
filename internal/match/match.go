// Package match locates the Target library item corresponding to a
// Source scene when no direct ID mapping is cached, by searching the
// Target for the scene's title and verifying the result against the
// scene's file path.
package match

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/trek-e/stash2plex-sync/internal/pathmap"
)

// Confidence reports how sure the matcher is that a candidate corresponds
// to the scene being synced.
type Confidence int

const (
	// None means no usable candidate was found.
	None Confidence = iota
	// Low means a title match was found but the filename could not be
	// verified, or only fuzzily so.
	Low
	// High means the candidate's filename exactly matches the scene's,
	// modulo known quality/date suffixes.
	High
)

// qualitySuffixRe strips trailing resolution/encoding tags like
// "1080p", "4K", "x264" that Target filenames often carry but Source
// titles never do.
var qualitySuffixRe = regexp.MustCompile(`(?i)[\s._-]*(\d{3,4}p|4k|x264|x265|hevc|web-?dl|bluray)\b.*$`)

// dateSuffixRe strips a trailing ISO-ish date stamp.
var dateSuffixRe = regexp.MustCompile(`[\s._-]*(\d{4}[-.]\d{2}[-.]\d{2})$`)

// Candidate is one Target library item under consideration.
type Candidate struct {
	ID       string
	Title    string
	FilePath string
}

// Result is the outcome of matching a scene against the Target library.
type Result struct {
	Candidate  Candidate
	Confidence Confidence
}

// Scene is the minimal Source-side input needed to locate a match.
type Scene struct {
	Title    string
	FilePath string
}

// CleanFilename strips known quality and date suffixes and the file
// extension, returning a name comparable to a Source scene title.
func CleanFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = qualitySuffixRe.ReplaceAllString(base, "")
	base = dateSuffixRe.ReplaceAllString(base, "")
	return strings.TrimSpace(base)
}

// Find picks the best candidate for scene out of candidates, translating
// the scene's Source-side path through mapper before filename comparison.
// It scans every candidate before deciding: a single exact filename match
// is High confidence, but a second candidate that also matches exactly
// makes the result ambiguous and demotes it to Low, same as a fuzzy-only
// match would be.
func Find(scene Scene, candidates []Candidate, mapper *pathmap.Mapper) Result {
	expectedPath := scene.FilePath
	if mapper != nil {
		expectedPath = mapper.ToTarget(scene.FilePath)
	}
	expectedBase := filepath.Base(expectedPath)
	expectedClean := strings.ToLower(CleanFilename(expectedBase))

	var exact []Candidate
	var fuzzyBest *Candidate
	for i, c := range candidates {
		candidateClean := strings.ToLower(CleanFilename(filepath.Base(c.FilePath)))

		if candidateClean == expectedClean {
			exact = append(exact, c)
			continue
		}

		if fuzzyBest == nil && (strings.Contains(candidateClean, expectedClean) ||
			strings.Contains(expectedClean, candidateClean) ||
			fuzzy.Match(expectedClean, candidateClean)) {
			fuzzyBest = &candidates[i]
		}
	}

	switch len(exact) {
	case 1:
		return Result{Candidate: exact[0], Confidence: High}
	case 0:
		if fuzzyBest != nil {
			return Result{Candidate: *fuzzyBest, Confidence: Low}
		}
		return Result{}
	default:
		return Result{Candidate: exact[0], Confidence: Low}
	}
}
