package reconcile

import (
	"time"

	"github.com/trek-e/stash2plex-sync/internal/sourceapi"
	"github.com/trek-e/stash2plex-sync/internal/writer"
)

// GapKind identifies which detector raised a gap.
type GapKind int

const (
	// EmptyMetadata: the scene has meaningful metadata on the Source but
	// its Target item appears to have none of it.
	EmptyMetadata GapKind = iota
	// StaleSync: the scene has been updated on the Source more recently
	// than it was last synced to the Target.
	StaleSync
	// MissingFromTarget: no Target item could be matched for the scene
	// at all.
	MissingFromTarget
)

func (k GapKind) String() string {
	switch k {
	case EmptyMetadata:
		return "empty_metadata"
	case StaleSync:
		return "stale_sync"
	case MissingFromTarget:
		return "missing_from_target"
	default:
		return "unknown"
	}
}

// Gap is one detected repair candidate.
type Gap struct {
	Kind    GapKind
	SceneID string
}

// TargetMetadataView is the minimal per-item state the detectors need
// from a pre-fetched batch of Target items, keyed by scene ID via
// whatever ID mapping the caller maintains.
type TargetMetadataView struct {
	Matched     bool
	HasMetadata bool
}

// DetectEmptyMetadata flags scenes with meaningful Source metadata whose
// matched Target item appears to carry none of it — almost always a
// scene synced once before curation, or before a field toggle was
// enabled.
func DetectEmptyMetadata(scenes []sourceapi.Scene, targetState map[string]TargetMetadataView) []Gap {
	var gaps []Gap
	for i := range scenes {
		scene := &scenes[i]
		tv, ok := targetState[scene.ID]
		if !ok || !tv.Matched || tv.HasMetadata {
			continue
		}
		if writer.HasMeaningfulMetadata(scene) {
			gaps = append(gaps, Gap{Kind: EmptyMetadata, SceneID: scene.ID})
		}
	}
	return gaps
}

// DetectStaleSyncs flags scenes updated on the Source after their last
// recorded sync timestamp, per scene's UpdatedAt vs a lookup of last
// sync times. Scenes never synced are excluded — that's
// DetectMissing's job.
func DetectStaleSyncs(scenes []sourceapi.Scene, lastSync map[string]time.Time) []Gap {
	var gaps []Gap
	for i := range scenes {
		scene := &scenes[i]
		synced, ok := lastSync[scene.ID]
		if !ok {
			continue
		}
		// Anti-loop guard: a sync timestamp at or after the scene's own
		// updated_at means our own write caused updated_at to bump (or
		// the two raced); treating that as stale would requeue forever.
		if synced.Before(scene.UpdatedAt) {
			gaps = append(gaps, Gap{Kind: StaleSync, SceneID: scene.ID})
		}
	}
	return gaps
}

// DetectMissing flags scenes with no matched Target item at all.
func DetectMissing(scenes []sourceapi.Scene, targetState map[string]TargetMetadataView) []Gap {
	var gaps []Gap
	for i := range scenes {
		scene := &scenes[i]
		tv, ok := targetState[scene.ID]
		if ok && tv.Matched {
			continue
		}
		gaps = append(gaps, Gap{Kind: MissingFromTarget, SceneID: scene.ID})
	}
	return gaps
}
