package reconcile

import (
	"context"

	"github.com/trek-e/stash2plex-sync/internal/match"
	"github.com/trek-e/stash2plex-sync/internal/pathmap"
	"github.com/trek-e/stash2plex-sync/internal/sourceapi"
	"github.com/trek-e/stash2plex-sync/internal/targetapi"
)

// SearchingLookup implements TargetLookup by searching the Target library
// for each scene in turn. It is the production lookup strategy; tests
// supply their own TargetLookup to avoid a network round trip per scene.
type SearchingLookup struct {
	target     *targetapi.Client
	sectionKey string
	pathmap    *pathmap.Mapper
	strict     bool
}

// NewSearchingLookup builds a SearchingLookup over one library section.
func NewSearchingLookup(target *targetapi.Client, sectionKey string, pm *pathmap.Mapper, strict bool) *SearchingLookup {
	return &SearchingLookup{target: target, sectionKey: sectionKey, pathmap: pm, strict: strict}
}

// Lookup searches the Target library once per scene and reports whether a
// match was found and whether that match already carries metadata.
func (l *SearchingLookup) Lookup(ctx context.Context, scenes []sourceapi.Scene) (map[string]TargetMetadataView, error) {
	out := make(map[string]TargetMetadataView, len(scenes))
	for i := range scenes {
		scene := &scenes[i]
		items, err := l.target.SearchLibrary(ctx, l.sectionKey, scene.Title)
		if err != nil {
			return nil, err
		}

		candidates := make([]match.Candidate, len(items))
		for j, it := range items {
			candidates[j] = match.Candidate{ID: it.RatingKey, Title: it.Title, FilePath: it.FilePath}
		}

		scenePath := ""
		if len(scene.Files) > 0 {
			scenePath = scene.Files[0].Path
		}
		result := match.Find(match.Scene{Title: scene.Title, FilePath: scenePath}, candidates, l.pathmap)

		if result.Confidence == match.None || (result.Confidence == match.Low && l.strict) {
			out[scene.ID] = TargetMetadataView{Matched: false}
			continue
		}

		var hasMetadata bool
		for _, it := range items {
			if it.RatingKey == result.Candidate.ID {
				hasMetadata = it.Summary != ""
				break
			}
		}
		out[scene.ID] = TargetMetadataView{Matched: true, HasMetadata: hasMetadata}
	}
	return out, nil
}
