// Package writer applies a sanitised Source scene's metadata to its
// matched Target item, respecting the per-field sync toggles and the
// preserve-edits mode.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trek-e/stash2plex-sync/internal/config"
	"github.com/trek-e/stash2plex-sync/internal/sanitize"
	"github.com/trek-e/stash2plex-sync/internal/sourceapi"
	"github.com/trek-e/stash2plex-sync/internal/targetapi"
)

const (
	titleLimit   = 255
	summaryLimit = 2000
	taglineLimit = 255
)

// ExistingItem is the Target-side state the writer uses to implement
// preserve-edits: only fields left empty by a prior manual edit are
// overwritten.
type ExistingItem struct {
	Title   string
	Summary string
	Tagline string
	Studio  string
}

// TouchedFields records which of the originating event's own fields were
// actually present in its payload, and which of those were explicit
// nulls, keyed by the Source's own field names ("details", "studio_id",
// "date", "performer_ids", "tag_ids"). A field absent from Present means
// the event never mentioned it, so the Target's current value is left
// alone; a field present in both Present and Null means the event set it
// to nothing, so the Target's value is actively cleared.
//
// A nil *TouchedFields means there is no event payload to consult at
// all — a reconciliation-driven repair job, or a freshly identified
// scene with no prior state to diff against — and every enabled toggle
// is written unconditionally from the freshly fetched scene.
type TouchedFields struct {
	Present map[string]bool
	Null    map[string]bool
}

func (t *TouchedFields) touched(field string) bool {
	return t == nil || t.Present[field]
}

func (t *TouchedFields) cleared(field string) bool {
	return t != nil && t.Null[field]
}

// DecodeTouchedFields parses a hook event's raw JSON input into a
// TouchedFields set. A nil or empty raw payload returns a nil set,
// signalling "no event to consult" rather than "the event touched
// nothing".
func DecodeTouchedFields(raw json.RawMessage) (*TouchedFields, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("writer: decode touched fields: %w", err)
	}
	t := &TouchedFields{Present: make(map[string]bool, len(m)), Null: make(map[string]bool)}
	for k, v := range m {
		t.Present[k] = true
		if string(v) == "null" {
			t.Null[k] = true
		}
	}
	return t, nil
}

// Writer pushes scene metadata to the Target.
type Writer struct {
	client *targetapi.Client
	toggle config.SyncToggles
	maxTags int
	preserveEdits bool
}

// New builds a Writer.
func New(client *targetapi.Client, toggle config.SyncToggles, maxTags int, preserveEdits bool) *Writer {
	return &Writer{client: client, toggle: toggle, maxTags: maxTags, preserveEdits: preserveEdits}
}

// Apply writes scene's metadata to the Target item identified by
// ratingKey. When Master is disabled, Apply is a no-op. touched gates
// which fields are actually written: a field the originating event never
// mentioned is left alone regardless of its toggle, a field it set to
// null is actively cleared, and a nil touched writes every toggled field
// unconditionally from scene.
func (w *Writer) Apply(ctx context.Context, ratingKey string, scene *sourceapi.Scene, existing *ExistingItem, touched *TouchedFields) error {
	if !w.toggle.Master {
		return nil
	}

	update := targetapi.MetadataUpdate{RatingKey: ratingKey}

	if w.toggle.Summary && touched.touched("details") {
		if touched.cleared("details") {
			update.ClearSummary = true
		} else if w.shouldWrite(existing, existing != nil && existing.Summary != "") {
			update.Summary = sanitize.Field(scene.Details, summaryLimit)
		}
	}

	studioTouched := touched.touched("studio_id")
	studioCleared := touched.cleared("studio_id")
	if w.toggle.Studio && studioTouched {
		if studioCleared {
			update.ClearStudio = true
		} else if scene.Studio != nil && w.shouldWrite(existing, existing != nil && existing.Studio != "") {
			update.Studio = sanitize.Field(scene.Studio.Name, titleLimit)
		}
	}

	if w.toggle.Date && touched.touched("date") {
		if touched.cleared("date") {
			update.ClearDate = true
		} else {
			update.Date = scene.Date
		}
	}

	if w.toggle.Performers && touched.touched("performer_ids") {
		if touched.cleared("performer_ids") {
			update.ClearActors = true
		} else {
			for _, p := range scene.Performers {
				update.Actors = append(update.Actors, sanitize.Field(p.Name, titleLimit))
			}
		}
	}

	if w.toggle.Tags && touched.touched("tag_ids") {
		if touched.cleared("tag_ids") {
			update.ClearGenres = true
		} else {
			tags := scene.Tags
			if len(tags) > w.maxTags {
				tags = tags[:w.maxTags]
			}
			for _, tg := range tags {
				update.Genres = append(update.Genres, sanitize.Field(tg.Name, titleLimit))
			}
		}
	}

	if err := w.client.UpdateMetadata(ctx, update); err != nil {
		return err
	}

	if w.toggle.Collection && scene.Studio != nil && studioTouched && !studioCleared {
		if err := w.client.AddToCollection(ctx, ratingKey, sanitize.Field(scene.Studio.Name, titleLimit)); err != nil {
			return err
		}
	}
	return nil
}

// shouldWrite applies the preserve-edits rule: when preserveEdits is on,
// only write a field if the existing value is empty.
func (w *Writer) shouldWrite(existing *ExistingItem, existingHasValue bool) bool {
	if !w.preserveEdits {
		return true
	}
	return existing == nil || !existingHasValue
}

// ApplyPoster uploads poster art, if the poster toggle is enabled and
// data is non-empty.
func (w *Writer) ApplyPoster(ctx context.Context, ratingKey string, data []byte) error {
	if !w.toggle.Master || !w.toggle.Poster || len(data) == 0 {
		return nil
	}
	return w.client.UploadPoster(ctx, ratingKey, data)
}

// ApplyBackground uploads background art, if the background toggle is
// enabled and data is non-empty.
func (w *Writer) ApplyBackground(ctx context.Context, ratingKey string, data []byte) error {
	if !w.toggle.Master || !w.toggle.Background || len(data) == 0 {
		return nil
	}
	return w.client.UploadBackground(ctx, ratingKey, data)
}

// HasMeaningfulMetadata reports whether a scene carries enough curated
// metadata to be worth syncing. Rating is intentionally excluded: a
// rating alone does not indicate curated metadata work has been done.
func HasMeaningfulMetadata(scene *sourceapi.Scene) bool {
	if strings.TrimSpace(scene.Details) != "" {
		return true
	}
	if scene.Studio != nil && strings.TrimSpace(scene.Studio.Name) != "" {
		return true
	}
	if len(scene.Performers) > 0 || len(scene.Tags) > 0 {
		return true
	}
	return false
}
