// Package dispatch decides what, if anything, a single plugin invocation
// should enqueue, based on the hook event the host delivered on stdin.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"

	"github.com/trek-e/stash2plex-sync/internal/syncjob"
)

// Input is the JSON envelope the host writes to the plugin's stdin.
type Input struct {
	ServerConnection json.RawMessage `json:"server_connection"`
	Args             struct {
		Hook     string          `json:"hook"`
		HookContext struct {
			Type  string `json:"type"`
			ID    string `json:"id"`
			Input json.RawMessage `json:"input"`
		} `json:"hookContext"`
	} `json:"args"`
}

// Output is the JSON envelope written back to stdout.
type Output struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handle inspects the hook event and enqueues a sync job when warranted.
// An empty Scene.Update.Post input (no fields actually changed) is
// ignored — the host fires this hook liberally and a job for a no-op
// update would just waste a worker cycle. Scene.Create.Post and
// identification events always enqueue, bypassing that emptiness check,
// since a freshly identified scene has no prior sync to compare against
// and should get every enabled field written, not just a diff.
//
// Only an update's raw input carries into the job's Payload, since it is
// the one case where the worker needs to know exactly which fields the
// event touched (see writer.TouchedFields); a create/identification job
// is left with no payload, which the worker treats as "write everything".
func Handle(ctx context.Context, store *syncjob.Store, in Input) (Output, error) {
	hook := in.Args.Hook
	sceneID := in.Args.HookContext.ID

	if sceneID == "" {
		return Output{}, fmt.Errorf("dispatch: missing scene id for hook %s", hook)
	}

	var payload json.RawMessage
	if hook == "Scene.Update.Post" {
		if isEmptyInput(in.Args.HookContext.Input) {
			return Output{Output: "ignored: empty update"}, nil
		}
		payload = in.Args.HookContext.Input
	}

	// A scene already sitting in Inited/Ready/InProgress covers whatever
	// this event would enqueue; a second row would let two workers race
	// to write the same Target item.
	queued, err := store.QueuedSceneIDs(ctx)
	if err != nil {
		return Output{}, err
	}
	if queued[sceneID] {
		return Output{Output: "ignored: scene already queued"}, nil
	}

	job := syncjob.Job{
		ID:       uuid.NewString(),
		SceneID:  sceneID,
		JobType:  "metadata",
		Priority: 1,
		Payload:  payload,
	}
	if err := store.Enqueue(ctx, job); err != nil {
		return Output{}, err
	}
	return Output{Output: "enqueued"}, nil
}

// ExtractField pulls one field out of a hook's raw JSON input by JSONPath
// expression (e.g. "$.performer_ids[0]"), used by operators who configure
// a custom field to carry into a job's payload for downstream filtering.
// It returns an error if the input isn't valid JSON or the path matches
// nothing.
func ExtractField(raw json.RawMessage, expr string) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("dispatch: extract field: %w", err)
	}
	return jsonpath.Get(expr, v)
}

func isEmptyInput(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	return len(m) == 0
}
