// Package sourceapi is a minimal GraphQL client for the upstream
// content-management server ("Source"): scene lookups, existence checks,
// and the batched queries the reconciliation engine runs.
//
// The Source's API is GraphQL-only, but none of the corpus this plugin
// was grounded on carries a GraphQL client library, so the transport is
// built directly on net/http + encoding/json — the same two packages the
// corpus's own REST clients (e.g. the Target client in this plugin) are
// built on. See DESIGN.md for the full justification.
package sourceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/classify"
)

// Scene is the subset of Source scene fields the sync core cares about.
type Scene struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Details    string    `json:"details"`
	Date       string    `json:"date"`
	Studio     *Studio   `json:"studio"`
	Performers []Person  `json:"performers"`
	Tags       []Tag     `json:"tags"`
	Files      []File    `json:"files"`
	Rating100  int       `json:"rating100"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Studio struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type File struct {
	Path string `json:"path"`
}

// Client talks to the Source's GraphQL endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New builds a Client. apiKey, if non-empty, is sent as the ApiKey header
// the Source's GraphQL server expects.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("ApiKey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sourceapi: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &classify.StatusError{Code: resp.StatusCode, Err: fmt.Errorf("sourceapi: http %d", resp.StatusCode)}
	}

	var gr gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("sourceapi: decode: %w", err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("sourceapi: graphql error: %s", gr.Errors[0].Message)
	}
	if out != nil {
		return json.Unmarshal(gr.Data, out)
	}
	return nil
}

const findSceneQuery = `
query FindScene($id: ID!) {
  findScene(id: $id) {
    id title details date rating100 updated_at
    studio { id name }
    performers { id name }
    tags { id name }
    files { path }
  }
}`

// FindScene fetches one scene by ID.
func (c *Client) FindScene(ctx context.Context, id string) (*Scene, error) {
	var payload struct {
		FindScene *Scene `json:"findScene"`
	}
	if err := c.do(ctx, findSceneQuery, map[string]any{"id": id}, &payload); err != nil {
		return nil, err
	}
	if payload.FindScene == nil {
		return nil, &classify.NotFoundError{Msg: "scene " + id + " not found"}
	}
	return payload.FindScene, nil
}

// SceneExists reports whether a scene with the given ID is still present
// on the Source, used by the DLQ recoverer's recovery gate.
func (c *Client) SceneExists(ctx context.Context, id string) (bool, error) {
	_, err := c.FindScene(ctx, id)
	if err != nil {
		if classify.Err(err) == classify.NotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

const findScenesQuery = `
query FindScenes($filter: SceneFilterType, $page: Int, $per_page: Int) {
  findScenes(scene_filter: $filter, filter: {page: $page, per_page: $per_page}) {
    count
    scenes {
      id title details date rating100 updated_at
      studio { id name }
      performers { id name }
      tags { id name }
      files { path }
    }
  }
}`

// FindScenesResult is one page of a batched scene search.
type FindScenesResult struct {
	Count  int     `json:"count"`
	Scenes []Scene `json:"scenes"`
}

// FindScenes fetches one page of scenes matching filter, used by the
// reconciliation engine to pull batches for gap detection.
func (c *Client) FindScenes(ctx context.Context, filter map[string]any, page, perPage int) (*FindScenesResult, error) {
	var payload struct {
		FindScenes FindScenesResult `json:"findScenes"`
	}
	vars := map[string]any{"filter": filter, "page": page, "per_page": perPage}
	if err := c.do(ctx, findScenesQuery, vars, &payload); err != nil {
		return nil, err
	}
	return &payload.FindScenes, nil
}
