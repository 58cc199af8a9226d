// Package targetapi is a REST client for the downstream media server
// ("Target"): metadata writes, library search, image uploads, library
// scan triggers, and the health probe the recovery scheduler drives.
package targetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/classify"
)

// Client talks to the Target's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New builds a Client with independent connect/read timeouts, mirroring
// the separate connect_timeout/read_timeout tunables operators use to
// distinguish "server unreachable" from "server slow".
func New(baseURL, token string, connectTimeout, readTimeout time.Duration) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	tr.ResponseHeaderTimeout = readTimeout
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   connectTimeout + readTimeout,
		},
	}
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("targetapi: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &classify.StatusError{Code: resp.StatusCode, Err: fmt.Errorf("targetapi: %s %s: http %d", method, path, resp.StatusCode)}
	}
	return resp, nil
}

// Healthy performs a lightweight reachability probe, used by the
// recovery scheduler to decide whether to attempt a breaker probe.
func (c *Client) Healthy(ctx context.Context) bool {
	resp, err := c.request(ctx, http.MethodGet, "/identity", nil, nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Item is a single library item (a scene's Target-side counterpart).
type Item struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	FilePath  string `json:"filePath"`
	Summary   string `json:"summary"`
}

// SearchLibrary searches a library section for items matching title.
func (c *Client) SearchLibrary(ctx context.Context, sectionKey, title string) ([]Item, error) {
	q := url.Values{"title": {title}}
	resp, err := c.request(ctx, http.MethodGet, "/library/sections/"+sectionKey+"/search", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		MediaContainer struct {
			Metadata []Item `json:"Metadata"`
		} `json:"MediaContainer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("targetapi: decode search: %w", err)
	}
	return payload.MediaContainer.Metadata, nil
}

// MetadataUpdate is the set of fields the writer may push to one item.
// A field left at its zero value is omitted from the request entirely —
// the Target's current value is left untouched. To actively blank a
// field instead, set the matching Clear* flag; Value and Clear are
// mutually exclusive per field, and Clear wins if both are set.
type MetadataUpdate struct {
	Title     string
	Summary   string
	Tagline   string
	Studio    string
	Date      string // YYYY-MM-DD
	Genres    []string
	Actors    []string
	RatingKey string

	ClearSummary bool
	ClearStudio  bool
	ClearTagline bool
	ClearDate    bool
	ClearGenres  bool
	ClearActors  bool
}

// UpdateMetadata pushes a partial metadata update for one library item.
// Fields left empty and unmarked for clearing are omitted from the
// request, matching the Target's own "only touch fields present in the
// request" semantics. A cleared summary, tagline, studio or date is sent
// with an empty value and unlocked, so the Target falls back to its own
// metadata agent instead of keeping the stale synced value. Cleared
// genres or actors are only unlocked; no tag entries are sent for them.
func (c *Client) UpdateMetadata(ctx context.Context, u MetadataUpdate) error {
	q := url.Values{"type": {"1"}, "id": {u.RatingKey}}
	if u.Title != "" {
		q.Set("title.value", u.Title)
		q.Set("title.locked", "1")
	}
	switch {
	case u.ClearSummary:
		q.Set("summary.value", "")
		q.Set("summary.locked", "0")
	case u.Summary != "":
		q.Set("summary.value", u.Summary)
		q.Set("summary.locked", "1")
	}
	switch {
	case u.ClearTagline:
		q.Set("tagline.value", "")
		q.Set("tagline.locked", "0")
	case u.Tagline != "":
		q.Set("tagline.value", u.Tagline)
		q.Set("tagline.locked", "1")
	}
	switch {
	case u.ClearStudio:
		q.Set("studio.value", "")
		q.Set("studio.locked", "0")
	case u.Studio != "":
		q.Set("studio.value", u.Studio)
		q.Set("studio.locked", "1")
	}
	switch {
	case u.ClearDate:
		q.Set("originallyAvailableAt.value", "")
		q.Set("originallyAvailableAt.locked", "0")
	case u.Date != "":
		q.Set("originallyAvailableAt.value", u.Date)
		q.Set("originallyAvailableAt.locked", "1")
	}
	switch {
	case u.ClearGenres:
		q.Set("genre.locked", "0")
	default:
		for i, g := range u.Genres {
			q.Set("genre["+strconv.Itoa(i)+"].tag.tag", g)
		}
	}
	switch {
	case u.ClearActors:
		q.Set("actor.locked", "0")
	default:
		for i, a := range u.Actors {
			q.Set("actor["+strconv.Itoa(i)+"].tag.tag", a)
		}
	}

	resp, err := c.request(ctx, http.MethodPut, "/library/sections/all/edit", q, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// UploadPoster uploads raw image bytes as an item's poster.
func (c *Client) UploadPoster(ctx context.Context, ratingKey string, data []byte) error {
	return c.uploadImage(ctx, "/library/metadata/"+ratingKey+"/posters", data)
}

// UploadBackground uploads raw image bytes as an item's background art.
func (c *Client) UploadBackground(ctx context.Context, ratingKey string, data []byte) error {
	return c.uploadImage(ctx, "/library/metadata/"+ratingKey+"/arts", data)
}

func (c *Client) uploadImage(ctx context.Context, path string, data []byte) error {
	resp, err := c.request(ctx, http.MethodPost, path, nil, bytes.NewReader(data))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// AddToCollection adds an item to a named collection, creating it as a
// side effect of the Target's own API if it does not yet exist.
func (c *Client) AddToCollection(ctx context.Context, ratingKey, collection string) error {
	q := url.Values{"collection[0].tag.tag": {collection}, "collection.locked": {"1"}}
	resp, err := c.request(ctx, http.MethodPut, "/library/metadata/"+ratingKey, q, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// TriggerScan kicks off a refresh of the library section sectionKey.
func (c *Client) TriggerScan(ctx context.Context, sectionKey string) error {
	resp, err := c.request(ctx, http.MethodGet, "/library/sections/"+sectionKey+"/refresh", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
