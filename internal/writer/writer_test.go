package writer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/config"
	"github.com/trek-e/stash2plex-sync/internal/sourceapi"
	"github.com/trek-e/stash2plex-sync/internal/targetapi"
)

func TestApplyNoopWhenMasterDisabled(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := targetapi.New(srv.URL, "tok", time.Second, time.Second)
	w := New(client, config.SyncToggles{Master: false}, 100, false)
	err := w.Apply(context.Background(), "1", &sourceapi.Scene{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("expected no request when master toggle is off")
	}
}

func TestApplySendsEnabledFields(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := targetapi.New(srv.URL, "tok", time.Second, time.Second)
	w := New(client, config.SyncToggles{Master: true, Summary: true}, 100, false)
	scene := &sourceapi.Scene{Details: "a great scene"}
	if err := w.Apply(context.Background(), "1", scene, nil, nil); err != nil {
		t.Fatal(err)
	}
	if gotQuery == "" {
		t.Fatal("expected query parameters to be sent")
	}
}

func TestApplyClearsFieldExplicitlySetToNull(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := targetapi.New(srv.URL, "tok", time.Second, time.Second)
	w := New(client, config.SyncToggles{Master: true, Summary: true}, 100, false)
	scene := &sourceapi.Scene{Details: "stale summary"}
	touched := &TouchedFields{Present: map[string]bool{"details": true}, Null: map[string]bool{"details": true}}

	if err := w.Apply(context.Background(), "1", scene, nil, touched); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gotQuery, "summary.locked=0") {
		t.Fatalf("expected summary to be unlocked/cleared, got query %q", gotQuery)
	}
	if strings.Contains(gotQuery, "stale+summary") {
		t.Fatal("expected the stale scene value not to be sent when the field was explicitly cleared")
	}
}

func TestApplyPreservesFieldAbsentFromTouchedSet(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := targetapi.New(srv.URL, "tok", time.Second, time.Second)
	w := New(client, config.SyncToggles{Master: true, Summary: true}, 100, false)
	scene := &sourceapi.Scene{Details: "should not be written"}
	touched := &TouchedFields{Present: map[string]bool{"title": true}}

	if err := w.Apply(context.Background(), "1", scene, nil, touched); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gotQuery, "summary.value") {
		t.Fatal("expected summary to be left untouched when absent from the event payload")
	}
}

func TestHasMeaningfulMetadataExcludesRatingAlone(t *testing.T) {
	scene := &sourceapi.Scene{Rating100: 100}
	if HasMeaningfulMetadata(scene) {
		t.Fatal("rating alone should not count as meaningful metadata")
	}
}

func TestHasMeaningfulMetadataWithSummary(t *testing.T) {
	scene := &sourceapi.Scene{Details: "something"}
	if !HasMeaningfulMetadata(scene) {
		t.Fatal("expected summary to count as meaningful metadata")
	}
}
