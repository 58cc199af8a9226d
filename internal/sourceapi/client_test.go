package sourceapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFindSceneSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"findScene": map[string]any{"id": "1", "title": "Scene"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", 0)
	scene, err := c.FindScene(context.Background(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if scene.Title != "Scene" {
		t.Fatalf("got %+v", scene)
	}
}

func TestFindSceneNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"findScene": nil}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 0)
	_, err := c.FindScene(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not found error")
	}
}

func TestSceneExistsFalseOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"findScene": nil}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 0)
	ok, err := c.SceneExists(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false")
	}
}

func TestGraphQLErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"errors": []map[string]any{{"message": "boom"}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", 0)
	_, err := c.FindScene(context.Background(), "1")
	if err == nil {
		t.Fatal("expected graphql error")
	}
}
