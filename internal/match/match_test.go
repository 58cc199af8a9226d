package match

import "testing"

func TestCleanFilenameStripsQualityAndDate(t *testing.T) {
	got := CleanFilename("Scene Title 1080p x264 2023-05-01.mp4")
	if got != "Scene Title" {
		t.Fatalf("got %q", got)
	}
}

func TestFindExactMatchIsHighConfidence(t *testing.T) {
	scene := Scene{Title: "Scene Title", FilePath: "/data/scenes/Scene Title.mp4"}
	candidates := []Candidate{
		{ID: "1", Title: "Scene Title", FilePath: "/media/scenes/Scene Title 1080p.mp4"},
	}
	res := Find(scene, candidates, nil)
	if res.Confidence != High {
		t.Fatalf("expected High confidence, got %v", res.Confidence)
	}
	if res.Candidate.ID != "1" {
		t.Fatalf("expected candidate 1, got %q", res.Candidate.ID)
	}
}

func TestFindNoCandidatesIsNone(t *testing.T) {
	res := Find(Scene{FilePath: "/data/x.mp4"}, nil, nil)
	if res.Confidence != None {
		t.Fatalf("expected None, got %v", res.Confidence)
	}
}

func TestFindTwoExactMatchesIsLowConfidence(t *testing.T) {
	scene := Scene{Title: "Scene Title", FilePath: "/data/scenes/Scene Title.mp4"}
	candidates := []Candidate{
		{ID: "1", Title: "Scene Title", FilePath: "/media/scenes/Scene Title.mp4"},
		{ID: "2", Title: "Scene Title", FilePath: "/media/other/Scene Title.mkv"},
	}
	res := Find(scene, candidates, nil)
	if res.Confidence != Low {
		t.Fatalf("expected Low confidence when two candidates match exactly, got %v", res.Confidence)
	}
}

func TestFindPartialMatchIsLowConfidence(t *testing.T) {
	scene := Scene{FilePath: "/data/scenes/Some Unusual Title.mp4"}
	candidates := []Candidate{
		{ID: "2", FilePath: "/media/scenes/Some Unusual Title (extended cut).mkv"},
	}
	res := Find(scene, candidates, nil)
	if res.Confidence != Low {
		t.Fatalf("expected Low confidence, got %v", res.Confidence)
	}
}
