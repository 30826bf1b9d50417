package knowledge

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDataset(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()

	writeDataset(t, dir, "crop_diseases.json", `{"diseases": [
		{"name": "Tomato Early Blight", "symptoms": "dark concentric spots on lower leaves", "treatment": "copper fungicide spray"},
		{"name": "Wheat Rust", "symptoms": "orange pustules on leaves", "treatment": "resistant varieties"}
	]}`)
	writeDataset(t, dir, "market_prices.json", `{"records": [
		{"commodity": "Tomato", "market": "Kolar", "price": "1800 per quintal"},
		{"commodity": "Onion", "market": "Lasalgaon", "price": "2200 per quintal"}
	]}`)
	writeDataset(t, dir, "government_schemes.json", `{"schemes": [
		{"name": "PM-KISAN", "benefit": "income support of 6000 per year", "eligibility": "all landholding farmers"}
	]}`)

	idx, err := Load(IndexConfig{
		DataDir: dir,
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestLoad_MissingFilesSkipped(t *testing.T) {
	// knowledge_base.json is absent in every test fixture; loading must
	// still succeed with the present datasets.
	idx := newTestIndex(t)
	if idx.Size() != 5 {
		t.Errorf("expected 5 entries, got %d", idx.Size())
	}
}

func TestLoad_EmptyDirectory(t *testing.T) {
	idx, err := Load(IndexConfig{
		DataDir: t.TempDir(),
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 0 {
		t.Errorf("expected empty index, got %d entries", idx.Size())
	}
	if facts := idx.Search("tomato blight", ""); len(facts) != 0 {
		t.Errorf("empty index must return no facts, got %d", len(facts))
	}
}

func TestSearch_RanksRelevantFirst(t *testing.T) {
	idx := newTestIndex(t)

	facts := idx.Search("tomato leaves have dark spots", "")
	if len(facts) == 0 {
		t.Fatal("expected matches")
	}
	if facts[0].Topic != "Tomato Early Blight" {
		t.Errorf("expected disease entry ranked first, got %s", facts[0].Topic)
	}
	for _, f := range facts {
		if f.Score <= 0 || f.Score > 1 {
			t.Errorf("score out of range: %f", f.Score)
		}
	}
}

func TestSearch_CategoryFilter(t *testing.T) {
	idx := newTestIndex(t)

	facts := idx.Search("tomato", "price")
	if len(facts) != 1 {
		t.Fatalf("expected 1 price fact, got %d", len(facts))
	}
	if facts[0].Topic != "Tomato" {
		t.Errorf("unexpected fact: %+v", facts[0])
	}
}

func TestSearch_NoMatches(t *testing.T) {
	idx := newTestIndex(t)

	if facts := idx.Search("quantum physics homework", ""); len(facts) != 0 {
		t.Errorf("expected no matches, got %d", len(facts))
	}
	if facts := idx.Search("a an?!", ""); len(facts) != 0 {
		t.Errorf("short tokens must not match, got %d", len(facts))
	}
}

func TestTopK(t *testing.T) {
	idx := newTestIndex(t)

	facts := idx.TopK("tomato", "", 1)
	if len(facts) != 1 {
		t.Errorf("expected TopK to cap results at 1, got %d", len(facts))
	}
}

func TestBuildContext_Budget(t *testing.T) {
	idx := newTestIndex(t)
	facts := idx.Search("tomato", "")
	if len(facts) < 2 {
		t.Fatal("fixture should match at least 2 facts")
	}

	full := idx.BuildContext(facts, 3000)
	if !strings.HasPrefix(full, "Relevant knowledge:\n") {
		t.Errorf("unexpected context shape: %q", full)
	}
	if !strings.Contains(full, "Tomato Early Blight") {
		t.Errorf("top fact missing from context")
	}

	// A tight budget keeps the header but drops facts that overflow.
	tight := idx.BuildContext(facts, len("Relevant knowledge:\n")+10)
	if strings.Count(tight, "- [") != 0 {
		t.Errorf("expected all facts dropped under tight budget, got %q", tight)
	}
	if len(tight) > len("Relevant knowledge:\n")+10 {
		t.Errorf("budget exceeded: %d chars", len(tight))
	}

	if got := idx.BuildContext(nil, 3000); got != "" {
		t.Errorf("no facts must yield empty context, got %q", got)
	}
}
