package cache

import (
	"context"
	"testing"
)

func TestSaveIsAdditiveByURL(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()

	added, err := c.Save(ctx, "Go generics", []Entry{
		{Title: "First", URL: "https://a.example", Text: "one"},
		{Title: "Second", URL: "https://b.example", Text: "two"},
	})
	if err != nil || added != 2 {
		t.Fatalf("Save() = %d, %v, want 2 entries", added, err)
	}

	added, err = c.Save(ctx, "go generics", []Entry{
		{Title: "Replacement", URL: "https://a.example", Text: "changed"},
		{Title: "Third", URL: "https://c.example", Text: "three"},
	})
	if err != nil || added != 1 {
		t.Fatalf("second Save() = %d, %v, want 1 added", added, err)
	}

	entries, _ := c.Lookup(ctx, "go generics")
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for _, e := range entries {
		if e.URL == "https://a.example" && e.Title != "First" {
			t.Fatalf("existing entry was overwritten: %+v", e)
		}
	}
}

func TestSaveSkipsEmptyURL(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	added, _ := c.Save(context.Background(), "topic", []Entry{{Title: "No URL"}})
	if added != 0 {
		t.Fatalf("Save() added %d, want 0", added)
	}
}

func TestLookupMatchesSubstringCaseInsensitive(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()
	if _, err := c.Save(ctx, "Quantum Computing Advances", []Entry{
		{Title: "QC", URL: "https://qc.example", Text: "qubits"},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, _ := c.Lookup(ctx, "  QUANTUM COMPUTING ADVANCES ")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entries, _ = c.Lookup(ctx, "unrelated topic")
	if len(entries) != 0 {
		t.Fatalf("unrelated lookup returned %d entries", len(entries))
	}
}

func TestTopicMatchesSubstring(t *testing.T) {
	t.Parallel()
	if !topicMatches("golang generics deep dive", "generics") {
		t.Fatalf("expected substring match")
	}
	if topicMatches("golang", "rust") {
		t.Fatalf("unexpected match")
	}
}
