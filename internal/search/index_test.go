package search_test

import (
	"context"
	"testing"

	"weft/internal/activity"
	"weft/internal/backend"
	"weft/internal/search"
	"weft/internal/testsupport"
)

func TestIndexMakesEntitySearchable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	meta := testsupport.NewMetadata(t, st, "Field notes", "text/plain", "observations about migrating cranes")
	if err := st.SetAttributes(ctx, meta.Ref(), map[string]any{"region": "north"}); err != nil {
		t.Fatalf("SetAttributes: %v", err)
	}

	job := testsupport.ClaimJob(t, st, search.IndexActivityID, meta.Ref(), nil)
	actx := activity.NewContext(job, st, activity.ContextOptions{TempDir: cfg.Paths.TempDir})
	if err := search.NewIndex().Execute(ctx, actx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	hits, err := st.Search(ctx, backend.SearchQuery{Query: "cranes", Filter: map[string]string{"region": "north"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Target.MetadataID != meta.ID || hits[0].Title != "Field notes" {
		t.Fatalf("unexpected hits %+v", hits)
	}

	hits, err = st.Search(ctx, backend.SearchQuery{Query: "cranes", Filter: map[string]string{"region": "south"}})
	if err != nil || len(hits) != 0 {
		t.Fatalf("filtered search = %+v, %v", hits, err)
	}
}

func TestIndexWithoutText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	meta := testsupport.NewMetadata(t, st, "Report", "text/plain", "confidential payload")

	job := testsupport.ClaimJob(t, st, search.IndexActivityID, meta.Ref(), map[string]any{"include_text": false})
	actx := activity.NewContext(job, st, activity.ContextOptions{TempDir: cfg.Paths.TempDir})
	if err := search.NewIndex().Execute(ctx, actx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if hits, err := st.Search(ctx, backend.SearchQuery{Query: "confidential"}); err != nil || len(hits) != 0 {
		t.Fatalf("body should not be indexed: %+v, %v", hits, err)
	}
	if hits, err := st.Search(ctx, backend.SearchQuery{Query: "Report"}); err != nil || len(hits) != 1 {
		t.Fatalf("title should be indexed: %+v, %v", hits, err)
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	meta := testsupport.NewMetadata(t, st, "Field notes", "text/plain", "observations about migrating cranes")
	if err := st.IndexDocument(ctx, backend.SearchDocument{Target: meta.Ref(), Title: meta.Name, Body: "cranes"}); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	job := testsupport.ClaimJob(t, st, search.RemoveActivityID, meta.Ref(), nil)
	actx := activity.NewContext(job, st, activity.ContextOptions{TempDir: cfg.Paths.TempDir})
	for i := 0; i < 2; i++ {
		if err := search.NewRemove().Execute(ctx, actx, job); err != nil {
			t.Fatalf("Execute #%d: %v", i+1, err)
		}
	}

	hits, err := st.Search(ctx, backend.SearchQuery{Query: "cranes"})
	if err != nil || len(hits) != 0 {
		t.Fatalf("search after removal = %+v, %v", hits, err)
	}
}
