package daemonrun

import (
	"context"
	"sort"
	"testing"

	"weft/internal/activity"
	"weft/internal/testsupport"
)

func TestDefaultActivitiesRegisterUniquely(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	reg, bundle, err := BuildRegistry(context.Background(), cfg, st, Services{})
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if bundle != nil {
		t.Fatalf("open build should have no extension bundle, got %+v", bundle)
	}
	want := []string{
		"ai.embeddings.generate",
		"ai.prompt.execute",
		"collection.set.ready",
		"metadata.attributes.set",
		"metadata.transition.to",
		"search.index.add",
		"search.index.delete",
		"video.encode.av1",
		"video.thumbnail.extractor",
		"workflow.general.if",
	}
	got := reg.IDs()
	sort.Strings(got)
	if len(got) != len(want) {
		t.Fatalf("IDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("IDs = %v, want %v", got, want)
		}
	}
}

func TestMissingServicesReportUnhealthy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	for _, act := range DefaultActivities(cfg, Services{}) {
		checker, ok := act.(activity.HealthChecker)
		if !ok {
			continue
		}
		health := checker.HealthCheck(context.Background())
		switch act.ID() {
		case "ai.prompt.execute", "ai.embeddings.generate":
			if health.Ready {
				t.Fatalf("%s should be unhealthy without clients", act.ID())
			}
		}
	}
}

func TestOpenServicesWithoutConfiguration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, closeFn := OpenServices(context.Background(), cfg, nil)
	defer closeFn()
	if svc.LLM != nil || svc.Vectors != nil {
		t.Fatalf("expected no services, got %+v", svc)
	}
}
