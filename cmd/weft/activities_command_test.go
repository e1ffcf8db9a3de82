package main

import (
	"encoding/json"
	"testing"
)

func TestActivitiesList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "activities", "list")
	if err != nil {
		t.Fatalf("activities list: %v", err)
	}
	for _, id := range []string{"metadata.transition.to", "ai.prompt.execute", "search.index.add"} {
		requireContains(t, out, id)
	}

	out, _, err = env.run(t, "--json", "activities", "list", "--check")
	if err != nil {
		t.Fatalf("activities list --check: %v", err)
	}
	var rows []activityRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	byID := make(map[string]activityRow, len(rows))
	for _, row := range rows {
		if row.Ready == nil {
			t.Fatalf("expected health for %s", row.ID)
		}
		byID[row.ID] = row
	}
	if !*byID["metadata.transition.to"].Ready {
		t.Fatalf("transition activity should always be ready: %+v", byID["metadata.transition.to"])
	}
	if *byID["ai.prompt.execute"].Ready {
		t.Fatalf("prompt activity must be unhealthy without an llm key")
	}
}
