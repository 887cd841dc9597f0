package ledger

import (
	"testing"

	"github.com/vthunder/acuity/internal/types"
)

func TestSummarize(t *testing.T) {
	errObs := types.Observation{Task: "write code", OnTask: types.OnTaskFalse, Activity: "API error: boom", Fault: types.FaultTransport}
	history := []types.Observation{
		{Task: "write code", OnTask: types.OnTaskTrue, Activity: "Editing"},
		{Task: "write code", OnTask: types.OnTaskTrue, Activity: "Editing"},
		{Task: "write code", OnTask: types.OnTaskFalse, Activity: "Browsing Reddit"},
		{Task: "write code", OnTask: types.OnTaskFalse, Activity: "Browsing Reddit"},
		{Task: "write code", OnTask: types.OnTaskFalse, Activity: "Watching YouTube"},
		errObs,
		{Task: "", OnTask: types.OnTaskUnknown, Activity: "Unknown"},
		{Task: "email", OnTask: types.OnTaskTrue, Activity: "Gmail"},
	}

	r := Summarize(history, "write code")
	if r.Total != 6 || r.OnCount != 2 || r.OffCount != 4 || r.Errors != 1 {
		t.Errorf("unexpected counts %+v", r)
	}
	if r.OnPercent != 33.3 || r.OffPercent != 66.7 {
		t.Errorf("unexpected percentages %.1f/%.1f", r.OnPercent, r.OffPercent)
	}
	if len(r.OffTask) != 2 || r.OffTask[0].Activity != "Browsing Reddit" || r.OffTask[0].Count != 2 {
		t.Errorf("unexpected off-task list %+v", r.OffTask)
	}
	acts := r.OffTaskActivities()
	if len(acts) != 2 || acts[1] != "Watching YouTube" {
		t.Errorf("unexpected activities %v", acts)
	}

	all := Summarize(history, "")
	if all.Total != 7 || all.OnCount != 3 {
		t.Errorf("unexpected all-task counts %+v", all)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	r := Summarize(nil, "")
	if r.Total != 0 || r.OnPercent != 0 || r.OffPercent != 0 {
		t.Errorf("expected zero report, got %+v", r)
	}
}

func TestGroupActivitiesKeepsEverything(t *testing.T) {
	in := []string{"Browsing Reddit", "Watching YouTube", "Reading news on CNN", ""}
	groups := GroupActivities(in)
	n := 0
	for key, items := range groups {
		if key == "" {
			t.Error("group key should never be empty")
		}
		n += len(items)
	}
	if n != len(in) {
		t.Errorf("expected %d grouped activities, got %d", len(in), n)
	}
}
