package ledger

import (
	"sort"
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/vthunder/acuity/internal/types"
)

// ActivityCount is how often an off-task activity was seen
type ActivityCount struct {
	Activity string `json:"activity"`
	Count    int    `json:"count"`
}

// Report summarizes focus over a set of observations
type Report struct {
	Task       string          `json:"task,omitempty"`
	Total      int             `json:"total"`
	OnCount    int             `json:"on_count"`
	OffCount   int             `json:"off_count"`
	Errors     int             `json:"errors"`
	OnPercent  float64         `json:"on_percent"`
	OffPercent float64         `json:"off_percent"`
	OffTask    []ActivityCount `json:"off_task,omitempty"`
}

// Summarize counts on/off observations for task (all tasks when empty).
// Observations with unknown OnTask are skipped. Error-class observations are
// counted in Errors and as off-task, but never listed as activities.
func Summarize(history []types.Observation, task string) Report {
	r := Report{Task: task}
	counts := make(map[string]int)

	for _, obs := range history {
		if task != "" && obs.Task != task {
			continue
		}
		if !obs.OnTask.Known() {
			continue
		}
		r.Total++
		if obs.OnTask == types.OnTaskTrue {
			r.OnCount++
			continue
		}
		r.OffCount++
		if obs.IsError() {
			r.Errors++
			continue
		}
		counts[obs.Activity]++
	}

	if r.Total > 0 {
		r.OnPercent = percent(r.OnCount, r.Total)
		r.OffPercent = percent(r.OffCount, r.Total)
	}

	for activity, n := range counts {
		r.OffTask = append(r.OffTask, ActivityCount{Activity: activity, Count: n})
	}
	sort.Slice(r.OffTask, func(i, j int) bool {
		if r.OffTask[i].Count != r.OffTask[j].Count {
			return r.OffTask[i].Count > r.OffTask[j].Count
		}
		return r.OffTask[i].Activity < r.OffTask[j].Activity
	})
	return r
}

// OffTaskActivities returns the distinct off-task activity names, most frequent first
func (r Report) OffTaskActivities() []string {
	out := make([]string, 0, len(r.OffTask))
	for _, ac := range r.OffTask {
		out = append(out, ac.Activity)
	}
	return out
}

func percent(n, total int) float64 {
	// one decimal place
	return float64(int(float64(n)*1000/float64(total)+0.5)) / 10
}

// GroupActivities buckets activity descriptions by the first named entity
// (e.g. "YouTube", "Reddit") prose finds, falling back to the first noun.
// Used when the model cannot categorize.
func GroupActivities(activities []string) map[string][]string {
	groups := make(map[string][]string)
	for _, a := range activities {
		key := activityKey(a)
		groups[key] = append(groups[key], a)
	}
	return groups
}

func activityKey(activity string) string {
	doc, err := prose.NewDocument(activity)
	if err != nil {
		return "Other"
	}

	for _, ent := range doc.Entities() {
		if name := strings.TrimSpace(ent.Text); name != "" {
			return name
		}
	}

	// Proper nouns first, then any noun
	var noun string
	for _, tok := range doc.Tokens() {
		if tok.Tag == "NNP" || tok.Tag == "NNPS" {
			return tok.Text
		}
		if noun == "" && strings.HasPrefix(tok.Tag, "NN") {
			noun = tok.Text
		}
	}
	if noun != "" {
		return strings.ToUpper(noun[:1]) + noun[1:]
	}
	return "Other"
}
