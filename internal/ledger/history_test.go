package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vthunder/acuity/internal/types"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    Range
		wantErr bool
	}{
		{"", RangeAll, false},
		{"today", RangeToday, false},
		{"week", RangeWeek, false},
		{"month", RangeMonth, false},
		{"all", RangeAll, false},
		{"year", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRange(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestRecentNewestFirstWithLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := NewHistory()
	h.Append(types.Observation{ID: "yesterday", Timestamp: now.Add(-24 * time.Hour)})
	h.Append(types.Observation{ID: "a", Timestamp: now.Add(-2 * time.Hour)})
	h.Append(types.Observation{ID: "b", Timestamp: now.Add(-time.Hour)})
	h.Append(types.Observation{ID: "c", Timestamp: now})

	got := h.Recent(RangeToday, now, 2)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("unexpected recent %+v", got)
	}
	if all := h.Recent(RangeAll, now, 0); len(all) != 4 {
		t.Errorf("expected 4, got %d", len(all))
	}
	if week := h.Recent(RangeWeek, now, 0); len(week) != 4 {
		t.Errorf("expected 4 in week, got %d", len(week))
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	h := NewHistory()
	h.Append(types.Observation{ID: "a"})
	snap := h.Snapshot()
	snap[0].ID = "changed"
	h.Append(types.Observation{ID: "b"})
	if h.Snapshot()[0].ID != "a" || len(snap) != 1 {
		t.Error("snapshot should not alias history")
	}
}

func TestCacheSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)
	if err := c.Append(types.CompletedTask{ID: "1", Task: "a", CompletedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "completed-tasks.jsonl"), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n")
	f.Close()
	if err := c.Append(types.CompletedTask{ID: "2", Task: "b", CompletedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	tasks, err := c.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].ID != "1" || tasks[1].ID != "2" {
		t.Errorf("unexpected tasks %+v", tasks)
	}
}

func TestCacheMissingFile(t *testing.T) {
	c := NewCache(t.TempDir())
	tasks, err := c.Load()
	if err != nil || len(tasks) != 0 {
		t.Errorf("expected empty load, got %v %v", tasks, err)
	}
}
