package capture

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessProbe reports the busiest user processes as classifier hints
type ProcessProbe struct {
	limit   int
	exclude map[string]bool
	list    func(ctx context.Context) ([]*process.Process, error)
}

// NewProcessProbe creates a probe returning at most limit process names
func NewProcessProbe(limit int) *ProcessProbe {
	if limit <= 0 {
		limit = 5
	}
	return &ProcessProbe{
		limit: limit,
		exclude: map[string]bool{
			// Capture tooling and the agent itself are noise
			"acuity": true, "acuity-mcp": true, "screencapture": true, "grim": true,
			"kernel_task": true, "windowserver": true, "systemd": true, "launchd": true,
		},
		list: process.ProcessesWithContext,
	}
}

type procUsage struct {
	name string
	cpu  float64
}

// Hints lists distinct process names ordered by CPU usage
func (p *ProcessProbe) Hints(ctx context.Context) ([]string, error) {
	procs, err := p.list(ctx)
	if err != nil {
		return nil, err
	}

	self := int32(os.Getpid())
	best := make(map[string]float64)
	for _, proc := range procs {
		if proc.Pid == self {
			continue
		}
		name, err := proc.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		if p.exclude[strings.ToLower(name)] {
			continue
		}
		cpu, err := proc.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		if cpu > best[name] {
			best[name] = cpu
		} else if _, seen := best[name]; !seen {
			best[name] = cpu
		}
	}

	return topNames(best, p.limit), nil
}

func topNames(usage map[string]float64, limit int) []string {
	ranked := make([]procUsage, 0, len(usage))
	for name, cpu := range usage {
		ranked = append(ranked, procUsage{name: name, cpu: cpu})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].cpu != ranked[j].cpu {
			return ranked[i].cpu > ranked[j].cpu
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.name
	}
	return names
}
