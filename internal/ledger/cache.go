package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vthunder/acuity/internal/types"
)

// Cache is the local durable record of completed tasks, one JSON object per
// line. Writes are synchronous so a remote outage cannot lose a record.
type Cache struct {
	path string
	mu   sync.Mutex
}

// NewCache creates a cache under statePath
func NewCache(statePath string) *Cache {
	return &Cache{
		path: filepath.Join(statePath, "completed-tasks.jsonl"),
	}
}

// Path returns the backing file
func (c *Cache) Path() string {
	return c.path
}

// Append writes one completed task
func (c *Cache) Append(ct types.CompletedTask) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}

	// Open file for append
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(ct)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Load reads every completed task in write order
func (c *Cache) Load() ([]types.CompletedTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tasks []types.CompletedTask
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ct types.CompletedTask
		if err := json.Unmarshal([]byte(line), &ct); err != nil {
			continue // skip malformed entries
		}
		tasks = append(tasks, ct)
	}
	return tasks, nil
}
