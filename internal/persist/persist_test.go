package persist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/types"
)

type memBackend struct {
	mu    sync.Mutex
	obs   []types.Observation
	tasks []types.CompletedTask
	err   error
	block chan struct{} // when set, writes wait on it or ctx
}

func (m *memBackend) AppendObservation(ctx context.Context, obs types.Observation) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.obs = append(m.obs, obs)
	return nil
}

func (m *memBackend) AppendCompletedTask(ctx context.Context, ct types.CompletedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tasks = append(m.tasks, ct)
	return nil
}

func TestWriterDeliversInOrder(t *testing.T) {
	b := &memBackend{}
	w := NewWriter(b, 10, time.Second)
	for _, id := range []string{"1", "2", "3"} {
		w.EnqueueObservation(types.Observation{ID: id})
	}
	w.EnqueueCompletedTask(types.CompletedTask{ID: "t1"})
	if !w.Close(2 * time.Second) {
		t.Fatal("Close timed out")
	}

	if len(b.obs) != 3 || b.obs[0].ID != "1" || b.obs[2].ID != "3" {
		t.Errorf("unexpected observations %+v", b.obs)
	}
	if len(b.tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(b.tasks))
	}
	if s := w.Stats(); s.Written != 4 || s.Failed != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestWriterNeverBlocksWhenFull(t *testing.T) {
	b := &memBackend{block: make(chan struct{})}
	w := NewWriter(b, 1, time.Minute)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			w.EnqueueObservation(types.Observation{ID: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked on a stalled backend")
	}
	if w.Stats().Dropped == 0 {
		t.Error("expected drops with a full queue")
	}
	close(b.block)
	w.Close(2 * time.Second)
}

func TestWriterFailureIsCounted(t *testing.T) {
	b := &memBackend{err: errors.New("disk full")}
	w := NewWriter(b, 4, time.Second)
	w.EnqueueCompletedTask(types.CompletedTask{ID: "t"})
	w.Close(2 * time.Second)
	if s := w.Stats(); s.Failed != 1 || s.Written != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestWriterPerWriteTimeout(t *testing.T) {
	b := &memBackend{block: make(chan struct{})}
	w := NewWriter(b, 4, 20*time.Millisecond)
	w.EnqueueObservation(types.Observation{ID: "slow"})
	if !w.Close(2 * time.Second) {
		t.Fatal("timeout should let the worker finish")
	}
	if s := w.Stats(); s.Failed != 1 {
		t.Errorf("expected timed-out write to fail, got %+v", s)
	}
}

func TestWriterDropsAfterClose(t *testing.T) {
	w := NewWriter(&memBackend{}, 4, time.Second)
	w.Close(time.Second)
	w.EnqueueObservation(types.Observation{ID: "late"})
	if w.Stats().Dropped != 1 {
		t.Error("expected record after close to be dropped")
	}
	// second Close is harmless
	w.Close(time.Second)
}

func TestMultiJoinsErrors(t *testing.T) {
	good := &memBackend{}
	bad := &memBackend{err: errors.New("nope")}
	m := Multi{good, bad}
	err := m.AppendObservation(context.Background(), types.Observation{ID: "1"})
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	if len(good.obs) != 1 {
		t.Error("healthy backend should still receive the record")
	}
}

func newTestRemote(t *testing.T, handler http.HandlerFunc) *RemoteClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRemoteClient(srv.URL, "test-token")
}

func TestRemoteAppendObservation(t *testing.T) {
	c := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/observations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("wrong auth header %q", r.Header.Get("Authorization"))
		}
		var obs types.Observation
		if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if obs.ID != "o1" || obs.OnTask != types.OnTaskTrue {
			t.Errorf("unexpected body %+v", obs)
		}
		w.WriteHeader(http.StatusCreated)
	})
	err := c.AppendObservation(context.Background(), types.Observation{ID: "o1", OnTask: types.OnTaskTrue})
	if err != nil {
		t.Fatalf("AppendObservation: %v", err)
	}
}

func TestRemoteErrorMessage(t *testing.T) {
	c := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "bad token"})
	})
	err := c.AppendCompletedTask(context.Background(), types.CompletedTask{ID: "t"})
	if err == nil || err.Error() != "backend error [401 Unauthorized]: bad token" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRemoteObservationsQuery(t *testing.T) {
	c := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("range") != "today" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]types.Observation{{ID: "a"}, {ID: "b"}})
	})
	got, err := c.Observations(context.Background(), ledger.RangeToday, 5)
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" {
		t.Errorf("unexpected %+v", got)
	}
}
