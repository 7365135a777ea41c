package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/models"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. The queue's commit function is
// substituted with a fake; persistence itself is covered by the integration
// tests.

type fakeCommitter struct {
	mu      sync.Mutex
	commits []int64
	fail    error
	done    chan struct{}
}

func newFakeCommitter(buf int) *fakeCommitter {
	return &fakeCommitter{done: make(chan struct{}, buf)}
}

func (f *fakeCommitter) commit(ctx context.Context, docId int, version int64, items []models.StockDocumentItem, totals models.DocumentTotals) error {
	f.mu.Lock()
	f.commits = append(f.commits, version)
	err := f.fail
	f.mu.Unlock()
	f.done <- struct{}{}
	return err
}

func (f *fakeCommitter) committed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.commits))
	copy(out, f.commits)
	return out
}

func waitCommit(t *testing.T, f *fakeCommitter) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for commit")
	}
}

func testDoc(id int, syncVersion int64) *models.StockDocument {
	return &models.StockDocument{
		ID:           id,
		DocumentType: models.DocumentTypeCount,
		SyncVersion:  syncVersion,
		Items: []models.StockDocumentItem{
			{ProductId: 1, Actual: decimal.NewFromInt(3)},
		},
	}
}

func TestAutosave_RapidEditsPersistOnlyTheLatest(t *testing.T) {
	f := newFakeCommitter(4)
	q := NewAutosaveQueue(30*time.Millisecond, f.commit)

	doc := testDoc(1, 0)
	q.Enqueue(context.Background(), doc)
	q.Enqueue(context.Background(), doc)
	v3 := q.Enqueue(context.Background(), doc)

	waitCommit(t, f)

	commits := f.committed()
	if len(commits) != 1 {
		t.Fatalf("expected exactly 1 commit for 3 rapid edits, got %d (%v)", len(commits), commits)
	}
	if commits[0] != v3 {
		t.Fatalf("expected the latest version %d to commit, got %d", v3, commits[0])
	}

	state := waitState(t, q, 1, SaveStatusSaved)
	if state.Version != v3 {
		t.Fatalf("expected saved state at version %d, got %+v", v3, state)
	}
}

func TestAutosave_UntouchedDocumentReportsIdle(t *testing.T) {
	f := newFakeCommitter(1)
	q := NewAutosaveQueue(time.Minute, f.commit)

	state := q.State(9)
	if state.Status != SaveStatusIdle || state.Version != 0 {
		t.Fatalf("untouched document should report Idle at version 0, got %+v", state)
	}

	// Seeding from a loaded document surfaces the persisted version while
	// staying Idle: nothing is pending, nothing has failed.
	q.Seed(9, 5)
	state = q.State(9)
	if state.Status != SaveStatusIdle || state.Version != 5 {
		t.Fatalf("seeded document should report Idle at version 5, got %+v", state)
	}

	// The next enqueue continues past the seeded version.
	if v := q.Enqueue(context.Background(), testDoc(9, 0)); v != 6 {
		t.Fatalf("expected enqueue after seed to assign version 6, got %d", v)
	}
}

// waitState polls until the queue records the given status; the commit signal
// fires before runCommit stores the outcome.
func waitState(t *testing.T, q *AutosaveQueue, docId int, want SaveStatus) SaveState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state := q.State(docId); state.Status == want {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue never reached status %s for doc %d: %+v", want, docId, q.State(docId))
	return SaveState{}
}

func TestAutosave_VersionsContinueFromPersistedDocument(t *testing.T) {
	f := newFakeCommitter(1)
	q := NewAutosaveQueue(10*time.Millisecond, f.commit)

	// A reloaded document carries the version the database last accepted.
	doc := testDoc(7, 5)
	if v := q.Enqueue(context.Background(), doc); v != 6 {
		t.Fatalf("expected version 6 after persisted version 5, got %d", v)
	}
	waitCommit(t, f)
}

func TestAutosave_StaleCommitIsDroppedSilently(t *testing.T) {
	f := newFakeCommitter(1)
	f.fail = utils.ErrorStaleVersion
	q := NewAutosaveQueue(10*time.Millisecond, f.commit)

	q.Enqueue(context.Background(), testDoc(1, 0))
	waitCommit(t, f)
	time.Sleep(50 * time.Millisecond)

	state := q.State(1)
	if state.Status == SaveStatusFailed {
		t.Fatalf("a superseded save must not surface as a failure, got %+v", state)
	}
	if state.LastError != "" {
		t.Fatalf("stale drop should leave no error, got %q", state.LastError)
	}
}

func TestAutosave_PersistentFailureIsSurfaced(t *testing.T) {
	f := newFakeCommitter(1)
	f.fail = errors.New("connection refused")
	q := NewAutosaveQueue(10*time.Millisecond, f.commit)

	q.Enqueue(context.Background(), testDoc(1, 0))
	waitCommit(t, f)

	state := waitState(t, q, 1, SaveStatusFailed)
	if !strings.Contains(state.LastError, "connection refused") {
		t.Fatalf("expected the commit error surfaced, got %q", state.LastError)
	}
}

func TestAutosave_FlushAllCommitsPendingSaves(t *testing.T) {
	f := newFakeCommitter(2)
	q := NewAutosaveQueue(time.Minute, f.commit)

	q.Enqueue(context.Background(), testDoc(1, 0))
	q.Enqueue(context.Background(), testDoc(2, 0))

	q.FlushAll()

	commits := f.committed()
	if len(commits) != 2 {
		t.Fatalf("expected both pending saves committed on flush, got %d", len(commits))
	}
}

func TestAutosave_ForgetDropsPendingWork(t *testing.T) {
	f := newFakeCommitter(1)
	q := NewAutosaveQueue(time.Minute, f.commit)

	q.Enqueue(context.Background(), testDoc(1, 0))
	q.Forget(1)
	q.FlushAll()

	if commits := f.committed(); len(commits) != 0 {
		t.Fatalf("forgotten document must not commit, got %v", commits)
	}
}
