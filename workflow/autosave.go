package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
	"bitbucket.org/mmdatafocus/stockdocs_backend/models"
	"bitbucket.org/mmdatafocus/stockdocs_backend/utils"
)

// SaveStatus is the surfaced autosave state for a document.
type SaveStatus string

const (
	// SaveStatusIdle means the queue holds nothing for the document; what is
	// persisted is all there is.
	SaveStatusIdle    SaveStatus = "Idle"
	SaveStatusPending SaveStatus = "Pending"
	SaveStatusSaved   SaveStatus = "Saved"
	SaveStatusFailed  SaveStatus = "Failed"
)

type SaveState struct {
	Status    SaveStatus `json:"status"`
	Version   int64      `json:"version"`
	SavedAt   *time.Time `json:"saved_at"`
	LastError string     `json:"last_error"`
}

// commitFunc persists one versioned item-list replacement. Production wires
// models.ReplaceDocumentItems; tests substitute a fake.
type commitFunc func(ctx context.Context, docId int, version int64, items []models.StockDocumentItem, totals models.DocumentTotals) error

type pendingSave struct {
	version int64
	items   []models.StockDocumentItem
	totals  models.DocumentTotals
	ctx     context.Context
	timer   *time.Timer
}

// AutosaveQueue debounces persistence of document edits. Every edit replaces
// the pending save under a fresh monotonic version; only the version alive
// when the debounce expires reaches the database. A commit rejected as stale
// was superseded by a newer enqueue and is dropped without surfacing.
type AutosaveQueue struct {
	mu       sync.Mutex
	debounce time.Duration
	commit   commitFunc
	pending  map[int]*pendingSave
	versions map[int]int64
	states   map[int]*SaveState
}

func NewAutosaveQueue(debounce time.Duration, commit commitFunc) *AutosaveQueue {
	if commit == nil {
		commit = models.ReplaceDocumentItems
	}
	return &AutosaveQueue{
		debounce: debounce,
		commit:   commit,
		pending:  make(map[int]*pendingSave),
		versions: make(map[int]int64),
		states:   make(map[int]*SaveState),
	}
}

var (
	autosaveOnce  sync.Once
	autosaveQueue *AutosaveQueue
)

func GetAutosaveQueue() *AutosaveQueue {
	autosaveOnce.Do(func() {
		autosaveQueue = NewAutosaveQueue(config.AutosaveDebounce(), nil)
	})
	return autosaveQueue
}

// Seed records the persisted version of a freshly loaded document so the next
// enqueue continues the sequence instead of restarting at 1.
func (q *AutosaveQueue) Seed(docId int, version int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if version > q.versions[docId] {
		q.versions[docId] = version
	}
}

// Enqueue schedules the document's current item list for persistence and
// returns the version assigned to this save. An existing pending save for the
// same document is superseded in place.
func (q *AutosaveQueue) Enqueue(ctx context.Context, doc *models.StockDocument) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if doc.SyncVersion > q.versions[doc.ID] {
		q.versions[doc.ID] = doc.SyncVersion
	}
	q.versions[doc.ID]++
	version := q.versions[doc.ID]

	items := make([]models.StockDocumentItem, len(doc.Items))
	copy(items, doc.Items)

	if prev, ok := q.pending[doc.ID]; ok {
		prev.timer.Stop()
	}
	save := &pendingSave{
		version: version,
		items:   items,
		totals:  doc.Totals,
		ctx:     utils.DetachContext(ctx),
	}
	docId := doc.ID
	save.timer = time.AfterFunc(q.debounce, func() {
		q.flush(docId, save)
	})
	q.pending[docId] = save
	q.states[docId] = &SaveState{Status: SaveStatusPending, Version: version}
	return version
}

func (q *AutosaveQueue) flush(docId int, save *pendingSave) {
	q.mu.Lock()
	if q.pending[docId] != save {
		// Superseded while the timer fired.
		q.mu.Unlock()
		return
	}
	delete(q.pending, docId)
	q.mu.Unlock()

	q.runCommit(docId, save)
}

func (q *AutosaveQueue) runCommit(docId int, save *pendingSave) {
	err := q.commit(save.ctx, docId, save.version, save.items, save.totals)

	q.mu.Lock()
	defer q.mu.Unlock()

	state := q.states[docId]
	if state == nil || state.Version > save.version {
		return
	}

	switch {
	case err == nil:
		now := time.Now().UTC()
		q.states[docId] = &SaveState{Status: SaveStatusSaved, Version: save.version, SavedAt: &now}
	case err == utils.ErrorStaleVersion:
		// A newer save owns the outcome now.
	default:
		q.states[docId] = &SaveState{Status: SaveStatusFailed, Version: save.version, LastError: err.Error()}
		config.LogWarn(config.GetLogger(), "autosave.go", "runCommit", "commit", docId, err.Error())
	}

	// Best effort: expose status to other instances behind the balancer.
	if state := q.states[docId]; state != nil {
		_ = config.SetRedisObject(fmt.Sprintf("Autosave:doc:%d", docId), state, time.Hour)
	}
}

// State reports the latest known save outcome for a document. Documents the
// queue never touched in this process report Idle at the last seeded version.
func (q *AutosaveQueue) State(docId int) SaveState {
	q.mu.Lock()
	defer q.mu.Unlock()
	if state, ok := q.states[docId]; ok {
		return *state
	}
	return SaveState{Status: SaveStatusIdle, Version: q.versions[docId]}
}

// FlushAll commits every pending save immediately. Called on shutdown so
// debounced edits are not lost with the process.
func (q *AutosaveQueue) FlushAll() {
	q.mu.Lock()
	saves := make(map[int]*pendingSave, len(q.pending))
	for docId, save := range q.pending {
		save.timer.Stop()
		saves[docId] = save
	}
	q.pending = make(map[int]*pendingSave)
	q.mu.Unlock()

	for docId, save := range saves {
		q.runCommit(docId, save)
	}
}

// Forget drops all queue state for a document. Called after finalize: a
// terminal document accepts no more saves.
func (q *AutosaveQueue) Forget(docId int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if save, ok := q.pending[docId]; ok {
		save.timer.Stop()
		delete(q.pending, docId)
	}
	delete(q.versions, docId)
	delete(q.states, docId)
}
