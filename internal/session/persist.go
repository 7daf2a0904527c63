package session

import (
	"log/slog"
	"sync"

	"github.com/starford/tabcache/internal/models"
	"github.com/starford/tabcache/internal/store"
)

// persistWorker serializes session writes through a single goroutine.
// Writes keep their enqueue order, which is what guarantees an outgoing
// session's flush lands before the incoming session's restore reads the
// store (the restore drains the queue first). Write failures are logged
// and otherwise swallowed: persistence is best-effort by contract.
type persistWorker struct {
	sessions store.SessionStore
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	ch     chan persistReq
	done   chan struct{}
}

type persistReq struct {
	session models.Session
	barrier chan struct{} // non-nil for drain requests
}

func newPersistWorker(sessions store.SessionStore, logger *slog.Logger) *persistWorker {
	w := &persistWorker{
		sessions: sessions,
		logger:   logger,
		ch:       make(chan persistReq, 64),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *persistWorker) run() {
	defer close(w.done)
	for req := range w.ch {
		if req.barrier != nil {
			close(req.barrier)
			continue
		}
		if err := w.sessions.SaveSession(req.session); err != nil {
			w.logger.Warn("session: persist failed",
				slog.String("notebook", req.session.NotebookID),
				slog.String("error", err.Error()))
		}
	}
}

func (w *persistWorker) send(req persistReq) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.ch <- req
	return true
}

// enqueue schedules an asynchronous session write.
func (w *persistWorker) enqueue(s models.Session) {
	w.send(persistReq{session: s})
}

// drain blocks until every previously enqueued write has been applied.
func (w *persistWorker) drain() {
	barrier := make(chan struct{})
	if !w.send(persistReq{barrier: barrier}) {
		return
	}
	<-barrier
}

// close flushes pending writes and stops the worker.
func (w *persistWorker) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	<-w.done
}
