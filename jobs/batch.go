package jobs

import (
	"context"
	"time"
)

// Background batch limits.
const (
	DefaultWorkers   = 2
	MaxQueuedBatches = 64

	// maxKeptBatches bounds how many finished batches stay queryable.
	maxKeptBatches = 256
)

// Batch states.
const (
	BatchPending = "pending"
	BatchRunning = "running"
	BatchDone    = "done"
)

// BatchStatus is the state of a background batch.
type BatchStatus struct {
	ID       string    `json:"id"`
	State    string    `json:"state"`
	Printer  string    `json:"printer"`
	Template string    `json:"template,omitempty"`
	Total    int       `json:"total"`
	Summary  *Summary  `json:"summary,omitempty"`
	Created  time.Time `json:"created"`
	Finished time.Time `json:"finished,omitempty"`
}

type batchEntry struct {
	status BatchStatus
}

type queuedBatch struct {
	id  string
	req BatchRequest
}

// Submit queues a batch for background printing and returns its id. Request
// problems are reported immediately and nothing is queued.
func (s *Service) Submit(req BatchRequest) (BatchStatus, error) {
	if len(req.Objects) == 0 {
		return BatchStatus{}, ErrNoObjects
	}
	if _, _, err := s.prepare(req.Printer, req.Template, req.Quantity); err != nil {
		return BatchStatus{}, err
	}

	st := BatchStatus{
		ID:       NewID(),
		State:    BatchPending,
		Printer:  req.Printer,
		Template: req.Template,
		Total:    len(req.Objects),
		Created:  time.Now(),
	}

	s.batchMu.Lock()
	s.batches[st.ID] = &batchEntry{status: st}
	s.order = append(s.order, st.ID)
	s.pruneLocked()
	s.batchMu.Unlock()

	select {
	case <-s.stopChan:
		s.dropBatch(st.ID)
		return BatchStatus{}, ErrQueueFull
	default:
	}

	select {
	case s.queue <- queuedBatch{id: st.ID, req: req}:
		s.log("Queued batch %s: %d objects for %s", st.ID, st.Total, st.Printer)
		return st, nil
	default:
		s.dropBatch(st.ID)
		s.log("Batch queue full, rejecting %d objects for %s", st.Total, st.Printer)
		return BatchStatus{}, ErrQueueFull
	}
}

// Batch returns the state of a background batch.
func (s *Service) Batch(id string) (BatchStatus, bool) {
	s.batchMu.RLock()
	defer s.batchMu.RUnlock()
	e, ok := s.batches[id]
	if !ok {
		return BatchStatus{}, false
	}
	return e.status, true
}

// Batches returns all known batches, oldest first.
func (s *Service) Batches() []BatchStatus {
	s.batchMu.RLock()
	defer s.batchMu.RUnlock()
	out := make([]BatchStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.batches[id].status)
	}
	return out
}

// batchWorker prints queued batches until the service is closed.
func (s *Service) batchWorker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		case q := <-s.queue:
			s.setState(q.id, BatchRunning)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				select {
				case <-s.stopChan:
					cancel()
				case <-done:
				}
			}()
			sum := s.printBatch(ctx, q.req, q.id)
			close(done)
			cancel()

			s.finishBatch(q.id, sum)
		}
	}
}

func (s *Service) setState(id, state string) {
	s.batchMu.Lock()
	if e, ok := s.batches[id]; ok {
		e.status.State = state
	}
	s.batchMu.Unlock()
}

func (s *Service) finishBatch(id string, sum Summary) {
	s.batchMu.Lock()
	e, ok := s.batches[id]
	if !ok {
		s.batchMu.Unlock()
		return
	}
	e.status.State = BatchDone
	e.status.Summary = &sum
	e.status.Finished = time.Now()
	st := e.status
	s.batchMu.Unlock()

	s.cbMu.RLock()
	fn := s.onBatch
	s.cbMu.RUnlock()
	if fn != nil {
		fn(st)
	}
}

func (s *Service) dropBatch(id string) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	delete(s.batches, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// pruneLocked forgets the oldest finished batches beyond maxKeptBatches.
func (s *Service) pruneLocked() {
	for len(s.order) > maxKeptBatches {
		removed := false
		for i, id := range s.order {
			if s.batches[id].status.State == BatchDone {
				delete(s.batches, id)
				s.order = append(s.order[:i], s.order[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return
		}
	}
}
