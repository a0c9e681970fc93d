package jobs

import "sync"

// DefaultHistorySize is the number of jobs kept when no size is configured.
const DefaultHistorySize = 500

// History keeps the most recent jobs in memory.
type History struct {
	mu    sync.RWMutex
	jobs  []Job
	next  int
	count int
}

// NewHistory creates a history holding up to size jobs.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{jobs: make([]Job, size)}
}

// Add records a job, evicting the oldest when full.
func (h *History) Add(j Job) {
	h.mu.Lock()
	h.jobs[h.next] = j
	h.next = (h.next + 1) % len(h.jobs)
	if h.count < len(h.jobs) {
		h.count++
	}
	h.mu.Unlock()
}

// List returns up to limit jobs, newest first. A limit of 0 returns all.
func (h *History) List(limit int) []Job {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Job, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.next - 1 - i + len(h.jobs)) % len(h.jobs)
		out = append(out, h.jobs[idx])
	}
	return out
}

// Get returns the job with the given id if it is still held.
func (h *History) Get(id string) (Job, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := 0; i < h.count; i++ {
		idx := (h.next - 1 - i + len(h.jobs)) % len(h.jobs)
		if h.jobs[idx].ID == id {
			return h.jobs[idx], true
		}
	}
	return Job{}, false
}

// Len returns the number of jobs held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
