package telemetry

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 10_000
)

// Sample is one evaluated band of one scenario run.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"runId"`
	Scenario  string    `json:"scenario"`
	Band      string    `json:"band"`
	Method    string    `json:"method"`
	PowerW    float64   `json:"powerW"`
	NEPW      float64   `json:"nepW"`
	SNR       float64   `json:"snr"`
}

// Hub keeps recent samples and fans them out to live subscribers.
type Hub struct {
	mu           sync.RWMutex
	history      []Sample
	historyLimit int
	subscribers  map[chan Sample]struct{}
}

// NewHub builds a hub retaining at most historyLimit samples. Values outside
// (0, 10000] fall back to 500.
func NewHub(historyLimit int) *Hub {
	if historyLimit <= 0 || historyLimit > maxHistoryLimit {
		historyLimit = defaultHistoryLimit
	}
	return &Hub{
		historyLimit: historyLimit,
		subscribers:  make(map[chan Sample]struct{}),
	}
}

// Report implements Reporter.
func (h *Hub) Report(sample Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	h.mu.Lock()
	h.history = append(h.history, sample)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
	h.mu.Unlock()
}

// History returns a copy of stored samples, oldest first.
func (h *Hub) History() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, len(h.history))
	copy(out, h.history)
	return out
}

// Subscribe registers a listener for live updates. Slow listeners miss
// samples rather than blocking Report.
func (h *Hub) Subscribe() (chan Sample, func()) {
	ch := make(chan Sample, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// MultiReporter fans out samples to multiple destinations.
type MultiReporter []Reporter

// Report forwards sample to each configured reporter.
func (m MultiReporter) Report(sample Sample) {
	for _, r := range m {
		if r != nil {
			r.Report(sample)
		}
	}
}

// Filter returns the stored samples of runID (all runs when empty), keeping
// only the newest limit entries when limit > 0.
func (h *Hub) Filter(runID string, limit int) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, 0, len(h.history))
	for _, s := range h.history {
		if runID == "" || s.RunID == runID {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// HandleHistory serves the stored samples as JSON. The optional "run" and
// "limit" query parameters narrow the result.
func (h *Hub) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.Filter(q.Get("run"), limit))
}

// HandleLive streams samples as server-sent events until the client leaves.
func (h *Hub) HandleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// send existing history for immediate display
	for _, sample := range h.History() {
		writeEvent(w, sample)
	}
	flusher.Flush()

	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, sample)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, sample Sample) {
	payload, _ := json.Marshal(sample)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
