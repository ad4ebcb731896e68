package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/BeamGo/internal/logic/tracking"
	"github.com/cjeanneret/BeamGo/internal/store"
	"github.com/cjeanneret/BeamGo/internal/timeutil"
)

// MaxRequestBytes bounds POST bodies.
const MaxRequestBytes = 1 << 20

// Upper bounds accepted from the form.
const (
	MaxFrameBudget  = 1_000_000
	MaxTolerancePx2 = 1e6
)

// Overrides holds run parameters that can override config defaults.
type Overrides struct {
	FrameBudget  int     `json:"frame_budget"`
	WarmupFrames int     `json:"warmup_frames"`
	TolerancePx2 float64 `json:"tolerance_px2"`
}

// ValidateOverrides checks ranges. A zero frame budget means no cap; a
// non-zero budget must leave room after the warm-up.
func ValidateOverrides(o Overrides) error {
	if o.FrameBudget < 0 || o.FrameBudget > MaxFrameBudget {
		return fmt.Errorf("frame_budget must be between 0 and %d", MaxFrameBudget)
	}
	if o.WarmupFrames < 0 || o.WarmupFrames > MaxFrameBudget {
		return fmt.Errorf("warmup_frames must be between 0 and %d", MaxFrameBudget)
	}
	if o.FrameBudget > 0 && o.WarmupFrames >= o.FrameBudget {
		return errors.New("warmup_frames must be less than frame_budget")
	}
	if math.IsNaN(o.TolerancePx2) || math.IsInf(o.TolerancePx2, 0) || o.TolerancePx2 <= 0 || o.TolerancePx2 > MaxTolerancePx2 {
		return fmt.Errorf("tolerance_px2 must be > 0 and <= %g", MaxTolerancePx2)
	}
	return nil
}

// RunFunc runs one steering session with the given overrides and returns the
// recorded run. It is called from the POST /run handler in a goroutine and
// must return once ctx is cancelled.
type RunFunc func(ctx context.Context, overrides Overrides) (store.Run, error)

// RunHistory is the read side of the run store.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	LoadTrace(ctx context.Context, id string) (tracking.Trace, error)
}

// FormConfig holds default values for the run form (from config).
type FormConfig struct {
	FrameBudget  int     `json:"frame_budget"`
	WarmupFrames int     `json:"warmup_frames"`
	TolerancePx2 float64 `json:"tolerance_px2"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Run          RunFunc
	History      RunHistory
	FormDefaults FormConfig
	// MinRunInterval rejects a POST /run arriving sooner than this after the
	// previous start. 0 disables the check.
	MinRunInterval time.Duration

	clock     timeutil.Clock
	base      context.Context
	runningMu sync.Mutex
	running   bool
	cancel    context.CancelFunc
	lastStart time.Time
	wg        sync.WaitGroup
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If run is nil, POST /run will return 503 Service Unavailable; if history is
// nil, the /runs endpoints do.
func NewHandlers(broadcaster *StatusBroadcaster, run RunFunc, history RunHistory, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Run:          run,
		History:      history,
		FormDefaults: formDefaults,
		clock:        timeutil.RealClock{},
		base:         context.Background(),
		staticFS:     staticFS,
	}
}

// SetClock replaces the clock used for the restart interval.
func (h *Handlers) SetClock(c timeutil.Clock) { h.clock = c }

// setBase makes runs started from now on inherit ctx.
func (h *Handlers) setBase(ctx context.Context) {
	h.runningMu.Lock()
	h.base = ctx
	h.runningMu.Unlock()
}

// Running reports whether a run is in progress.
func (h *Handlers) Running() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// Wait blocks until the in-progress run, if any, has returned.
func (h *Handlers) Wait() { h.wg.Wait() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleRun handles POST /run to start a steering run.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	var overrides Overrides
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateOverrides(overrides); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Run == nil {
		http.Error(w, "steering not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "run already in progress", http.StatusConflict)
		return
	}
	now := h.clock.Now()
	if h.MinRunInterval > 0 && !h.lastStart.IsZero() && now.Sub(h.lastStart) < h.MinRunInterval {
		h.runningMu.Unlock()
		http.Error(w, "runs started too quickly, wait before restarting", http.StatusTooManyRequests)
		return
	}
	ctx, cancel := context.WithCancel(h.base)
	h.running = true
	h.cancel = cancel
	h.lastStart = now
	h.wg.Add(1)
	h.runningMu.Unlock()

	h.Broadcaster.BroadcastRun("info", "", fmt.Sprintf("Run started (budget %d, warm-up %d, tolerance %g px²)",
		overrides.FrameBudget, overrides.WarmupFrames, overrides.TolerancePx2))

	go func() {
		defer h.wg.Done()
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.cancel = nil
			h.runningMu.Unlock()
			cancel()
		}()

		run, err := h.Run(ctx, overrides)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			h.Broadcaster.BroadcastRun("error", run.ID, "Run failed: "+err.Error())
			log.Printf("run failed: %v", err)
		case err != nil:
			h.Broadcaster.BroadcastRun("info", run.ID, fmt.Sprintf("Run stopped after %d frames", run.Frames))
		default:
			h.Broadcaster.BroadcastRun("info", run.ID, fmt.Sprintf("Run complete: %d frames, %d commands, %.1f fps",
				run.Frames, run.Commands, run.FPS))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleStop handles POST /stop: cancels the in-progress run. The run still
// returns both axes to origin before it ends.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()

	if cancel == nil {
		http.Error(w, "no run in progress", http.StatusConflict)
		return
	}
	cancel()
	h.Broadcaster.Publish(StatusEvent{Kind: KindStop, Level: "info", Msg: "Stop requested"})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// HandleRuns handles GET /runs?limit=N: newest runs first.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		http.Error(w, "run history not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.History.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, "list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleTrace handles GET /runs/{id}/trace.
func (h *Handlers) HandleTrace(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		http.Error(w, "run history not configured", http.StatusServiceUnavailable)
		return
	}
	tr, err := h.History.LoadTrace(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "load trace: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
