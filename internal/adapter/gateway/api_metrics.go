package gateway

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"lawggle-ai/internal/domain"
)

// Metrics holds gateway counters fed from the event bus.
type Metrics struct {
	ThreadsCreated   atomic.Int64
	RunsStreamed     atomic.Int64
	ActionsSubmitted atomic.Int64
	FilesServed      atomic.Int64
	Errors           atomic.Int64
}

func (m *Metrics) subscribe(bus domain.EventBus) []func() {
	count := func(c *atomic.Int64) domain.EventHandler {
		return func(context.Context, domain.Event) { c.Add(1) }
	}
	return []func(){
		bus.Subscribe(domain.EventThreadCreated, count(&m.ThreadsCreated)),
		bus.Subscribe(domain.EventRunStreamed, count(&m.RunsStreamed)),
		bus.Subscribe(domain.EventActionsSubmitted, count(&m.ActionsSubmitted)),
		bus.Subscribe(domain.EventFileServed, count(&m.FilesServed)),
	}
}

// write renders the counters in the Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func (m *Metrics) write(w io.Writer, uptime time.Duration) {
	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, v)
	}
	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %v\n", name, v)
	}

	counter("lawggle_threads_created_total", "Threads created.", m.ThreadsCreated.Load())
	counter("lawggle_runs_streamed_total", "Run streams relayed to clients.", m.RunsStreamed.Load())
	counter("lawggle_actions_submitted_total", "Tool output batches submitted.", m.ActionsSubmitted.Load())
	counter("lawggle_files_served_total", "Hosted files served.", m.FilesServed.Load())
	counter("lawggle_request_errors_total", "Requests answered with an error.", m.Errors.Load())
	gauge("lawggle_uptime_seconds", "Seconds since the gateway started.", int64(uptime.Seconds()))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	gauge("go_goroutines", "Number of goroutines.", runtime.NumGoroutine())
	gauge("go_memstats_alloc_bytes", "Bytes of allocated heap objects.", mem.Alloc)
	gauge("go_memstats_sys_bytes", "Total bytes of memory obtained from the OS.", mem.Sys)
}
