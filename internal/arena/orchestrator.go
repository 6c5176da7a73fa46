// Package arena runs one prompt against several models concurrently and
// multiplexes their normalized events onto a single ordered sink. This
// is the fan-out/fan-in core of the service.
package arena

import (
	"context"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/gravixlayer/llm-wars/internal/event"
	"github.com/gravixlayer/llm-wars/internal/upstream"
	"github.com/gravixlayer/llm-wars/internal/validator"
)

// Upstream is the slice of the inference client the arena needs.
type Upstream interface {
	ChatStream(ctx context.Context, model, prompt string, temperature float64) (io.ReadCloser, error)
	Chat(ctx context.Context, model, prompt string, temperature float64) (string, *upstream.UsageCounts, error)
}

// eventBuffer bounds how far producers can run ahead of the consumer.
const eventBuffer = 64

// Orchestrator fans a validated request out to one worker per model and
// folds their events into a single emit stream.
type Orchestrator struct {
	client   Upstream
	watchdog time.Duration
}

// New builds an Orchestrator. watchdog bounds the whole merged stream;
// when it fires, end is forced and outstanding upstream calls are torn
// down.
func New(client Upstream, watchdog time.Duration) *Orchestrator {
	return &Orchestrator{client: client, watchdog: watchdog}
}

// Run drives the whole generation. emit is called from this goroutine
// only, in merge order, and receives exactly one start, per-model event
// sequences, and exactly one end. Run returns once end has been
// emitted; worker goroutines are cancelled and reaped in the
// background.
func (o *Orchestrator) Run(ctx context.Context, req *validator.ValidatedRequest, emit func(event.Event)) {
	start := time.Now()
	emit(event.Start(req.Models, req.Temperature))

	arenaCtx, cancel := context.WithCancel(ctx)

	events := make(chan event.Event, eventBuffer)
	var wg conc.WaitGroup
	for _, id := range req.Models {
		w := &worker{
			modelID:     id,
			prompt:      req.Prompt,
			temperature: req.Temperature,
			client:      o.client,
		}
		wg.Go(func() { w.run(arenaCtx, events) })
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		if p := wg.WaitAndRecover(); p != nil {
			log.WithFields(log.Fields{
				"panic": p.Value,
				"event": "worker_panic",
			}).Error("Model worker panicked")
		}
		close(events)
	}()

	watchdog := time.NewTimer(o.watchdog)
	defer watchdog.Stop()

	remaining := len(req.Models)
	reason := "complete"

loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// All workers returned without the counter reaching zero
				// (only possible if one died without its terminal event).
				reason = "workers_exited"
				break loop
			}
			emit(ev)
			if ev.Terminal() {
				remaining--
				if remaining == 0 {
					break loop
				}
			}
		case <-watchdog.C:
			reason = "watchdog"
			break loop
		case <-ctx.Done():
			reason = "client_gone"
			break loop
		}
	}

	emit(event.End(time.Since(start)))
	log.WithFields(log.Fields{
		"models":   len(req.Models),
		"pending":  remaining,
		"reason":   reason,
		"total_ms": time.Since(start).Milliseconds(),
		"event":    "arena_end",
	}).Info("Arena finished")

	// Tear down in-flight upstream calls and unblock any worker still
	// sending, then reap the producers.
	cancel()
	go func() {
		<-drained
		for range events {
		}
	}()
}
