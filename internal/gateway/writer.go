package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/gravixlayer/llm-wars/internal/event"
)

// streamWriter serializes normalized events as NDJSON on one response
// body. Producers are concurrent (the arena's merge loop and the
// keepalive goroutine) so every write happens under the mutex, and each
// line is flushed immediately to defeat intermediary buffering.
type streamWriter struct {
	mu   sync.Mutex
	w    gin.ResponseWriter
	last time.Time
}

func newStreamWriter(w gin.ResponseWriter) *streamWriter {
	return &streamWriter{w: w, last: time.Now()}
}

// Emit writes one event as a single JSON line and flushes.
func (sw *streamWriter) Emit(ev event.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.WithFields(log.Fields{
			"type":  string(ev.Type),
			"error": err.Error(),
			"event": "encode_failed",
		}).Error("Failed to encode stream event")
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.w.Write(data)
	sw.w.Write([]byte("\n"))
	sw.w.Flush()
	sw.last = time.Now()
}

// startKeepalive launches a goroutine that emits ping events while the
// stream is otherwise idle: it checks every interval and pings only
// when nothing has been written for at least stale. The returned stop
// function cancels the goroutine and waits for it to exit, so no write
// can land on the response after the handler has returned.
func (sw *streamWriter) startKeepalive(ctx context.Context, interval, stale time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.mu.Lock()
				idle := time.Since(sw.last)
				sw.mu.Unlock()
				if idle >= stale {
					sw.Emit(event.Ping())
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
