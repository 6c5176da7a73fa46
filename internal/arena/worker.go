package arena

import (
	"context"
	"encoding/json"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gravixlayer/llm-wars/internal/event"
	"github.com/gravixlayer/llm-wars/internal/sse"
	"github.com/gravixlayer/llm-wars/internal/upstream"
)

// readBufferSize is the chunk size for draining an upstream SSE body.
const readBufferSize = 4096

// worker owns one model's task: one streaming call, the optional
// non-streaming fallback, and exactly one terminal event. Every failure
// is converted to an Error event here; nothing escapes to siblings.
type worker struct {
	modelID     string
	prompt      string
	temperature float64
	client      Upstream

	start    time.Time
	sawDelta bool
}

// run emits the model's full event sequence into out. Sends abandon
// silently once ctx is cancelled; the orchestrator only cancels after
// it has stopped consuming.
func (w *worker) run(ctx context.Context, out chan<- event.Event) {
	w.start = time.Now()
	send := func(ev event.Event) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	send(event.ModelStart(w.modelID))

	body, err := w.client.ChatStream(ctx, w.modelID, w.prompt, w.temperature)
	if err != nil {
		// The call itself failed; there is nothing to fall back from.
		send(event.ErrorEvent(w.modelID, err.Error(), w.elapsed()))
		return
	}

	if err := w.pump(body, send); err != nil {
		send(event.ErrorEvent(w.modelID, err.Error(), w.elapsed()))
		return
	}

	if !w.sawDelta {
		if err := w.fallback(ctx, send); err != nil {
			send(event.ErrorEvent(w.modelID, err.Error(), w.elapsed()))
			return
		}
	}

	send(event.ModelDone(w.modelID, w.elapsed()))
}

// pump drains the streaming body through the SSE parser, emitting ttfb,
// delta, and usage events. Returns an error only for transport
// failures; malformed payloads are dropped and counted.
func (w *worker) pump(body io.ReadCloser, send func(event.Event)) error {
	defer body.Close()

	var parser sse.Parser
	dropped := 0
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range parser.Feed(buf[:n]) {
				if frame.Done {
					w.logDrops(dropped, parser.Dropped())
					return nil
				}
				w.handlePayload(frame.Data, send, &dropped)
			}
		}
		if err == io.EOF {
			if frame, ok := parser.Flush(); ok && !frame.Done {
				w.handlePayload(frame.Data, send, &dropped)
			}
			w.logDrops(dropped, parser.Dropped())
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (w *worker) handlePayload(payload string, send func(event.Event), dropped *int) {
	var chunk upstream.Chunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		*dropped++
		log.WithFields(log.Fields{
			"model": w.modelID,
			"error": err.Error(),
			"event": "chunk_dropped",
		}).Debug("Dropping malformed upstream chunk")
		return
	}
	if text := chunk.DeltaText(); text != "" {
		if !w.sawDelta {
			w.sawDelta = true
			send(event.TTFB(w.modelID, w.elapsed()))
		}
		send(event.Delta(w.modelID, text))
	}
	if chunk.Usage != nil {
		send(event.Usage(w.modelID, chunk.Usage.Prompt, chunk.Usage.Completion, chunk.Usage.Total))
	}
}

// fallback performs the single non-streaming retry for a stream that
// finished without producing any tokens.
func (w *worker) fallback(ctx context.Context, send func(event.Event)) error {
	log.WithFields(log.Fields{
		"model": w.modelID,
		"event": "fallback",
	}).Info("Stream produced no tokens, retrying without streaming")

	text, usage, err := w.client.Chat(ctx, w.modelID, w.prompt, w.temperature)
	if err != nil {
		return err
	}
	w.sawDelta = true
	send(event.TTFB(w.modelID, w.elapsed()))
	send(event.Delta(w.modelID, text))
	if usage != nil {
		send(event.Usage(w.modelID, usage.Prompt, usage.Completion, usage.Total))
	}
	return nil
}

func (w *worker) elapsed() time.Duration { return time.Since(w.start) }

func (w *worker) logDrops(payloadDrops, lineDrops int) {
	if payloadDrops == 0 && lineDrops == 0 {
		return
	}
	log.WithFields(log.Fields{
		"model":         w.modelID,
		"dropped":       payloadDrops,
		"dropped_lines": lineDrops,
		"event":         "stream_drops",
	}).Debug("Upstream stream contained unparseable data")
}
