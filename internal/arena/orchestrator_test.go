package arena

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravixlayer/llm-wars/internal/event"
	"github.com/gravixlayer/llm-wars/internal/upstream"
	"github.com/gravixlayer/llm-wars/internal/validator"
)

const streamFixture = `data: {"choices":[{"delta":{"content":"Hello"}}]}

data: {"choices":[{"delta":{"content":" world"}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}

data: [DONE]

`

const emptyStreamFixture = `data: {"choices":[{"delta":{}}]}

data: [DONE]

`

type fakeUpstream struct {
	mu        sync.Mutex
	streams   map[string]string
	streamErr map[string]error
	hang      map[string]bool
	chatText  map[string]string
	chatErr   map[string]error
	chatCalls map[string]int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		streams:   map[string]string{},
		streamErr: map[string]error{},
		hang:      map[string]bool{},
		chatText:  map[string]string{},
		chatErr:   map[string]error{},
		chatCalls: map[string]int{},
	}
}

func (f *fakeUpstream) ChatStream(ctx context.Context, model, prompt string, temperature float64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.streamErr[model]; err != nil {
		return nil, err
	}
	if f.hang[model] {
		return &hangingBody{ctx: ctx}, nil
	}
	return io.NopCloser(strings.NewReader(f.streams[model])), nil
}

func (f *fakeUpstream) Chat(ctx context.Context, model, prompt string, temperature float64) (string, *upstream.UsageCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls[model]++
	if err := f.chatErr[model]; err != nil {
		return "", nil, err
	}
	total := 9
	return f.chatText[model], &upstream.UsageCounts{Total: &total}, nil
}

func (f *fakeUpstream) calls(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls[model]
}

// hangingBody blocks reads until the caller's context is cancelled,
// like a real response body on a stalled connection.
type hangingBody struct{ ctx context.Context }

func (h *hangingBody) Read([]byte) (int, error) {
	<-h.ctx.Done()
	return 0, h.ctx.Err()
}

func (h *hangingBody) Close() error { return nil }

func runArena(t *testing.T, f *fakeUpstream, watchdog time.Duration, modelIDs ...string) []event.Event {
	t.Helper()
	var events []event.Event
	orc := New(f, watchdog)
	orc.Run(context.Background(), &validator.ValidatedRequest{
		Prompt:      "hi",
		Models:      modelIDs,
		Temperature: 0.7,
	}, func(ev event.Event) { events = append(events, ev) })
	return events
}

func byType(events []event.Event, typ event.Type) []event.Event {
	var out []event.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func forModel(events []event.Event, modelID string) []event.Event {
	var out []event.Event
	for _, ev := range events {
		if ev.ModelID == modelID {
			out = append(out, ev)
		}
	}
	return out
}

func TestOrchestrator(t *testing.T) {
	t.Run("two models stream to completion", func(t *testing.T) {
		f := newFakeUpstream()
		f.streams["a"] = streamFixture
		f.streams["b"] = streamFixture
		events := runArena(t, f, time.Minute, "a", "b")

		require.Len(t, byType(events, event.TypeStart), 1)
		assert.Equal(t, event.TypeStart, events[0].Type)
		assert.Equal(t, []string{"a", "b"}, events[0].Models)
		assert.Equal(t, 0.7, events[0].Temperature)

		require.Len(t, byType(events, event.TypeModelStart), 2)
		require.Len(t, byType(events, event.TypeModelDone), 2)
		require.Len(t, byType(events, event.TypeEnd), 1)
		assert.Equal(t, event.TypeEnd, events[len(events)-1].Type)
		assert.GreaterOrEqual(t, events[len(events)-1].TotalMs, int64(0))

		for _, id := range []string{"a", "b"} {
			seq := forModel(events, id)
			assert.Equal(t, event.TypeModelStart, seq[0].Type)
			assert.Equal(t, event.TypeTTFB, seq[1].Type)
			deltas := byType(seq, event.TypeDelta)
			require.Len(t, deltas, 2)
			assert.Equal(t, "Hello", deltas[0].Text)
			assert.Equal(t, " world", deltas[1].Text)
			usage := byType(seq, event.TypeUsage)
			require.Len(t, usage, 1)
			require.NotNil(t, usage[0].TotalTokens)
			assert.Equal(t, 7, *usage[0].TotalTokens)
			assert.Equal(t, event.TypeModelDone, seq[len(seq)-1].Type)
		}
		assert.Zero(t, f.calls("a"), "no fallback when the stream produced tokens")
	})

	t.Run("per-model ordering is total, ttfb before first delta", func(t *testing.T) {
		f := newFakeUpstream()
		f.streams["a"] = streamFixture
		events := runArena(t, f, time.Minute, "a")

		var lastTS int64
		for _, ev := range forModel(events, "a") {
			assert.GreaterOrEqual(t, ev.TS, lastTS)
			lastTS = ev.TS
		}
	})

	t.Run("upstream failure isolated to its model", func(t *testing.T) {
		f := newFakeUpstream()
		f.streamErr["bad"] = errors.New("upstream: status 500")
		f.streams["good"] = streamFixture
		events := runArena(t, f, time.Minute, "bad", "good")

		badSeq := forModel(events, "bad")
		require.Len(t, byType(badSeq, event.TypeError), 1)
		assert.Contains(t, byType(badSeq, event.TypeError)[0].Error, "500")
		assert.Empty(t, byType(badSeq, event.TypeDelta))

		goodSeq := forModel(events, "good")
		require.Len(t, byType(goodSeq, event.TypeModelDone), 1)
		require.Len(t, byType(events, event.TypeEnd), 1)

		assert.Zero(t, f.calls("bad"), "failed call must not trigger fallback")
	})

	t.Run("zero-delta stream falls back exactly once", func(t *testing.T) {
		f := newFakeUpstream()
		f.streams["a"] = emptyStreamFixture
		f.chatText["a"] = "full answer"
		events := runArena(t, f, time.Minute, "a")

		assert.Equal(t, 1, f.calls("a"))
		seq := forModel(events, "a")
		require.Len(t, byType(seq, event.TypeTTFB), 1)
		deltas := byType(seq, event.TypeDelta)
		require.Len(t, deltas, 1)
		assert.Equal(t, "full answer", deltas[0].Text)
		usage := byType(seq, event.TypeUsage)
		require.Len(t, usage, 1)
		assert.Equal(t, 9, *usage[0].TotalTokens)
		require.Len(t, byType(seq, event.TypeModelDone), 1)
		assert.Empty(t, byType(seq, event.TypeError))
	})

	t.Run("failed fallback yields one error", func(t *testing.T) {
		f := newFakeUpstream()
		f.streams["a"] = emptyStreamFixture
		f.chatErr["a"] = errors.New("upstream: status 503")
		events := runArena(t, f, time.Minute, "a")

		assert.Equal(t, 1, f.calls("a"))
		seq := forModel(events, "a")
		require.Len(t, byType(seq, event.TypeError), 1)
		assert.Empty(t, byType(seq, event.TypeModelDone))
	})

	t.Run("watchdog forces end with worker still running", func(t *testing.T) {
		f := newFakeUpstream()
		f.hang["stuck"] = true
		f.streams["quick"] = streamFixture

		start := time.Now()
		events := runArena(t, f, 100*time.Millisecond, "stuck", "quick")
		assert.Less(t, time.Since(start), 5*time.Second)

		require.Len(t, byType(events, event.TypeEnd), 1)
		assert.Equal(t, event.TypeEnd, events[len(events)-1].Type)
		require.Len(t, byType(forModel(events, "quick"), event.TypeModelDone), 1)
		assert.Empty(t, byType(forModel(events, "stuck"), event.TypeModelDone))
	})

	t.Run("duplicate model ids run as distinct tasks", func(t *testing.T) {
		f := newFakeUpstream()
		f.streams["a"] = streamFixture
		events := runArena(t, f, time.Minute, "a", "a")

		assert.Len(t, byType(events, event.TypeModelStart), 2)
		assert.Len(t, byType(events, event.TypeModelDone), 2)
		require.Len(t, byType(events, event.TypeEnd), 1)
	})

	t.Run("malformed chunks dropped without failing the model", func(t *testing.T) {
		f := newFakeUpstream()
		f.streams["a"] = "data: {not json\n\n" + streamFixture
		events := runArena(t, f, time.Minute, "a")

		seq := forModel(events, "a")
		require.Len(t, byType(seq, event.TypeModelDone), 1)
		assert.Len(t, byType(seq, event.TypeDelta), 2)
	})
}
