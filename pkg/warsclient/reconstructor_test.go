package warsclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const streamFixture = `{"type":"start","models":["a","b"],"temperature":0.7,"ts":1}
{"type":"model-start","modelId":"a","ts":2}
{"type":"model-start","modelId":"b","ts":2}
{"type":"ttfb","modelId":"a","ttfbMs":120,"ts":3}
{"type":"delta","modelId":"a","text":"Hel","ts":4}
{"type":"ping","ts":5}
{"type":"delta","modelId":"a","text":"lo","ts":6}
{"type":"usage","modelId":"a","promptTokens":5,"completionTokens":2,"totalTokens":7,"ts":7}
{"type":"model-done","modelId":"a","latencyMs":900,"ts":8}
{"type":"error","modelId":"b","error":"upstream: status 500","latencyMs":40,"ts":9}
{"type":"end","totalMs":950,"ts":10}
`

func feedAll(t *testing.T, input string, fragment int) *Reconstructor {
	t.Helper()
	rec := NewReconstructor()
	for i := 0; i < len(input); i += fragment {
		end := i + fragment
		if end > len(input) {
			end = len(input)
		}
		if rec.Feed([]byte(input[i:end])) {
			break
		}
	}
	rec.Flush()
	return rec
}

func TestReconstructorFold(t *testing.T) {
	rec := feedAll(t, streamFixture, len(streamFixture))

	require.True(t, rec.Ended())
	assert.Equal(t, int64(950), rec.TotalMs)
	assert.Zero(t, rec.Dropped)

	a := rec.State("a")
	require.NotNil(t, a)
	assert.True(t, a.Started)
	assert.Equal(t, "Hello", a.Content)
	require.NotNil(t, a.TTFBMs)
	assert.Equal(t, int64(120), *a.TTFBMs)
	require.NotNil(t, a.LatencyMs)
	assert.Equal(t, int64(900), *a.LatencyMs)
	require.NotNil(t, a.TotalTokens)
	assert.Equal(t, 7, *a.TotalTokens)
	assert.True(t, a.Done)
	assert.Empty(t, a.Err)

	b := rec.State("b")
	require.NotNil(t, b)
	assert.Equal(t, "upstream: status 500", b.Err)
	assert.False(t, b.Done)
	assert.True(t, b.Terminal())
	require.NotNil(t, b.LatencyMs)
	assert.Equal(t, int64(40), *b.LatencyMs)
}

func TestReconstructorFragmentationInvariance(t *testing.T) {
	want := feedAll(t, streamFixture, len(streamFixture))

	for size := 1; size <= 64; size++ {
		got := feedAll(t, streamFixture, size)
		require.Equalf(t, want.States(), got.States(), "fragment size %d", size)
		require.Equal(t, want.TotalMs, got.TotalMs)
		require.Equal(t, want.Ended(), got.Ended())
	}
}

func TestReconstructorEdges(t *testing.T) {
	t.Run("malformed lines dropped without aborting", func(t *testing.T) {
		rec := NewReconstructor()
		rec.Feed([]byte("{oops\n{\"type\":\"delta\",\"modelId\":\"a\",\"text\":\"x\",\"ts\":1}\n"))
		assert.Equal(t, 1, rec.Dropped)
		assert.Equal(t, "x", rec.State("a").Content)
	})

	t.Run("unknown event type counted, not fatal", func(t *testing.T) {
		rec := NewReconstructor()
		rec.Feed([]byte("{\"type\":\"shiny-new-thing\",\"ts\":1}\n"))
		assert.Equal(t, 1, rec.Dropped)
	})

	t.Run("content is append-only across deltas", func(t *testing.T) {
		rec := NewReconstructor()
		prev := 0
		for _, frag := range []string{"a", "bc", "", "def"} {
			line := `{"type":"delta","modelId":"m","text":"` + frag + `","ts":1}` + "\n"
			rec.Feed([]byte(line))
			cur := len(rec.State("m").Content)
			assert.GreaterOrEqual(t, cur, prev)
			prev = cur
		}
		assert.Equal(t, "abcdef", rec.State("m").Content)
	})

	t.Run("input after end ignored", func(t *testing.T) {
		rec := NewReconstructor()
		rec.Feed([]byte("{\"type\":\"end\",\"totalMs\":5,\"ts\":1}\n{\"type\":\"delta\",\"modelId\":\"a\",\"text\":\"x\",\"ts\":2}\n"))
		assert.True(t, rec.Ended())
		assert.Nil(t, rec.State("a"))
	})

	t.Run("start pre-creates states for requested models", func(t *testing.T) {
		rec := NewReconstructor()
		rec.Feed([]byte("{\"type\":\"start\",\"models\":[\"a\",\"b\"],\"temperature\":1,\"ts\":1}\n"))
		require.NotNil(t, rec.State("a"))
		require.NotNil(t, rec.State("b"))
		assert.Len(t, rec.States(), 2)
	})

	t.Run("mark pending errored skips terminal models", func(t *testing.T) {
		rec := NewReconstructor()
		rec.Feed([]byte(`{"type":"model-start","modelId":"a","ts":1}` + "\n" +
			`{"type":"model-done","modelId":"a","latencyMs":10,"ts":2}` + "\n" +
			`{"type":"model-start","modelId":"b","ts":3}` + "\n"))
		rec.MarkPendingErrored("timed out")
		assert.Empty(t, rec.State("a").Err)
		assert.Equal(t, "timed out", rec.State("b").Err)
	})

	t.Run("unterminated final line folded on flush", func(t *testing.T) {
		rec := NewReconstructor()
		rec.Feed([]byte(`{"type":"delta","modelId":"a","text":"tail","ts":1}`))
		assert.Nil(t, rec.State("a"))
		rec.Flush()
		require.NotNil(t, rec.State("a"))
		assert.Equal(t, "tail", rec.State("a").Content)
	})
}
