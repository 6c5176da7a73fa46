package warsclient

import (
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Event type tags as they appear on the wire.
const (
	tagStart      = "start"
	tagModelStart = "model-start"
	tagTTFB       = "ttfb"
	tagDelta      = "delta"
	tagUsage      = "usage"
	tagModelDone  = "model-done"
	tagError      = "error"
	tagPing       = "ping"
	tagEnd        = "end"
)

// streamEvent is the flat wire shape of one NDJSON line.
type streamEvent struct {
	Type             string   `json:"type"`
	ModelID          string   `json:"modelId"`
	Models           []string `json:"models"`
	Temperature      float64  `json:"temperature"`
	TTFBMs           int64    `json:"ttfbMs"`
	Text             string   `json:"text"`
	PromptTokens     *int     `json:"promptTokens"`
	CompletionTokens *int     `json:"completionTokens"`
	TotalTokens      *int     `json:"totalTokens"`
	LatencyMs        int64    `json:"latencyMs"`
	Error            string   `json:"error"`
	TotalMs          int64    `json:"totalMs"`
	TS               int64    `json:"ts"`
}

// ModelState is the accumulated view of one model's task. Content only
// ever grows; the remaining fields are set at most once each.
type ModelState struct {
	ModelID          string
	Started          bool
	Content          string
	TTFBMs           *int64
	LatencyMs        *int64
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	Err              string
	Done             bool
}

// Terminal reports whether the model has finished, successfully or not.
func (s *ModelState) Terminal() bool { return s.Done || s.Err != "" }

// Reconstructor folds a line-delimited event stream into per-model
// state. Bytes may arrive in arbitrary fragments; lines are folded as
// they complete. Not safe for concurrent use.
type Reconstructor struct {
	states map[string]*ModelState
	order  []string
	buf    strings.Builder

	// TotalMs is the server-reported total elapsed time, set by end.
	TotalMs int64
	// Dropped counts malformed lines skipped without aborting.
	Dropped int

	ended bool
}

// NewReconstructor returns an empty Reconstructor.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{states: make(map[string]*ModelState)}
}

// Feed consumes one fragment and folds every line it completes.
// Returns true once the end event has been seen; further input is
// ignored after that.
func (r *Reconstructor) Feed(fragment []byte) bool {
	if r.ended || len(fragment) == 0 {
		return r.ended
	}
	r.buf.Write(fragment)
	text := r.buf.String()

	idx := strings.LastIndexByte(text, '\n')
	if idx < 0 {
		return false
	}
	complete := text[:idx]
	r.buf.Reset()
	r.buf.WriteString(text[idx+1:])

	for _, line := range strings.Split(complete, "\n") {
		if r.foldLine(line) {
			return true
		}
	}
	return false
}

// Flush folds any trailing unterminated line. Call once at end of input.
func (r *Reconstructor) Flush() {
	if tail := r.buf.String(); tail != "" && !r.ended {
		r.foldLine(tail)
	}
	r.buf.Reset()
}

// States returns the per-model states in first-seen order.
func (r *Reconstructor) States() []*ModelState {
	out := make([]*ModelState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.states[id])
	}
	return out
}

// State returns one model's state, or nil if no event mentioned it.
func (r *Reconstructor) State(modelID string) *ModelState {
	return r.states[modelID]
}

// Ended reports whether the end event has been folded.
func (r *Reconstructor) Ended() bool { return r.ended }

// MarkPendingErrored force-fails every model that is not yet terminal.
// Used when the watchdog fires or the transport dies before end.
func (r *Reconstructor) MarkPendingErrored(reason string) {
	for _, id := range r.order {
		if s := r.states[id]; !s.Terminal() {
			s.Err = reason
		}
	}
}

func (r *Reconstructor) foldLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	var ev streamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		r.Dropped++
		log.WithFields(log.Fields{
			"error": err.Error(),
			"event": "line_dropped",
		}).Debug("Dropping malformed stream line")
		return false
	}
	return r.fold(ev)
}

// fold dispatches one event into per-model state. The switch covers
// every event tag the server can emit.
func (r *Reconstructor) fold(ev streamEvent) bool {
	switch ev.Type {
	case tagStart:
		for _, id := range ev.Models {
			r.state(id)
		}
	case tagModelStart:
		r.state(ev.ModelID).Started = true
	case tagTTFB:
		s := r.state(ev.ModelID)
		ttfb := ev.TTFBMs
		s.TTFBMs = &ttfb
	case tagDelta:
		r.state(ev.ModelID).Content += ev.Text
	case tagUsage:
		s := r.state(ev.ModelID)
		if ev.PromptTokens != nil {
			s.PromptTokens = ev.PromptTokens
		}
		if ev.CompletionTokens != nil {
			s.CompletionTokens = ev.CompletionTokens
		}
		if ev.TotalTokens != nil {
			s.TotalTokens = ev.TotalTokens
		}
	case tagModelDone:
		s := r.state(ev.ModelID)
		latency := ev.LatencyMs
		s.LatencyMs = &latency
		s.Done = true
	case tagError:
		s := r.state(ev.ModelID)
		latency := ev.LatencyMs
		s.LatencyMs = &latency
		s.Err = ev.Error
	case tagPing:
		// Keepalive only.
	case tagEnd:
		r.TotalMs = ev.TotalMs
		r.ended = true
		return true
	default:
		r.Dropped++
	}
	return false
}

// state returns the model's state, creating it on first reference.
func (r *Reconstructor) state(modelID string) *ModelState {
	if s, ok := r.states[modelID]; ok {
		return s
	}
	s := &ModelState{ModelID: modelID}
	r.states[modelID] = s
	r.order = append(r.order, modelID)
	return s
}
