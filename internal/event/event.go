// Package event defines the normalized streaming protocol shared by the
// server-side arena and the client-side reconstructor. Every line on the
// wire is exactly one Event, serialized as a self-contained JSON object.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates the event variants. The set is closed: both the
// gateway writer and the client fold switch exhaustively over it.
type Type string

const (
	TypeStart      Type = "start"
	TypeModelStart Type = "model-start"
	TypeTTFB       Type = "ttfb"
	TypeDelta      Type = "delta"
	TypeUsage      Type = "usage"
	TypeModelDone  Type = "model-done"
	TypeError      Type = "error"
	TypePing       Type = "ping"
	TypeEnd        Type = "end"
)

// Event is one normalized protocol event. Which fields are meaningful
// depends on Type; MarshalJSON emits only the fields of that variant.
type Event struct {
	Type    Type
	ModelID string // absent for start, ping, end
	TS      int64  // epoch milliseconds

	// start
	Models      []string
	Temperature float64

	// ttfb
	TTFBMs int64

	// delta
	Text string

	// usage (nil means the upstream did not report the count)
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int

	// model-done / error
	LatencyMs int64

	// error
	Error string

	// end
	TotalMs int64
}

func now() int64 { return time.Now().UnixMilli() }

// Start announces the full model set and resolved temperature before any
// worker begins.
func Start(models []string, temperature float64) Event {
	return Event{Type: TypeStart, Models: models, Temperature: temperature, TS: now()}
}

// ModelStart marks one model task entering its streaming phase.
func ModelStart(modelID string) Event {
	return Event{Type: TypeModelStart, ModelID: modelID, TS: now()}
}

// TTFB reports the elapsed time until a model's first content fragment.
func TTFB(modelID string, ttfb time.Duration) Event {
	return Event{Type: TypeTTFB, ModelID: modelID, TTFBMs: ttfb.Milliseconds(), TS: now()}
}

// Delta carries one text fragment for a model.
func Delta(modelID, text string) Event {
	return Event{Type: TypeDelta, ModelID: modelID, Text: text, TS: now()}
}

// Usage carries whatever token counts the upstream reported; nil counts
// serialize as null.
func Usage(modelID string, prompt, completion, total *int) Event {
	return Event{
		Type: TypeUsage, ModelID: modelID, TS: now(),
		PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total,
	}
}

// ModelDone terminates a model task successfully.
func ModelDone(modelID string, latency time.Duration) Event {
	return Event{Type: TypeModelDone, ModelID: modelID, LatencyMs: latency.Milliseconds(), TS: now()}
}

// ErrorEvent terminates a model task with a failure message.
func ErrorEvent(modelID, msg string, latency time.Duration) Event {
	return Event{Type: TypeError, ModelID: modelID, Error: msg, LatencyMs: latency.Milliseconds(), TS: now()}
}

// Ping is a keepalive; clients ignore it.
func Ping() Event {
	return Event{Type: TypePing, TS: now()}
}

// End terminates the whole stream.
func End(total time.Duration) Event {
	return Event{Type: TypeEnd, TotalMs: total.Milliseconds(), TS: now()}
}

// wire is the flat on-the-wire shape shared by all variants. Pointers
// let the decoder distinguish absent from zero where it matters.
type wire struct {
	Type             Type     `json:"type"`
	ModelID          string   `json:"modelId,omitempty"`
	Models           []string `json:"models,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TTFBMs           *int64   `json:"ttfbMs,omitempty"`
	Text             *string  `json:"text,omitempty"`
	PromptTokens     *int     `json:"promptTokens,omitempty"`
	CompletionTokens *int     `json:"completionTokens,omitempty"`
	TotalTokens      *int     `json:"totalTokens,omitempty"`
	LatencyMs        *int64   `json:"latencyMs,omitempty"`
	Error            *string  `json:"error,omitempty"`
	TotalMs          *int64   `json:"totalMs,omitempty"`
	TS               int64    `json:"ts"`
}

// usageWire keeps null token counts visible instead of omitting them.
type usageWire struct {
	Type             Type   `json:"type"`
	ModelID          string `json:"modelId"`
	PromptTokens     *int   `json:"promptTokens"`
	CompletionTokens *int   `json:"completionTokens"`
	TotalTokens      *int   `json:"totalTokens"`
	TS               int64  `json:"ts"`
}

// MarshalJSON emits the variant's fields only. The switch is exhaustive
// over Type so a new event kind cannot be silently dropped on the wire.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeStart:
		return json.Marshal(struct {
			Type        Type     `json:"type"`
			Models      []string `json:"models"`
			Temperature float64  `json:"temperature"`
			TS          int64    `json:"ts"`
		}{e.Type, e.Models, e.Temperature, e.TS})
	case TypeModelStart:
		return json.Marshal(struct {
			Type    Type   `json:"type"`
			ModelID string `json:"modelId"`
			TS      int64  `json:"ts"`
		}{e.Type, e.ModelID, e.TS})
	case TypeTTFB:
		return json.Marshal(struct {
			Type    Type   `json:"type"`
			ModelID string `json:"modelId"`
			TTFBMs  int64  `json:"ttfbMs"`
			TS      int64  `json:"ts"`
		}{e.Type, e.ModelID, e.TTFBMs, e.TS})
	case TypeDelta:
		return json.Marshal(struct {
			Type    Type   `json:"type"`
			ModelID string `json:"modelId"`
			Text    string `json:"text"`
			TS      int64  `json:"ts"`
		}{e.Type, e.ModelID, e.Text, e.TS})
	case TypeUsage:
		return json.Marshal(usageWire{e.Type, e.ModelID, e.PromptTokens, e.CompletionTokens, e.TotalTokens, e.TS})
	case TypeModelDone:
		return json.Marshal(struct {
			Type      Type   `json:"type"`
			ModelID   string `json:"modelId"`
			LatencyMs int64  `json:"latencyMs"`
			TS        int64  `json:"ts"`
		}{e.Type, e.ModelID, e.LatencyMs, e.TS})
	case TypeError:
		return json.Marshal(struct {
			Type      Type   `json:"type"`
			ModelID   string `json:"modelId"`
			Error     string `json:"error"`
			LatencyMs int64  `json:"latencyMs"`
			TS        int64  `json:"ts"`
		}{e.Type, e.ModelID, e.Error, e.LatencyMs, e.TS})
	case TypePing:
		return json.Marshal(struct {
			Type Type  `json:"type"`
			TS   int64 `json:"ts"`
		}{e.Type, e.TS})
	case TypeEnd:
		return json.Marshal(struct {
			Type    Type  `json:"type"`
			TotalMs int64 `json:"totalMs"`
			TS      int64 `json:"ts"`
		}{e.Type, e.TotalMs, e.TS})
	default:
		return nil, fmt.Errorf("event: unknown type %q", e.Type)
	}
}

// UnmarshalJSON accepts the flat wire shape and keeps only the decoded
// variant's fields.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{Type: w.Type, ModelID: w.ModelID, Models: w.Models, TS: w.TS}
	if w.Temperature != nil {
		e.Temperature = *w.Temperature
	}
	if w.TTFBMs != nil {
		e.TTFBMs = *w.TTFBMs
	}
	if w.Text != nil {
		e.Text = *w.Text
	}
	e.PromptTokens = w.PromptTokens
	e.CompletionTokens = w.CompletionTokens
	e.TotalTokens = w.TotalTokens
	if w.LatencyMs != nil {
		e.LatencyMs = *w.LatencyMs
	}
	if w.Error != nil {
		e.Error = *w.Error
	}
	if w.TotalMs != nil {
		e.TotalMs = *w.TotalMs
	}
	return nil
}

// Terminal reports whether the event ends a model task.
func (e Event) Terminal() bool {
	return e.Type == TypeModelDone || e.Type == TypeError
}
