package upstream

import "encoding/json"

// Message is one chat message in an OpenAI-compatible request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body of POST /chat/completions.
type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Temperature   float64        `json:"temperature"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

// streamOptions asks the upstream to report usage inline with the
// stream, in the final chunk.
type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Chunk is one parsed streaming payload, also reused for the
// non-streaming completion body (same choice shapes, message instead of
// delta).
type Chunk struct {
	Choices []Choice     `json:"choices"`
	Usage   *UsageCounts `json:"usage"`
}

// Choice covers the content-bearing shapes seen across upstream
// variants: chat deltas, legacy text completions, and full messages.
type Choice struct {
	Delta   *Delta         `json:"delta"`
	Text    string         `json:"text"`
	Message *ChoiceMessage `json:"message"`
}

// Delta is the incremental content of a streaming chunk.
type Delta struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
}

// ChoiceMessage is the full message of a non-streaming completion.
type ChoiceMessage struct {
	Content string `json:"content"`
}

// DeltaText returns the chunk's text fragment, trying the known content
// fields in a fixed priority order: delta content, reasoning content,
// plain text, message content. Empty string means no content in this
// chunk. This is the single place upstream shape variance is absorbed.
func (c *Chunk) DeltaText() string {
	for _, choice := range c.Choices {
		if choice.Delta != nil {
			if choice.Delta.Content != "" {
				return choice.Delta.Content
			}
			if choice.Delta.ReasoningContent != "" {
				return choice.Delta.ReasoningContent
			}
		}
		if choice.Text != "" {
			return choice.Text
		}
		if choice.Message != nil && choice.Message.Content != "" {
			return choice.Message.Content
		}
	}
	return ""
}

// UsageCounts normalizes the token accounting block across upstream
// naming conventions. Nil fields were not reported.
type UsageCounts struct {
	Prompt     *int
	Completion *int
	Total      *int
}

func (u *UsageCounts) UnmarshalJSON(data []byte) error {
	var raw struct {
		PromptTokens     *int `json:"prompt_tokens"`
		InputTokens      *int `json:"input_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
		OutputTokens     *int `json:"output_tokens"`
		TotalTokens      *int `json:"total_tokens"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.Prompt = firstNonNil(raw.PromptTokens, raw.InputTokens)
	u.Completion = firstNonNil(raw.CompletionTokens, raw.OutputTokens)
	u.Total = raw.TotalTokens
	if u.Total == nil && u.Prompt != nil && u.Completion != nil {
		total := *u.Prompt + *u.Completion
		u.Total = &total
	}
	return nil
}

func firstNonNil(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// CatalogModel is one entry of the upstream models listing, before
// normalization for the public API.
type CatalogModel struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	OutputModalities []string `json:"output_modalities"`
}

// catalogResponse tolerates both envelope shapes the upstream has used.
type catalogResponse struct {
	Data   []CatalogModel `json:"data"`
	Models []CatalogModel `json:"models"`
}
