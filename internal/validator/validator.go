// Package validator checks generation requests before any streaming
// begins. Failures are reported with per-field details so clients can
// see everything wrong with a request at once.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gravixlayer/llm-wars/internal/models"
)

// ValidationErrors aggregates every problem found in one request.
type ValidationErrors struct {
	Errors []string
}

func (v *ValidationErrors) Error() string {
	return "validation failed: " + strings.Join(v.Errors, "; ")
}

func (v *ValidationErrors) add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// ValidatedRequest is a GenerationRequest after validation, with the
// temperature resolved to a concrete clamped value.
type ValidatedRequest struct {
	Prompt      string
	Models      []string
	Temperature float64
}

// shape mirrors GenerationRequest for tag-driven validation.
type shape struct {
	Prompt string   `validate:"required"`
	Models []string `validate:"required,min=1,dive,required"`
}

var validate = validator.New()

// ValidateRequest checks the request and resolves its temperature.
// Returns *ValidationErrors on any failure.
func ValidateRequest(req *models.GenerationRequest) (*ValidatedRequest, error) {
	verrs := &ValidationErrors{}

	if err := validate.Struct(shape{Prompt: strings.TrimSpace(req.Prompt), Models: req.Models}); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			switch {
			case fe.Field() == "Prompt":
				verrs.add("prompt must be a non-empty string")
			case strings.Contains(fe.Field(), "["):
				verrs.add("models must not contain empty identifiers")
			default:
				verrs.add("models must contain at least one model identifier")
			}
		}
	}

	for _, id := range req.Models {
		if strings.Contains(strings.ToLower(id), "embedding") {
			verrs.add("model %q is an embeddings model and cannot generate text", id)
		}
	}

	temp, err := resolveTemperature(req.Temperature)
	if err != nil {
		verrs.add("%s", err.Error())
	}

	if len(verrs.Errors) > 0 {
		return nil, verrs
	}
	return &ValidatedRequest{
		Prompt:      req.Prompt,
		Models:      req.Models,
		Temperature: temp,
	}, nil
}

// resolveTemperature accepts a JSON number or numeric string and clamps
// the result into the allowed range. Absent resolves to the default.
func resolveTemperature(raw any) (float64, error) {
	var t float64
	switch v := raw.(type) {
	case nil:
		return models.TemperatureDefault, nil
	case float64:
		t = v
	case int:
		t = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("temperature %q is not a number", v)
		}
		t = parsed
	default:
		return 0, fmt.Errorf("temperature must be a number or numeric string")
	}
	if t < models.TemperatureMin {
		t = models.TemperatureMin
	}
	if t > models.TemperatureMax {
		t = models.TemperatureMax
	}
	return t, nil
}
