// Package extract produces analysis payloads for the normalizer, either from
// an upstream structured analysis or from plain conversation text.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"slotcheck/internal/normalizer"
)

// ErrNoPayload is returned when the input holds nothing an extractor understands.
var ErrNoPayload = errors.New("no analysis payload found")

// Extractor turns raw input into an analysis payload.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, input []byte) (*normalizer.Payload, error)
}

// JSON reads the structured payload emitted by an upstream analysis step.
// The JSON may be wrapped in a fenced code block or surrounded by prose.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Extract(_ context.Context, input []byte) (*normalizer.Payload, error) {
	body := jsonBody(input)
	if body == nil {
		return nil, ErrNoPayload
	}
	var p normalizer.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode analysis payload: %w", err)
	}
	return &p, nil
}

// jsonBody locates the JSON object inside input.
func jsonBody(input []byte) []byte {
	text := bytes.TrimSpace(input)
	if _, after, ok := bytes.Cut(text, []byte("```json")); ok {
		text, _, _ = bytes.Cut(after, []byte("```"))
	} else if _, after, ok := bytes.Cut(text, []byte("```")); ok {
		text, _, _ = bytes.Cut(after, []byte("```"))
	}
	text = bytes.TrimSpace(text)

	open := bytes.IndexByte(text, '{')
	closing := bytes.LastIndexByte(text, '}')
	if open < 0 || closing < open {
		return nil
	}
	return text[open : closing+1]
}

// Chain tries extractors in order. The first payload with at least one time
// slot wins. Otherwise the last payload produced is returned, and if none
// produced anything, the last error.
type Chain struct {
	Logger     *slog.Logger
	Extractors []Extractor
}

func (c Chain) Name() string { return "chain" }

func (c Chain) Extract(ctx context.Context, input []byte) (*normalizer.Payload, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		fallback *normalizer.Payload
		lastErr  = ErrNoPayload
	)
	for _, ex := range c.Extractors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := ex.Extract(ctx, input)
		if err != nil {
			logger.Debug("Extractor produced nothing", "extractor", ex.Name(), "error", err)
			lastErr = err
			continue
		}
		if len(p.TimeSlots) > 0 {
			logger.Debug("Extracted time slots", "extractor", ex.Name(), "count", len(p.TimeSlots))
			return p, nil
		}
		fallback = p
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, lastErr
}

// Default is the JSON reader with the text pattern fallback.
func Default(logger *slog.Logger) Extractor {
	return Chain{Logger: logger, Extractors: []Extractor{JSON{}, Pattern{}}}
}
