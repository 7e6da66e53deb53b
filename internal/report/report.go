// Package report shapes engine output into the document shown to the user.
package report

import (
	"time"

	"github.com/google/uuid"

	"slotcheck/internal/models"
	"slotcheck/internal/normalizer"
	"slotcheck/internal/source"
)

// Report is the final availability answer for one analysed conversation.
type Report struct {
	ID                  string                   `json:"id"`
	GeneratedAt         time.Time                `json:"generated_at"`
	Timezone            string                   `json:"timezone"`
	AnalysisSummary     string                   `json:"analysis_summary"`
	IsSuggestion        bool                     `json:"is_suggestion"`
	Slots               []models.SlotVerdict     `json:"slots"`
	Alternatives        []models.AlternativeSlot `json:"alternatives"`
	Warnings            []string                 `json:"warnings"`
	CalendarDataMissing bool                     `json:"calendar_data_missing"`
}

// Input gathers everything Assemble needs.
type Input struct {
	GeneratedAt    time.Time
	Location       *time.Location
	Summary        string
	IsSuggestion   bool
	Verdicts       []models.SlotVerdict
	Alternatives   []models.AlternativeSlot
	SourceWarnings []source.Warning
	// EngineWarnings follow the source warnings, e.g. the no-data notice.
	EngineWarnings      []string
	Failures            []*normalizer.UnresolvableError
	CalendarDataMissing bool
}

// Assemble builds the report. It only reshapes its input: warnings are
// ordered source first, then engine, then per-slot extraction failures.
func Assemble(in Input) *Report {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	generated := in.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	r := &Report{
		ID:                  uuid.NewString(),
		GeneratedAt:         generated.In(loc),
		Timezone:            loc.String(),
		AnalysisSummary:     in.Summary,
		IsSuggestion:        in.IsSuggestion,
		Slots:               in.Verdicts,
		Alternatives:        in.Alternatives,
		Warnings:            make([]string, 0, len(in.SourceWarnings)+len(in.EngineWarnings)+len(in.Failures)),
		CalendarDataMissing: in.CalendarDataMissing,
	}
	if r.Slots == nil {
		r.Slots = []models.SlotVerdict{}
	}
	if r.Alternatives == nil {
		r.Alternatives = []models.AlternativeSlot{}
	}

	for _, w := range in.SourceWarnings {
		r.Warnings = append(r.Warnings, w.String())
	}
	r.Warnings = append(r.Warnings, in.EngineWarnings...)
	for _, f := range in.Failures {
		r.Warnings = append(r.Warnings, "Skipped "+f.Error())
	}
	return r
}

// Available returns the verdicts whose candidate is free.
func (r *Report) Available() []models.SlotVerdict {
	var out []models.SlotVerdict
	for _, v := range r.Slots {
		if v.Available {
			out = append(out, v)
		}
	}
	return out
}
