// Package assembly reconciles transcription, diarization and code detection
// output into TranscriptSegment records.
package assembly

import (
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/service/codeblock"
)

// TermExtractor yields technical terms for a segment's text
type TermExtractor func(text string) []string

// Assembler merges independently produced time-aligned streams
type Assembler struct {
	extractTerms TermExtractor
}

// NewAssembler creates an Assembler whose technical-term list is always empty
func NewAssembler() *Assembler {
	return &Assembler{extractTerms: noTerms}
}

// NewAssemblerWithTermExtractor creates an Assembler that fills TechnicalTerms with extract
func NewAssemblerWithTermExtractor(extract TermExtractor) *Assembler {
	if extract == nil {
		extract = noTerms
	}
	return &Assembler{extractTerms: extract}
}

func noTerms(string) []string {
	return []string{}
}

// Assemble emits one segment per transcription unit, in transcription order.
// Speaker turns only label segments; they never change segment boundaries.
// The description's code blocks are accepted alongside the transcript but never
// attached to segments; per-segment code blocks come from the segment text
// alone. Inputs are not modified.
func (a *Assembler) Assemble(timed []model.TimedText, turns []model.SpeakerTurn, descriptionBlocks []string) []model.TranscriptSegment {
	segments := make([]model.TranscriptSegment, 0, len(timed))
	for _, t := range timed {
		segments = append(segments, model.TranscriptSegment{
			StartTime:      t.Start,
			EndTime:        t.End,
			Text:           t.Text,
			Speaker:        FindSpeaker(t.Start, turns),
			CodeBlocks:     codeblock.Detect(t.Text),
			TechnicalTerms: a.extractTerms(t.Text),
		})
	}
	return segments
}

// FindSpeaker returns the label of the first turn with Start <= ts <= End, or nil
func FindSpeaker(ts float64, turns []model.SpeakerTurn) *string {
	for _, turn := range turns {
		if turn.Start <= ts && ts <= turn.End {
			speaker := turn.Speaker
			return &speaker
		}
	}
	return nil
}

// Speakers returns the distinct speaker labels in order of first appearance
func Speakers(turns []model.SpeakerTurn) []string {
	seen := make(map[string]bool, len(turns))
	speakers := []string{}
	for _, turn := range turns {
		if turn.Speaker == "" || seen[turn.Speaker] {
			continue
		}
		seen[turn.Speaker] = true
		speakers = append(speakers, turn.Speaker)
	}
	return speakers
}
