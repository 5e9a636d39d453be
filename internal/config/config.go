// Package config holds the immutable constants shared by every pipeline
// stage: sample rate, frame geometry, MIDI axis, beam width, and the scoring
// weights. Everything here is fixed at the values spec.md requires for
// cross-implementation compatibility; the only knob an operator can turn is
// SpecBinsPerMidi (spec.md §9's open question), via an optional JSON
// override file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the validated, immutable configuration shared by every stage.
// Construct it with Default() (or Load() for an on-disk override) and treat
// it as read-only thereafter; every component takes it by value.
type Pipeline struct {
	SampleRate       int // SAMPLE_RATE
	AudioQuerySecs   int // AUDIO_QUERY_SECS
	SpecWindowSize   int // SPEC_WINDOW_SIZE
	MidiLow          int // MIDI_LOW
	MidiHigh         int // MIDI_HIGH
	SpecBinsPerMidi  int // SPEC_BINS_PER_MIDI (see open question, default 3)
	BeamWidth        int // BEAM_WIDTH
	TempoLengthScale int // TEMPO_LENGTH_SCALE (frames/quaver)

	TempoModelWeight   float64 // TEMPO_MODEL_WEIGHT
	PitchModelWeight   float64 // PITCH_MODEL_WEIGHT
	OctaveDedupeThresh float64 // OCTAVE_DEDUPE_THRESH
	SparsifyTopK       int     // K in B3

	NWCandidateNum int     // NW_CANDIDATE_NUM
	NWMatch        float64 // Needleman-Wunsch match score
	NWMismatch     float64 // Needleman-Wunsch mismatch penalty
	NWGap          float64 // Needleman-Wunsch gap penalty
	TopResults     int     // max ranked results returned

	Alphabet string // 48 query-string symbols, blank excluded
	Blank    byte   // never-emitted blank symbol
}

// alphabetSymbols is the 48-symbol query-string alphabet: a-z then A-V.
const alphabetSymbols = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUV"

// Default returns the spec-mandated configuration.
func Default() Pipeline {
	return Pipeline{
		SampleRate:       48000,
		AudioQuerySecs:   8,
		SpecWindowSize:   1024,
		MidiLow:          48,
		MidiHigh:         95,
		SpecBinsPerMidi:  3,
		BeamWidth:        40,
		TempoLengthScale: 8,

		TempoModelWeight:   0.4,
		PitchModelWeight:   0.12,
		OctaveDedupeThresh: 1.0,
		SparsifyTopK:       5,

		NWCandidateNum: 500,
		NWMatch:        2,
		NWMismatch:     -2,
		NWGap:          -1,
		TopResults:     100,

		Alphabet: alphabetSymbols,
		Blank:    '-',
	}
}

// MidiNum is MIDI_HIGH - MIDI_LOW + 1.
func (p Pipeline) MidiNum() int { return p.MidiHigh - p.MidiLow + 1 }

// SpecNumBins is MidiNum * SpecBinsPerMidi.
func (p Pipeline) SpecNumBins() int { return p.MidiNum() * p.SpecBinsPerMidi }

// AudioSamples is SampleRate * AudioQuerySecs.
func (p Pipeline) AudioSamples() int { return p.SampleRate * p.AudioQuerySecs }

// SpecNumFrames is AudioSamples / SpecWindowSize (375 at the default
// constants). spec.md §9 requires this be asserted exactly; Validate
// rejects a configuration where the division is not exact.
func (p Pipeline) SpecNumFrames() int { return p.AudioSamples() / p.SpecWindowSize }

// ErrConfigInvalid is the sentinel wrapped by every Validate failure.
var ErrConfigInvalid = fmt.Errorf("config: invalid pipeline configuration")

// Validate checks every invariant the spec requires of the fixed
// constants. A failure here is fatal at startup, never at query time.
func (p Pipeline) Validate() error {
	if p.SampleRate <= 0 || p.SpecWindowSize <= 0 {
		return fmt.Errorf("%w: sample rate and window size must be positive", ErrConfigInvalid)
	}
	if p.AudioSamples()%p.SpecWindowSize != 0 {
		return fmt.Errorf("%w: AUDIO_SAMPLES (%d) not a multiple of SPEC_WINDOW_SIZE (%d)", ErrConfigInvalid, p.AudioSamples(), p.SpecWindowSize)
	}
	if p.MidiHigh <= p.MidiLow {
		return fmt.Errorf("%w: MIDI_HIGH (%d) must exceed MIDI_LOW (%d)", ErrConfigInvalid, p.MidiHigh, p.MidiLow)
	}
	if p.SpecBinsPerMidi <= 0 {
		return fmt.Errorf("%w: SPEC_BINS_PER_MIDI must be positive", ErrConfigInvalid)
	}
	if p.BeamWidth <= 0 {
		return fmt.Errorf("%w: BEAM_WIDTH must be positive", ErrConfigInvalid)
	}
	if p.TempoLengthScale <= 0 {
		return fmt.Errorf("%w: TEMPO_LENGTH_SCALE must be positive", ErrConfigInvalid)
	}
	if p.SparsifyTopK <= 0 || p.SparsifyTopK > p.MidiNum() {
		return fmt.Errorf("%w: sparsify top-K (%d) out of range for %d MIDI pitches", ErrConfigInvalid, p.SparsifyTopK, p.MidiNum())
	}
	if len(p.Alphabet) != p.MidiNum() {
		return fmt.Errorf("%w: alphabet length (%d) must equal MIDI_NUM (%d)", ErrConfigInvalid, len(p.Alphabet), p.MidiNum())
	}
	if p.NWCandidateNum <= 0 || p.TopResults <= 0 {
		return fmt.Errorf("%w: NW candidate count and result count must be positive", ErrConfigInvalid)
	}
	// Resampling table bounds are validated where the table is built
	// (internal/spectrogram), since they also depend on the source DFT size.
	return nil
}

// overrideFile is the shape of the optional on-disk override: today only
// SpecBinsPerMidi is exposed, per spec.md §9's open question.
type overrideFile struct {
	SpecBinsPerMidi *int `json:"specBinsPerMidi,omitempty"`
}

// Load reads an optional JSON override file and applies it on top of
// Default(). A missing file is not an error — it just means "use the
// defaults". Mirrors the teacher's config.Manager.Load: read, unmarshal
// onto defaults, validate.
func Load(path string) (Pipeline, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return Pipeline{}, fmt.Errorf("read config override: %w", err)
	}

	var override overrideFile
	if err := json.Unmarshal(data, &override); err != nil {
		return Pipeline{}, fmt.Errorf("%w: parse config override: %v", ErrConfigInvalid, err)
	}
	if override.SpecBinsPerMidi != nil {
		cfg.SpecBinsPerMidi = *override.SpecBinsPerMidi
	}

	if err := cfg.Validate(); err != nil {
		return Pipeline{}, err
	}
	return cfg, nil
}
