package spectrogram

import (
	"errors"
	"math"
	"testing"

	"github.com/austinkregel/tunescribe/internal/config"
)

func TestBuildShapeAndFrameCount(t *testing.T) {
	cfg := config.Default()
	b, err := NewBuilder(cfg)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	pcm := make([]float64, cfg.AudioSamples())
	fine, err := b.Build(pcm)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if fine.NumFrames != cfg.SpecNumFrames() {
		t.Errorf("NumFrames = %d, want %d", fine.NumFrames, cfg.SpecNumFrames())
	}
	if fine.NumBins != cfg.SpecNumBins() {
		t.Errorf("NumBins = %d, want %d", fine.NumBins, cfg.SpecNumBins())
	}
	if len(fine.Data) != fine.NumFrames*fine.NumBins {
		t.Errorf("len(Data) = %d, want %d", len(fine.Data), fine.NumFrames*fine.NumBins)
	}
}

func TestBuildTruncatesExcessSamples(t *testing.T) {
	cfg := config.Default()
	b, err := NewBuilder(cfg)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	pcm := make([]float64, cfg.SpecWindowSize*3+17) // 3 whole frames + a partial one
	fine, err := b.Build(pcm)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if fine.NumFrames != 3 {
		t.Errorf("NumFrames = %d, want 3 (excess samples truncated silently)", fine.NumFrames)
	}
}

func TestBuildInsufficientSamples(t *testing.T) {
	cfg := config.Default()
	b, err := NewBuilder(cfg)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	_, err = b.Build(make([]float64, cfg.SpecWindowSize-1))
	if !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("Build(short) err = %v, want ErrInsufficientSamples", err)
	}
}

func TestBuildOutputNonNegative(t *testing.T) {
	cfg := config.Default()
	b, err := NewBuilder(cfg)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	pcm := make([]float64, cfg.SpecWindowSize*2)
	for i := range pcm {
		pcm[i] = math.Sin(2 * math.Pi * 440 * float64(i) / float64(cfg.SampleRate))
	}

	fine, err := b.Build(pcm)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, v := range fine.Data {
		if v < 0 {
			t.Fatalf("fine.Data[%d] = %v, want >= 0 (negative clipped to 0)", i, v)
		}
	}
}

func TestBuildSilenceIsAllZero(t *testing.T) {
	cfg := config.Default()
	b, err := NewBuilder(cfg)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	fine, err := b.Build(make([]float64, cfg.SpecWindowSize*2))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, v := range fine.Data {
		if v != 0 {
			t.Fatalf("fine.Data[%d] = %v, want 0 for silent input", i, v)
		}
	}
}

func TestBuildPureToneHasPeakNearExpectedMidi(t *testing.T) {
	cfg := config.Default()
	b, err := NewBuilder(cfg)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	// MIDI 72 (C5) ~= 523.25 Hz. Several frames of a pure tone, no
	// windowing edge effects expected to dominate the energy peak.
	midi := 72
	freq := 440.0 * math.Pow(2, (float64(midi)-69)/12.0)

	numFrames := 4
	pcm := make([]float64, cfg.SpecWindowSize*numFrames)
	for i := range pcm {
		pcm[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(cfg.SampleRate))
	}

	fine, err := b.Build(pcm)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Expected decoder-axis coarse bin center for MIDI 72: bin index 0 is
	// the highest pitch (MidiHigh), so the fine-bin region for MIDI 72 is
	// centered around (MidiHigh - 72) * SpecBinsPerMidi.
	expectedCenter := (cfg.MidiHigh - midi) * cfg.SpecBinsPerMidi

	row := fine.Row(1) // skip frame 0 in case of any startup transient
	peakIdx := 0
	for i, v := range row {
		if v > row[peakIdx] {
			peakIdx = i
		}
	}

	tolerance := cfg.SpecBinsPerMidi * 6 // within half an octave, allowing for DFT/windowing slack
	if diff := peakIdx - expectedCenter; diff < -tolerance || diff > tolerance {
		t.Errorf("peak bin = %d, want within %d of expected center %d", peakIdx, tolerance, expectedCenter)
	}
}

func TestNewBuilderRejectsOutOfRangeMidi(t *testing.T) {
	cfg := config.Default()
	cfg.MidiHigh = 200 // far outside any plausible source-DFT bin range
	if _, err := NewBuilder(cfg); err == nil {
		t.Error("NewBuilder with an unreachable MIDI bin should fail (ConfigError)")
	}
}
