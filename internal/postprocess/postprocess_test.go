package postprocess

import (
	"testing"

	"github.com/austinkregel/tunescribe/internal/config"
	"github.com/austinkregel/tunescribe/internal/spectrogram"
)

func makeFine(cfg config.Pipeline, numFrames int) spectrogram.Fine {
	return spectrogram.Fine{NumFrames: numFrames, NumBins: cfg.SpecNumBins(), Data: make([]float64, numFrames*cfg.SpecNumBins())}
}

func TestSumToMidiSumsNotAverages(t *testing.T) {
	cfg := config.Default()
	fine := makeFine(cfg, 1)
	row := fine.Row(0)
	for i := 0; i < cfg.SpecBinsPerMidi; i++ {
		row[i] = float64(i + 1) // bins for MIDI pitch 0: 1, 2, 3 (bpm=3)
	}

	coarse := sumToMidi(cfg, fine)
	want := 6.0 // 1+2+3
	if coarse.Row(0)[0] != want {
		t.Errorf("sumToMidi pitch 0 = %v, want %v", coarse.Row(0)[0], want)
	}
}

// octaveDecoderIndex returns the coarse-axis index for a pitch class and
// octave under the decoder's inverted axis (index 0 == MidiHigh): the
// highest octave occupies the lowest indices.
func octaveDecoderIndex(cfg config.Pipeline, octave, pitchClass int) int {
	octaves := cfg.MidiNum() / 12
	// octave 0 == lowest musical octave == highest decoder-axis indices.
	return (octaves-1-octave)*12 + (11 - pitchClass)
}

func TestOctaveDedupeCollapsesGhost(t *testing.T) {
	cfg := config.Default()
	numFrames := 2
	coarse := Coarse{NumFrames: numFrames, MidiNum: cfg.MidiNum(), Data: make([]float64, numFrames*cfg.MidiNum())}

	lowIdx := octaveDecoderIndex(cfg, 0, 0)
	highIdx := octaveDecoderIndex(cfg, 1, 0)
	for f := 0; f < numFrames; f++ {
		row := coarse.Row(f)
		row[lowIdx] = 10.0
		row[highIdx] = 5.0 // half-strength octave ghost: 5 < 1.0*10, collapses
	}

	dedupeOctaves(cfg, coarse)

	for f := 0; f < numFrames; f++ {
		row := coarse.Row(f)
		if row[highIdx] != 0 {
			t.Errorf("frame %d: high-octave bin = %v, want 0 after collapse", f, row[highIdx])
		}
		if row[lowIdx] != 15.0 {
			t.Errorf("frame %d: low-octave bin = %v, want 15 (energy conserved)", f, row[lowIdx])
		}
	}
}

func TestOctaveDedupeKeepsStrongerHigherOctave(t *testing.T) {
	cfg := config.Default()
	coarse := Coarse{NumFrames: 1, MidiNum: cfg.MidiNum(), Data: make([]float64, cfg.MidiNum())}

	lowIdx := octaveDecoderIndex(cfg, 0, 0)
	highIdx := octaveDecoderIndex(cfg, 1, 0)
	row := coarse.Row(0)
	row[lowIdx] = 1.0
	row[highIdx] = 5.0 // stronger than the lower octave: not collapsed (5 is not < 1.0*1.0)

	dedupeOctaves(cfg, coarse)

	if coarse.Row(0)[highIdx] != 5.0 {
		t.Errorf("high-octave bin = %v, want unchanged 5.0", coarse.Row(0)[highIdx])
	}
	if coarse.Row(0)[lowIdx] != 1.0 {
		t.Errorf("low-octave bin = %v, want unchanged 1.0", coarse.Row(0)[lowIdx])
	}
}

func TestSparsifyKeepsOnlyTopK(t *testing.T) {
	cfg := config.Default()
	coarse := Coarse{NumFrames: 1, MidiNum: cfg.MidiNum(), Data: make([]float64, cfg.MidiNum())}
	row := coarse.Row(0)
	for i := range row {
		row[i] = float64(i) // strictly increasing: top K are the last K indices
	}

	sparsify(cfg, coarse)

	nonZero := 0
	for _, v := range coarse.Row(0) {
		if v != 0 {
			nonZero++
		}
	}
	if nonZero != cfg.SparsifyTopK {
		t.Fatalf("nonZero count = %d, want %d", nonZero, cfg.SparsifyTopK)
	}
	for i := cfg.MidiNum() - cfg.SparsifyTopK; i < cfg.MidiNum(); i++ {
		if row[i] == 0 {
			t.Errorf("expected index %d (top-%d) to survive sparsification", i, cfg.SparsifyTopK)
		}
	}
}

func TestProcessOrdering(t *testing.T) {
	cfg := config.Default()
	fine := makeFine(cfg, 3)
	// Give every fine bin a small positive energy so B2's sums are
	// comparable and B1/B3 have something to act on.
	for i := range fine.Data {
		fine.Data[i] = 1.0
	}

	coarse := Process(cfg, fine)
	if coarse.NumFrames != 3 || coarse.MidiNum != cfg.MidiNum() {
		t.Fatalf("Process shape = (%d,%d), want (3,%d)", coarse.NumFrames, coarse.MidiNum, cfg.MidiNum())
	}
	for f := 0; f < coarse.NumFrames; f++ {
		nonZero := 0
		for _, v := range coarse.Row(f) {
			if v != 0 {
				nonZero++
			}
		}
		if nonZero > cfg.SparsifyTopK {
			t.Errorf("frame %d: %d nonzero entries, want <= %d after sparsification", f, nonZero, cfg.SparsifyTopK)
		}
	}
}
