// Package postprocess turns a fine spectrogram into the dense per-MIDI
// spectrogram the decoder consumes: octave-ghost removal, per-MIDI energy
// summation, and per-frame top-K sparsification.
package postprocess

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/austinkregel/tunescribe/internal/config"
	"github.com/austinkregel/tunescribe/internal/spectrogram"
)

// Coarse is the per-MIDI spectrogram: shape (NumFrames, MidiNum).
type Coarse struct {
	NumFrames int
	MidiNum   int
	Data      []float64 // row-major, len == NumFrames*MidiNum
}

// Row returns the slice of per-MIDI energies for frame f.
func (c Coarse) Row(f int) []float64 {
	return c.Data[f*c.MidiNum : (f+1)*c.MidiNum]
}

// Process runs B2 (per-MIDI sum) -> B1 (octave dedup) -> B3 (sparsify) over
// a fine spectrogram, in that order, and returns the resulting coarse
// spectrogram. The per-MIDI sum comes first because octave dedup works on
// the 48-pitch axis, which only exists once the fine bins are summed.
func Process(cfg config.Pipeline, fine spectrogram.Fine) Coarse {
	coarse := sumToMidi(cfg, fine)
	dedupeOctaves(cfg, coarse)
	sparsify(cfg, coarse)
	return coarse
}

// sumToMidi implements B2: sum SpecBinsPerMidi consecutive fine bins into
// one coarse bin per MIDI pitch. Sum, not mean, per spec.md §4.B.
func sumToMidi(cfg config.Pipeline, fine spectrogram.Fine) Coarse {
	midiNum := cfg.MidiNum()
	bpm := cfg.SpecBinsPerMidi

	coarse := Coarse{NumFrames: fine.NumFrames, MidiNum: midiNum, Data: make([]float64, fine.NumFrames*midiNum)}
	for f := 0; f < fine.NumFrames; f++ {
		fineRow := fine.Row(f)
		coarseRow := coarse.Row(f)
		for m := 0; m < midiNum; m++ {
			coarseRow[m] = floats.Sum(fineRow[m*bpm : (m+1)*bpm])
		}
	}
	return coarse
}

// dedupeOctaves implements B1: reshape the MidiNum axis as (octaves, 12)
// and, processing top-down, collapse a higher octave into the one below it
// whenever the higher octave's energy is smaller (spec.md: "<",
// OCTAVE_DEDUPE_THRESH * lower). Top-down order lets three stacked
// harmonics collapse in a single pass.
//
// Coarse index 0 is the highest MIDI pitch (the decoder's inverted axis,
// spec.md §3), so octave group o=0 is the highest musical octave and group
// o+1 is one octave *below* it — the opposite of the array layout spec.md's
// B1 prose assumes. Processing o ascending from 0 therefore is "top-down":
// a higher group folds into the group below it, and a three-octave stack
// (o, o+1, o+2) collapses in one pass because o+1 has already absorbed o's
// energy by the time the (o+1, o+2) pair is examined.
func dedupeOctaves(cfg config.Pipeline, coarse Coarse) {
	midiNum := coarse.MidiNum
	if midiNum%12 != 0 {
		// Octave reshape only applies cleanly when MidiNum is a multiple
		// of 12; the spec's default config (MIDI_NUM=48) always is.
		return
	}
	octaves := midiNum / 12

	for f := 0; f < coarse.NumFrames; f++ {
		row := coarse.Row(f)
		for o := 0; o <= octaves-2; o++ {
			for p := 0; p < 12; p++ {
				higherIdx := o*12 + p     // higher musical octave
				lowerIdx := (o+1)*12 + p // one octave below higherIdx
				if row[higherIdx] < cfg.OctaveDedupeThresh*row[lowerIdx] {
					row[lowerIdx] += row[higherIdx]
					row[higherIdx] = 0
				}
			}
		}
	}
}

// sparsify implements B3: keep only the top-K energies per frame, zero the
// rest.
func sparsify(cfg config.Pipeline, coarse Coarse) {
	k := cfg.SparsifyTopK
	if k >= coarse.MidiNum {
		return
	}

	type entry struct {
		idx int
		val float64
	}
	entries := make([]entry, coarse.MidiNum)

	for f := 0; f < coarse.NumFrames; f++ {
		row := coarse.Row(f)
		for i, v := range row {
			entries[i] = entry{idx: i, val: v}
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].val > entries[b].val })

		keep := make(map[int]bool, k)
		for i := 0; i < k; i++ {
			keep[entries[i].idx] = true
		}
		for i := range row {
			if !keep[i] {
				row[i] = 0
			}
		}
	}
}
