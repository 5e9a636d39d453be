// Package contour implements the contour <-> query-string codec and the
// trigram fingerprint used by the retrieval engine's heuristic phase.
package contour

import (
	"fmt"
	"math"

	"github.com/austinkregel/tunescribe/internal/config"
	"github.com/austinkregel/tunescribe/internal/decoder"
)

// Trigram is an ordered 3-tuple of consecutive MIDI pitches.
type Trigram [3]int

// Encode collapses runs of equal decoder-axis pitch into quaver-quantized
// symbols. The symbol for decoder MIDI index i is alphabet position
// MidiNum-1-i — the inversion documented in spec.md §4.D: the decoder's
// highest index is the lowest musical pitch.
func Encode(cfg config.Pipeline, c decoder.Contour) (string, error) {
	if len(c) == 0 {
		return "", nil
	}

	var out []byte
	runPitch := c[0]
	runLen := 1

	flush := func(pitch, length int) error {
		sym, err := symbolFor(cfg, pitch)
		if err != nil {
			return err
		}
		q := int(math.Round(float64(length) / float64(cfg.TempoLengthScale)))
		if q < 1 {
			q = 1
		}
		for i := 0; i < q; i++ {
			out = append(out, sym)
		}
		return nil
	}

	for i := 1; i < len(c); i++ {
		if c[i] == runPitch {
			runLen++
			continue
		}
		if err := flush(runPitch, runLen); err != nil {
			return "", err
		}
		runPitch = c[i]
		runLen = 1
	}
	if err := flush(runPitch, runLen); err != nil {
		return "", err
	}

	return string(out), nil
}

// symbolFor maps a decoder-axis MIDI index to its alphabet byte.
func symbolFor(cfg config.Pipeline, decoderIndex int) (byte, error) {
	midiNum := cfg.MidiNum()
	if decoderIndex < 0 || decoderIndex >= midiNum {
		return 0, fmt.Errorf("contour: decoder index %d out of range [0,%d)", decoderIndex, midiNum)
	}
	alphaPos := midiNum - 1 - decoderIndex
	if alphaPos < 0 || alphaPos >= len(cfg.Alphabet) {
		return 0, fmt.Errorf("contour: alphabet position %d out of range", alphaPos)
	}
	return cfg.Alphabet[alphaPos], nil
}

// MidiFromSymbol inverts symbolFor: given a query-string byte, returns the
// decoder-axis MIDI index it represents. Used when decoding a reference
// index entry stored as a string rather than an integer-pitch list.
func MidiFromSymbol(cfg config.Pipeline, sym byte) (int, error) {
	pos := -1
	for i := 0; i < len(cfg.Alphabet); i++ {
		if cfg.Alphabet[i] == sym {
			pos = i
			break
		}
	}
	if pos < 0 {
		return 0, fmt.Errorf("contour: symbol %q not in alphabet", sym)
	}
	return cfg.MidiNum() - 1 - pos, nil
}

// Trigrams returns the set of all length-3 contiguous sub-sequences of seq,
// excluding the final trigram: the source iterates range(len(seq)-3),
// yielding len-3 (not len-2) trigrams. This off-by-one is preserved
// intentionally for bit-compatibility with existing indexes (spec.md §9).
func Trigrams(seq []int) map[Trigram]struct{} {
	set := make(map[Trigram]struct{})
	for i := 0; i < len(seq)-3; i++ {
		set[Trigram{seq[i], seq[i+1], seq[i+2]}] = struct{}{}
	}
	return set
}

// Overlap counts the shared trigrams between two sets.
func Overlap(a, b map[Trigram]struct{}) int {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	count := 0
	for t := range small {
		if _, ok := large[t]; ok {
			count++
		}
	}
	return count
}
