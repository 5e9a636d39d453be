package contour

import (
	"testing"

	"github.com/austinkregel/tunescribe/internal/config"
	"github.com/austinkregel/tunescribe/internal/decoder"
)

func TestEncodeSinglePitchRun(t *testing.T) {
	cfg := config.Default()
	// 48 frames at TempoLengthScale=8 frames/quaver -> 6 quavers of one symbol.
	c := make(decoder.Contour, 48)
	for i := range c {
		c[i] = 23 // decoder-axis index
	}

	got, err := Encode(cfg, c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("len(got) = %d, want 6", len(got))
	}
	for i, ch := range got {
		if i > 0 && ch != rune(got[0]) {
			t.Fatalf("Encode output not uniform: %q", got)
		}
	}
}

func TestEncodeEmptyContour(t *testing.T) {
	cfg := config.Default()
	got, err := Encode(cfg, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got != "" {
		t.Errorf("Encode(nil) = %q, want empty", got)
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	cfg := config.Default()
	for i := 0; i < cfg.MidiNum(); i++ {
		sym, err := symbolFor(cfg, i)
		if err != nil {
			t.Fatalf("symbolFor(%d): %v", i, err)
		}
		back, err := MidiFromSymbol(cfg, sym)
		if err != nil {
			t.Fatalf("MidiFromSymbol(%q): %v", sym, err)
		}
		if back != i {
			t.Errorf("round trip for decoder index %d produced %d via symbol %q", i, back, sym)
		}
	}
}

func TestSymbolForOutOfRange(t *testing.T) {
	cfg := config.Default()
	if _, err := symbolFor(cfg, -1); err == nil {
		t.Error("symbolFor(-1) should error")
	}
	if _, err := symbolFor(cfg, cfg.MidiNum()); err == nil {
		t.Error("symbolFor(MidiNum()) should error")
	}
}

func TestTrigramsOffByOnePreserved(t *testing.T) {
	seq := []int{1, 2, 3, 4, 5, 6, 7, 8}
	got := Trigrams(seq)

	want := map[Trigram]struct{}{
		{1, 2, 3}: {}, {2, 3, 4}: {}, {3, 4, 5}: {}, {4, 5, 6}: {}, {5, 6, 7}: {},
	}
	if len(got) != len(want) {
		t.Fatalf("len(Trigrams(seq)) = %d, want %d (len(seq)-3)", len(got), len(want))
	}
	for tg := range want {
		if _, ok := got[tg]; !ok {
			t.Errorf("missing expected trigram %v", tg)
		}
	}
	if _, ok := got[Trigram{6, 7, 8}]; ok {
		t.Error("Trigrams must exclude the final window (6,7,8) per the preserved off-by-one")
	}
}

func TestTrigramsShortSequence(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3} {
		seq := make([]int, n)
		if got := Trigrams(seq); len(got) != 0 {
			t.Errorf("Trigrams(len=%d) = %v, want empty", n, got)
		}
	}
}

func TestOverlap(t *testing.T) {
	a := Trigrams([]int{1, 2, 3, 4, 5, 6})
	b := Trigrams([]int{1, 2, 3, 4, 5, 6})
	if got := Overlap(a, b); got != len(a) {
		t.Errorf("Overlap(identical) = %d, want %d", got, len(a))
	}

	c := Trigrams([]int{9, 9, 9, 9, 9, 9})
	if got := Overlap(a, c); got != 0 {
		t.Errorf("Overlap(disjoint) = %d, want 0", got)
	}
}
