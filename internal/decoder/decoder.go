// Package decoder implements the frame-synchronous beam search that turns a
// coarse (per-MIDI) spectrogram into a single symbolic pitch contour: the
// third stage of the query pipeline. Scoring combines frame energy with a
// pitch-interval prior and a tempo prior over note duration.
package decoder

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/austinkregel/tunescribe/internal/config"
	"github.com/austinkregel/tunescribe/internal/postprocess"
)

// Proposal is one beam-search hypothesis at a given frame. MIDI index 0
// corresponds to MidiHigh, MidiNum-1 to MidiLow — the decoder's inverted
// axis (spec.md §3).
type Proposal struct {
	PrevID       int
	Pitch        int
	Score        float64
	Duration     int
	PitchChanged bool
}

// Contour is a per-frame sequence of MIDI indices, one per decoded frame.
type Contour []int

// pitchTable holds the fixed pitch-interval log-prior, indexed by
// interval+12 for interval in [-12,12]. These are the empirical base_scores
// learned from a folk-tune corpus (original_source/utils/folkfriend/decoder/
// pitch_model.py's base_scores dict), weighted at use time by
// PitchModelWeight. The table is not symmetric (e.g. -9 and 9 differ):
// ascending and descending intervals of the same size are not equally
// likely in this repertoire. An interval outside the table returns the
// "unknown interval" penalty (spec.md §4.C: "≈ -20 * weight"), matching the
// source's own base_scores.get(interval, -20) fallback. Index 12 (interval 0)
// is never read: a zero interval means the pitch didn't change, which
// bypasses pitchScore entirely (see stepFrame).
var pitchTable = buildPitchTable()

func buildPitchTable() [25]float64 {
	var t [25]float64
	t[-12+12] = -2.639916731
	t[-11+12] = -4.394149488
	t[-10+12] = -2.972304221
	t[-9+12] = -2.166698359
	t[-8+12] = -2.306580069
	t[-7+12] = -1.162611053
	t[-6+12] = -3.731280049
	t[-5+12] = -0.6308846752
	t[-4+12] = -0.6756249503
	t[-3+12] = -0.3947562571
	t[-2+12] = -0.2396100196
	t[-1+12] = -1.375965628
	t[1+12] = -1.300531153
	t[2+12] = 0
	t[3+12] = -0.3356148385
	t[4+12] = -0.59683188
	t[5+12] = -0.3042728195
	t[6+12] = -3.049916994
	t[7+12] = -1.22192358
	t[8+12] = -2.487884978
	t[9+12] = -2.772818809
	t[10+12] = -3.572246443
	t[11+12] = -5.149161163
	t[12+12] = -3.41406825
	return t
}

const unknownIntervalLL = -20.0

// pitchScore returns PITCH_MODEL_WEIGHT-weighted log-prior for a semitone
// interval.
func pitchScore(cfg config.Pipeline, interval int) float64 {
	if interval < -12 || interval > 12 {
		return unknownIntervalLL * cfg.PitchModelWeight
	}
	return pitchTable[interval+12] * cfg.PitchModelWeight
}

// tempoMemo memoizes tempo_score by duration. Frame counts are bounded by
// SpecNumFrames, so a fixed-size slice (filled lazily, never grown)
// suffices; a duration beyond its length is computed without being cached.
// Fills are idempotent pure-function writes, safe under concurrent access
// per spec.md §5.
type tempoMemo struct {
	mu     sync.Mutex
	values []float64
	filled []bool
}

func newTempoMemo(maxDuration int) *tempoMemo {
	return &tempoMemo{
		values: make([]float64, maxDuration+1),
		filled: make([]bool, maxDuration+1),
	}
}

// tempoScore returns TEMPO_MODEL_WEIGHT-weighted cost for d frames since
// the last pitch change, given length scale L = TempoLengthScale.
// Minimized at d = k*L for integer k >= 1 (spec.md §8).
func (m *tempoMemo) tempoScore(cfg config.Pipeline, d int) float64 {
	if d < len(m.filled) {
		m.mu.Lock()
		if m.filled[d] {
			v := m.values[d]
			m.mu.Unlock()
			return v
		}
		m.mu.Unlock()
	}

	v := computeTempoScore(cfg, d)

	if d < len(m.filled) {
		m.mu.Lock()
		m.values[d] = v
		m.filled[d] = true
		m.mu.Unlock()
	}
	return v
}

func computeTempoScore(cfg config.Pipeline, d int) float64 {
	L := float64(cfg.TempoLengthScale)
	x := float64(d) / L
	nLo := math.Floor(x)
	best := math.Inf(1)
	for _, n := range []float64{nLo, nLo + 1} {
		if n <= 0 {
			continue
		}
		cand := n * math.Abs(math.Log(x/n))
		if cand < best {
			best = cand
		}
	}
	if math.IsInf(best, 1) {
		best = 0
	}
	return cfg.TempoModelWeight * best
}

// Decoder runs the beam search for a fixed configuration.
type Decoder struct {
	cfg config.Pipeline
}

// New creates a Decoder bound to cfg.
func New(cfg config.Pipeline) *Decoder {
	return &Decoder{cfg: cfg}
}

// ErrNoSignal indicates the input spectrogram carried no energy; the
// caller should treat this as "no contour", not a failure (spec.md §4.C/§7).
var ErrNoSignal = sentinelNoSignal{}

type sentinelNoSignal struct{}

func (sentinelNoSignal) Error() string { return "decoder: no signal" }

// Decode runs the full beam search over coarse and retraces the
// highest-scoring final proposal into a Contour of length NumFrames. On an
// all-zero spectrogram it returns (nil, ErrNoSignal), not a panic.
func (d *Decoder) Decode(coarse postprocess.Coarse) (Contour, error) {
	if coarse.NumFrames == 0 {
		return nil, ErrNoSignal
	}

	normalized := normalizeEnergy(coarse)
	if normalized == nil {
		return nil, ErrNoSignal
	}

	memo := newTempoMemo(coarse.NumFrames + 1)

	// frames[f] holds the surviving proposal set for frame f; each
	// proposal's PrevID indexes into frames[f-1], which is all retrace needs.
	frames := make([][]Proposal, coarse.NumFrames)
	frames[0] = initFrame(normalized.Row(0))

	for f := 1; f < coarse.NumFrames; f++ {
		frames[f] = d.stepFrame(memo, frames[f-1], normalized.Row(f))
		if len(frames[f]) == 0 {
			panic("decoder: beam emptied mid-query — invariant violated")
		}
	}

	return retrace(frames), nil
}

// normalizeEnergy multiplies the whole spectrogram by
// NumFrames/totalEnergy so the average per-frame energy is 1, balancing
// the energy reward against the pitch/tempo penalties (spec.md §4.C). A
// zero-energy spectrogram yields nil (NoSignal).
func normalizeEnergy(coarse postprocess.Coarse) *postprocess.Coarse {
	total := floats.Sum(coarse.Data)
	if total <= 0 {
		return nil
	}
	scale := float64(coarse.NumFrames) / total
	out := postprocess.Coarse{NumFrames: coarse.NumFrames, MidiNum: coarse.MidiNum, Data: make([]float64, len(coarse.Data))}
	for i, v := range coarse.Data {
		out.Data[i] = v * scale
	}
	return &out
}

// initFrame creates frame 0's proposal set: one proposal per MIDI index.
func initFrame(energies []float64) []Proposal {
	out := make([]Proposal, len(energies))
	for q, e := range energies {
		out[q] = Proposal{PrevID: 0, Pitch: q, Score: e, Duration: 1, PitchChanged: true}
	}
	return out
}

// stepFrame runs draft -> score -> dedup -> prune for one frame.
func (d *Decoder) stepFrame(memo *tempoMemo, prev []Proposal, energies []float64) []Proposal {
	active := activePitches(energies)

	// Draft: for each surviving previous proposal, one new proposal per
	// pitch in active ∪ {p.Pitch}.
	var drafted []Proposal
	for prevID, p := range prev {
		candidates := candidatePitches(active, p.Pitch)
		for _, q := range candidates {
			e := energies[q]
			np := Proposal{PrevID: prevID, Pitch: q, Score: p.Score + e}
			if q != p.Pitch {
				interval := q - p.Pitch
				np.Score += pitchScore(d.cfg, interval) + memo.tempoScore(d.cfg, p.Duration)
				np.Duration = 1
				np.PitchChanged = true
			} else {
				np.Duration = p.Duration + 1
				np.PitchChanged = false
			}
			drafted = append(drafted, np)
		}
	}

	// Dedup: among PitchChanged proposals, keep only the best-scoring per
	// target pitch. Proposals with PitchChanged=false are always kept.
	bestChanged := make(map[int]Proposal)
	var kept []Proposal
	for _, np := range drafted {
		if !np.PitchChanged {
			kept = append(kept, np)
			continue
		}
		if best, ok := bestChanged[np.Pitch]; !ok || np.Score > best.Score {
			bestChanged[np.Pitch] = np
		}
	}
	for _, np := range bestChanged {
		kept = append(kept, np)
	}

	// Prune: top BEAM_WIDTH by score.
	sort.Slice(kept, func(a, b int) bool { return kept[a].Score > kept[b].Score })
	if len(kept) > d.cfg.BeamWidth {
		kept = kept[:d.cfg.BeamWidth]
	}
	return kept
}

// activePitches returns all MIDI indices with nonzero energy.
func activePitches(energies []float64) []int {
	var out []int
	for q, e := range energies {
		if e != 0 {
			out = append(out, q)
		}
	}
	return out
}

// candidatePitches unions active with {currentPitch}, without duplicates.
func candidatePitches(active []int, current int) []int {
	seen := false
	for _, q := range active {
		if q == current {
			seen = true
			break
		}
	}
	if seen {
		return active
	}
	return append(append([]int{}, active...), current)
}

// retrace walks back-pointers from the highest-scoring proposal in the
// final frame to frame 0, recovering the decoded contour. Always succeeds
// by invariant (iv): the back-pointer chain has no gaps.
func retrace(frames [][]Proposal) Contour {
	last := frames[len(frames)-1]
	bestID := 0
	for i, p := range last {
		if p.Score > last[bestID].Score {
			bestID = i
		}
	}

	contour := make(Contour, len(frames))
	id := bestID
	for f := len(frames) - 1; f >= 0; f-- {
		p := frames[f][id]
		contour[f] = p.Pitch
		id = p.PrevID
	}
	return contour
}
