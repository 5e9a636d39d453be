// Package retrieval implements the two-phase match against a preloaded
// index of reference tune contours: a trigram-overlap heuristic followed by
// a bounded, memory-efficient Needleman-Wunsch refinement over the
// surviving candidates, computed in parallel across a worker pool.
package retrieval

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/austinkregel/tunescribe/internal/config"
	"github.com/austinkregel/tunescribe/internal/contour"
)

// ErrIndexInvalid is the sentinel wrapped by every index load/validation
// failure. A partially corrupt index rejects the whole load (spec.md §7).
var ErrIndexInvalid = fmt.Errorf("retrieval: invalid index")

// Match is one ranked result.
type Match struct {
	SettingID string
	Score     float64
}

// Index is the immutable, process-wide, read-only-after-load reference
// contour set plus its derived trigram fingerprints.
type Index struct {
	cfg       config.Pipeline
	contours  map[string][]int
	trigrams  map[string]map[contour.Trigram]struct{}
	settingID []string // stable iteration order, ascending
}

// rawIndexDoc is the tolerant on-disk shape: each setting maps to either a
// query string or an integer-pitch array. Optional tunes/aliases fields are
// accepted as opaque raw JSON; they are neither interpreted nor kept in the
// loaded Index.
type rawIndexDoc struct {
	Contours json.RawMessage `json:"contours"`
	Tunes    json.RawMessage `json:"tunes,omitempty"`
	Aliases  json.RawMessage `json:"aliases,omitempty"`
}

// LoadIndexFile reads and validates an index document from disk, per
// spec.md §6's "Index file" contract. The richer integer-pitch-list form
// and the compact query-string form are both accepted.
func LoadIndexFile(cfg config.Pipeline, path string, readFile func(string) ([]byte, error)) (*Index, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIndexInvalid, path, err)
	}
	return LoadIndexBytes(cfg, data)
}

// LoadIndexBytes parses and validates an index document already in memory.
func LoadIndexBytes(cfg config.Pipeline, data []byte) (*Index, error) {
	var doc rawIndexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrIndexInvalid, err)
	}
	if len(doc.Contours) == 0 {
		return nil, fmt.Errorf("%w: missing or empty \"contours\"", ErrIndexInvalid)
	}

	// contours may be string or []int per setting; decode into a raw map
	// of json.RawMessage first, then dispatch per-value.
	var rawEntries map[string]json.RawMessage
	if err := json.Unmarshal(doc.Contours, &rawEntries); err != nil {
		return nil, fmt.Errorf("%w: \"contours\" must be an object: %v", ErrIndexInvalid, err)
	}
	if len(rawEntries) == 0 {
		return nil, fmt.Errorf("%w: \"contours\" is empty", ErrIndexInvalid)
	}

	contours := make(map[string][]int, len(rawEntries))
	for id, raw := range rawEntries {
		pitches, err := decodeContourEntry(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: setting %q: %v", ErrIndexInvalid, id, err)
		}
		if len(pitches) == 0 {
			return nil, fmt.Errorf("%w: setting %q has an empty contour", ErrIndexInvalid, id)
		}
		contours[id] = pitches
	}

	return newIndex(cfg, contours), nil
}

// decodeContourEntry accepts either a query string or an integer array.
func decodeContourEntry(cfg config.Pipeline, raw json.RawMessage) ([]int, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		pitches := make([]int, len(asString))
		for i := 0; i < len(asString); i++ {
			midi, err := contour.MidiFromSymbol(cfg, asString[i])
			if err != nil {
				return nil, err
			}
			pitches[i] = midi
		}
		return pitches, nil
	}

	var asInts []int
	if err := json.Unmarshal(raw, &asInts); err == nil {
		return asInts, nil
	}

	return nil, fmt.Errorf("contour entry is neither a string nor an integer array")
}

// newIndex builds the Index and its derived trigram fingerprints.
func newIndex(cfg config.Pipeline, contours map[string][]int) *Index {
	ids := make([]string, 0, len(contours))
	for id := range contours {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	trigrams := make(map[string]map[contour.Trigram]struct{}, len(contours))
	for id, pitches := range contours {
		trigrams[id] = contour.Trigrams(pitches)
	}

	return &Index{cfg: cfg, contours: contours, trigrams: trigrams, settingID: ids}
}

// Len returns the number of indexed settings.
func (idx *Index) Len() int { return len(idx.settingID) }

// Engine runs queries against a loaded Index.
type Engine struct {
	cfg   config.Pipeline
	index *Index
}

// NewEngine binds an Engine to cfg and a preloaded Index.
func NewEngine(cfg config.Pipeline, index *Index) *Engine {
	return &Engine{cfg: cfg, index: index}
}

// heuristicResult is an intermediate candidate before alignment.
type heuristicResult struct {
	id    string
	score int
}

// Run executes the two-phase match: trigram-overlap heuristic down to
// NWCandidateNum candidates, then bounded Needleman-Wunsch alignment over
// those, returning up to TopResults matches sorted by score descending,
// ties broken by ascending setting id. An empty query contour yields an
// empty list (NoSignal, not an error — spec.md §4.E/§7).
func (e *Engine) Run(query []int) []Match {
	if len(query) == 0 {
		return nil
	}

	queryTrigrams := contour.Trigrams(query)

	candidates := make([]heuristicResult, 0, e.index.Len())
	for _, id := range e.index.settingID {
		score := contour.Overlap(queryTrigrams, e.index.trigrams[id])
		candidates = append(candidates, heuristicResult{id: id, score: score})
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		return candidates[a].id < candidates[b].id
	})

	n := e.cfg.NWCandidateNum
	if n > len(candidates) {
		n = len(candidates)
	}
	candidates = candidates[:n]

	matches := e.alignCandidates(query, candidates)

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].SettingID < matches[b].SettingID
	})

	top := e.cfg.TopResults
	if top > len(matches) {
		top = len(matches)
	}
	return matches[:top]
}

// alignCandidates computes the Needleman-Wunsch alignment score for each
// candidate in parallel, across a bounded worker pool modeled on the
// teacher's job-channel pattern (internal/analysis.Worker): each worker
// writes into its own index of a preallocated results slice, so the
// reduction is a simple collection with no locking on the hot path.
func (e *Engine) alignCandidates(query []int, candidates []heuristicResult) []Match {
	results := make([]Match, len(candidates))

	type job struct {
		pos int
		id  string
	}
	jobs := make(chan job, len(candidates))
	for i, c := range candidates {
		jobs <- job{pos: i, id: c.id}
	}
	close(jobs)

	workers := runtime.NumCPU()
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				ref := e.index.contours[j.id]
				score := NeedlemanWunsch(e.cfg, query, ref)
				results[j.pos] = Match{SettingID: j.id, Score: score}
			}
		}()
	}
	wg.Wait()

	return results
}
