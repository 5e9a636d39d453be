// Package pipeline assembles stages A-D of the query pipeline (spectrogram
// build, spectral post-processing, beam decode, contour encode) into a
// single PCM-to-query-string call, the glue spec.md's component table
// implies but does not itself name as a package.
package pipeline

import (
	"fmt"

	"github.com/austinkregel/tunescribe/internal/config"
	"github.com/austinkregel/tunescribe/internal/contour"
	"github.com/austinkregel/tunescribe/internal/decoder"
	"github.com/austinkregel/tunescribe/internal/postprocess"
	"github.com/austinkregel/tunescribe/internal/spectrogram"
)

// Result holds every artifact the pipeline produces for one PCM buffer, so
// a caller can inspect intermediate stages (e.g. for testing or the index
// builder this spec does not cover) without re-running the pipeline.
type Result struct {
	MIDIContour []int  // decoder-axis MIDI indices, one per frame
	QueryString string // run-length/quaver-quantized symbol string
}

// Pipeline runs stages A-D for a fixed configuration. It is safe for
// concurrent use across independent Run calls: every stage either holds no
// mutable state (decoder, contour) or is itself internally synchronized
// (spectrogram.Builder's frame worker pool).
type Pipeline struct {
	cfg     config.Pipeline
	builder *spectrogram.Builder
	decoder *decoder.Decoder
}

// New constructs a Pipeline, precomputing the spectrogram builder's
// resampling table and Blackman window once. A bad configuration (e.g. a
// MIDI bin mapping outside the source DFT range) is a fatal ConfigError at
// construction, never mid-query (spec.md §4.A/§7).
func New(cfg config.Pipeline) *Pipeline {
	builder, err := spectrogram.NewBuilder(cfg)
	if err != nil {
		panic(fmt.Sprintf("pipeline: %v", err))
	}
	return &Pipeline{cfg: cfg, builder: builder, decoder: decoder.New(cfg)}
}

// RunPCM runs the full A->B->C->D chain over a PCM buffer already at
// cfg.SampleRate. Short input is InsufficientSamples (spectrogram.Build);
// all-zero energy is decoder.ErrNoSignal, returned as a value, not a panic.
func (p *Pipeline) RunPCM(pcm []float64) (Result, error) {
	fine, err := p.builder.Build(pcm)
	if err != nil {
		return Result{}, err
	}

	coarse := postprocess.Process(p.cfg, fine)

	midi, err := p.decoder.Decode(coarse)
	if err != nil {
		return Result{}, err
	}

	qs, err := contour.Encode(p.cfg, midi)
	if err != nil {
		return Result{}, err
	}

	return Result{MIDIContour: midi, QueryString: qs}, nil
}
