// Command tunescribe transcribes a folk-tune recording into a symbolic
// pitch contour and, optionally, matches it against a preloaded tune index.
// It mirrors musicd's flag-parsing shape, with one run function per
// subcommand, narrowed to the query pipeline's CLI surface (spec.md §6): no daemon, no IPC socket, no
// OS media-session integration.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/austinkregel/tunescribe/internal/config"
	"github.com/austinkregel/tunescribe/internal/decoder"
	"github.com/austinkregel/tunescribe/internal/pipeline"
	"github.com/austinkregel/tunescribe/internal/retrieval"
	"github.com/austinkregel/tunescribe/internal/wavio"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var err error
	switch sub {
	case "transcribe":
		err = runTranscribe(args)
	case "query":
		err = runQuery(args)
	case "index":
		err = runIndex(args)
	case "-version", "--version":
		fmt.Println(Version)
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "tunescribe:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tunescribe <transcribe|query|index> ...")
	fmt.Fprintln(os.Stderr, "  tunescribe transcribe <wav>")
	fmt.Fprintln(os.Stderr, "  tunescribe query <wav> <index.json>")
	fmt.Fprintln(os.Stderr, "  tunescribe index validate <index.json>")
}

func runTranscribe(args []string) error {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	configPath := fs.String("config", "", "optional pipeline config override (JSON)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tunescribe transcribe <wav>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	query, err := transcribeFile(context.Background(), cfg, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Println(query)
	return nil
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "optional pipeline config override (JSON)")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: tunescribe query <wav> <index.json>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	pcm, sampleRate, err := wavio.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading %s: %w", fs.Arg(0), err)
	}
	if sampleRate != cfg.SampleRate {
		log.Printf("warning: %s sample rate %d does not match pipeline SAMPLE_RATE %d", fs.Arg(0), sampleRate, cfg.SampleRate)
	}

	idx, err := retrieval.LoadIndexFile(cfg, fs.Arg(1), os.ReadFile)
	if err != nil {
		return fmt.Errorf("loading index %s: %w", fs.Arg(1), err)
	}

	pl := pipeline.New(cfg)
	result, err := pl.RunPCM(pcm)
	if err != nil {
		return fmt.Errorf("transcribing %s: %w", fs.Arg(0), err)
	}

	engine := retrieval.NewEngine(cfg, idx)
	matches := engine.Run(result.MIDIContour)

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()
	for _, m := range matches {
		if err := w.Write([]string{m.SettingID, fmt.Sprintf("%.6f", m.Score)}); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	}
	return nil
}

func runIndex(args []string) error {
	if len(args) < 2 || args[0] != "validate" {
		return fmt.Errorf("usage: tunescribe index validate <index.json>")
	}
	cfg := config.Default()
	idx, err := retrieval.LoadIndexFile(cfg, args[1], os.ReadFile)
	if err != nil {
		return err
	}
	fmt.Printf("index %s: %d settings loaded\n", args[1], idx.Len())
	return nil
}

func loadConfig(overridePath string) (config.Pipeline, error) {
	if overridePath == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(overridePath)
}

// transcribeFile reads a WAV file and runs the pipeline through stage D,
// returning the query string. Used by the transcribe subcommand.
func transcribeFile(_ context.Context, cfg config.Pipeline, path string) (string, error) {
	pcm, sampleRate, err := wavio.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if sampleRate != cfg.SampleRate {
		log.Printf("warning: %s sample rate %d does not match pipeline SAMPLE_RATE %d", path, sampleRate, cfg.SampleRate)
	}

	pl := pipeline.New(cfg)
	result, err := pl.RunPCM(pcm)
	if err != nil {
		if err == decoder.ErrNoSignal {
			return "", nil
		}
		return "", err
	}

	return result.QueryString, nil
}
