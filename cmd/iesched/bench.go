package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	iesched "github.com/example/go-iesched"
	"github.com/example/go-iesched/internal/bench"
	"github.com/example/go-iesched/internal/imageproc"
	"github.com/example/go-iesched/internal/tensor"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	modeBlock = "block"
	modeAsync = "async"
)

func newBenchCmd() *cobra.Command {
	var (
		imagePath string
		runs      int
		workers   int
		perSecond float64
		format    string
		threshold time.Duration
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark blocking and pooled inference latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return errors.New("--runs must be at least 1")
			}
			if workers < 1 {
				return errors.New("--submitters must be at least 1")
			}
			if format != "table" && format != "json" {
				return errors.New("--format must be 'table' or 'json'")
			}
			if perSecond < 0 {
				return errors.New("--rate must not be negative")
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}

			return withSession(s, func(s *iesched.Session) error {
				in, err := benchInput(s.Descriptor(), imagePath)
				if err != nil {
					return err
				}

				results, summaries, err := runBench(cmd.Context(), s, in, benchOptions{
					Runs:       runs,
					Submitters: workers,
					Rate:       perSecond,
				})
				if err != nil {
					return err
				}

				switch format {
				case "json":
					bench.FormatJSON(results, summaries, os.Stdout)
				default:
					bench.FormatTable(results, summaries, os.Stdout)
				}

				return bench.CheckLatencyThreshold(summaries[0].Stats.Mean, threshold)
			})
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Image fed to every run (default: synthetic input)")
	cmd.Flags().IntVar(&runs, "runs", 20, "Number of inferences per pass")
	cmd.Flags().IntVar(&workers, "submitters", 4, "Concurrent submitters in the async pass")
	cmd.Flags().Float64Var(&perSecond, "rate", 0, "Async submissions per second across all submitters (0 = unlimited)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().DurationVar(&threshold, "latency-threshold", 0, "Exit non-zero if mean blocking latency exceeds this value (0 = disabled)")

	return cmd
}

type benchOptions struct {
	Runs       int
	Submitters int
	Rate       float64 // submissions per second, 0 = unlimited
}

// benchInput decodes imagePath or, without one, synthesizes an input that
// matches every declared tensor.
func benchInput(desc *iesched.Descriptor, imagePath string) (iesched.Input, error) {
	if imagePath != "" {
		img, err := imageproc.Load(imagePath)
		if err != nil {
			return iesched.Input{}, err
		}
		return iesched.SingleImage(img), nil
	}
	if desc == nil {
		return iesched.Input{}, iesched.ErrNoModel
	}

	entries := make([]iesched.Entry, 0, len(desc.Inputs))
	for _, slot := range desc.Inputs {
		if slot.Kind == iesched.KindImage && len(slot.Shape) == 4 {
			entries = append(entries, iesched.ImageEntry(slot.Name, syntheticImage(int(slot.Shape[3]), int(slot.Shape[2]))))
			continue
		}
		t, err := tensor.Zeros(string(slot.DType), slot.Shape)
		if err != nil {
			return iesched.Input{}, fmt.Errorf("input %q: %w", slot.Name, err)
		}
		entries = append(entries, iesched.RawEntry(slot.Name, t))
	}

	return iesched.NamedInputs(entries...), nil
}

// syntheticImage is a horizontal gradient.
func syntheticImage(w, h int) image.Image {
	w, h = max(w, 1), max(h, 1)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(x * 255 / w)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func runBench(ctx context.Context, s *iesched.Session, in iesched.Input, opts benchOptions) ([]bench.RunResult, []bench.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	blockRuns, blockWall, err := benchBlocking(ctx, s, in, opts.Runs)
	if err != nil {
		return nil, nil, err
	}

	asyncRuns, asyncWall, err := benchAsync(ctx, s, in, opts)
	if err != nil {
		return nil, nil, err
	}

	runs := append(blockRuns, asyncRuns...)
	summaries := []bench.Summary{
		bench.Summarize(modeBlock, runs, blockWall),
		bench.Summarize(modeAsync, runs, asyncWall),
	}

	return runs, summaries, nil
}

func benchBlocking(ctx context.Context, s *iesched.Session, in iesched.Input, runs int) ([]bench.RunResult, time.Duration, error) {
	results := make([]bench.RunResult, 0, runs)

	began := time.Now()
	for i := range runs {
		start := time.Now()
		if _, err := s.BlockInfer(ctx, in); err != nil {
			return nil, 0, fmt.Errorf("blocking run %d failed: %w", i+1, err)
		}
		results = append(results, bench.RunResult{
			Index:    i,
			Mode:     modeBlock,
			Cold:     i == 0,
			Duration: time.Since(start),
		})
	}

	return results, time.Since(began), nil
}

// benchAsync spreads opts.Runs submissions over opts.Submitters goroutines.
// Latency is measured from just before submission to the callback.
func benchAsync(ctx context.Context, s *iesched.Session, in iesched.Input, opts benchOptions) ([]bench.RunResult, time.Duration, error) {
	var (
		mu       sync.Mutex
		started  = make(map[uint64]time.Time, opts.Runs)
		finished = make(map[uint64]time.Time, opts.Runs)
		failures []error
	)

	s.SetCallback(func(ticket uint64, _ iesched.Result, err error) {
		now := time.Now()
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, fmt.Errorf("ticket %d: %w", ticket, err))
			return
		}
		finished[ticket] = now
	})
	defer s.SetCallback(nil)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	var next atomic.Int64
	began := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for range opts.Submitters {
		g.Go(func() error {
			for next.Add(1) <= int64(opts.Runs) {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
				start := time.Now()
				ticket, err := s.AsyncInfer(in)
				if err != nil {
					return err
				}
				mu.Lock()
				started[ticket] = start
				mu.Unlock()
			}
			return nil
		})
	}

	submitErr := g.Wait()
	s.WaitForAllCompletion()
	wall := time.Since(began)

	mu.Lock()
	defer mu.Unlock()

	if err := errors.Join(append([]error{submitErr}, failures...)...); err != nil {
		return nil, 0, fmt.Errorf("async pass failed: %w", err)
	}

	tickets := make([]uint64, 0, len(started))
	for t := range started {
		tickets = append(tickets, t)
	}
	slices.Sort(tickets)

	results := make([]bench.RunResult, 0, len(tickets))
	for i, t := range tickets {
		results = append(results, bench.RunResult{
			Index:    i,
			Mode:     modeAsync,
			Cold:     i == 0,
			Duration: finished[t].Sub(started[t]),
		})
	}

	return results, wall, nil
}
