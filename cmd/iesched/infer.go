package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"sync"

	iesched "github.com/example/go-iesched"
	"github.com/example/go-iesched/internal/imageproc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newInferCmd() *cobra.Command {
	var block bool

	cmd := &cobra.Command{
		Use:   "infer <image>...",
		Short: "Classify images through the request pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}

			return withSession(s, func(s *iesched.Session) error {
				return runInfer(cmd.Context(), s, args, block, os.Stdout)
			})
		},
	}

	cmd.Flags().BoolVar(&block, "block", false, "Run each image synchronously instead of through the async pool")

	return cmd
}

// prediction is the top scoring class of one image.
type prediction struct {
	Ticket uint64
	Path   string
	Class  int
	Score  float32
	Err    error
}

// decodeImages loads every path concurrently, preserving argument order.
func decodeImages(ctx context.Context, paths []string) ([]iesched.Input, error) {
	inputs := make([]iesched.Input, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := imageproc.Load(path)
			if err != nil {
				return err
			}
			inputs[i] = iesched.SingleImage(img)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return inputs, nil
}

func runInfer(ctx context.Context, s *iesched.Session, paths []string, block bool, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	inputs, err := decodeImages(ctx, paths)
	if err != nil {
		return err
	}

	var preds []prediction
	if block {
		preds = inferBlocking(ctx, s, paths, inputs)
	} else {
		preds, err = inferAsync(s, paths, inputs)
		if err != nil {
			return err
		}
	}

	var failed []error
	for _, p := range preds {
		if p.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", p.Path, p.Err))
			fmt.Fprintf(w, "%-6d  %s  error: %v\n", p.Ticket, p.Path, p.Err)
			continue
		}
		fmt.Fprintf(w, "%-6d  %s  class=%d  score=%.4f\n", p.Ticket, p.Path, p.Class, p.Score)
	}

	return errors.Join(failed...)
}

func inferBlocking(ctx context.Context, s *iesched.Session, paths []string, inputs []iesched.Input) []prediction {
	preds := make([]prediction, len(inputs))
	for i, in := range inputs {
		res, err := s.BlockInfer(ctx, in)
		preds[i] = score(s.Descriptor(), res, err)
		preds[i].Ticket = uint64(i)
		preds[i].Path = paths[i]
	}

	return preds
}

func inferAsync(s *iesched.Session, paths []string, inputs []iesched.Input) ([]prediction, error) {
	var (
		mu      sync.Mutex
		results = make(map[uint64]prediction, len(inputs))
		names   = make(map[uint64]string, len(inputs))
	)

	desc := s.Descriptor()
	s.SetCallback(func(ticket uint64, res iesched.Result, err error) {
		p := score(desc, res, err)
		p.Ticket = ticket
		mu.Lock()
		results[ticket] = p
		mu.Unlock()
	})
	defer s.SetCallback(nil)

	for i, in := range inputs {
		ticket, err := s.AsyncInfer(in)
		if err != nil {
			s.WaitForAllCompletion()
			return nil, fmt.Errorf("submit %s: %w", paths[i], err)
		}
		mu.Lock()
		names[ticket] = paths[i]
		mu.Unlock()
	}

	s.WaitForAllCompletion()

	mu.Lock()
	defer mu.Unlock()

	preds := make([]prediction, 0, len(results))
	for ticket, p := range results {
		p.Path = names[ticket]
		preds = append(preds, p)
	}
	slices.SortFunc(preds, func(a, b prediction) int {
		switch {
		case a.Ticket < b.Ticket:
			return -1
		case a.Ticket > b.Ticket:
			return 1
		}
		return 0
	})

	return preds, nil
}

// score picks the arg max of the first declared output.
func score(desc *iesched.Descriptor, res iesched.Result, err error) prediction {
	if err != nil {
		return prediction{Err: err}
	}
	if desc == nil || len(desc.Outputs) == 0 {
		return prediction{Err: iesched.ErrNoModel}
	}

	out, ok := res.Output(desc.Outputs[0].Name)
	if !ok {
		return prediction{Err: fmt.Errorf("output %q missing", desc.Outputs[0].Name)}
	}
	data, err := out.Float32s()
	if err != nil {
		return prediction{Err: err}
	}
	if len(data) == 0 {
		return prediction{Err: errors.New("empty output")}
	}

	best := 0
	for i, v := range data {
		if v > data[best] {
			best = i
		}
	}

	return prediction{Class: best, Score: data[best]}
}
