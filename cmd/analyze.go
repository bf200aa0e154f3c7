package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trust-router/internal/pipeline"
)

var (
	analyzeFile        string
	analyzeConcurrency int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze document sections from a JSON file or stdin",
	Long:  "Reads one or more JSON requests (concatenated objects or JSON Lines) and writes one JSON result per line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		in := io.Reader(os.Stdin)
		if analyzeFile != "" && analyzeFile != "-" {
			f, err := os.Open(analyzeFile)
			if err != nil {
				return eris.Wrap(err, "analyze: open input")
			}
			defer f.Close() //nolint:errcheck
			in = f
		}

		reqs, err := readRequests(in)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		return runAnalyses(ctx, env.Pipeline, reqs, analyzeConcurrency, cmd.OutOrStdout())
	},
}

// readRequests decodes a stream of JSON request objects.
func readRequests(r io.Reader) ([]pipeline.Request, error) {
	dec := json.NewDecoder(r)
	var reqs []pipeline.Request
	for {
		var req pipeline.Request
		err := dec.Decode(&req)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "analyze: decode request %d", len(reqs)+1)
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, eris.New("analyze: no requests in input")
	}
	return reqs, nil
}

type analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// analysisLine is one output record. Exactly one of Result and Error is set.
type analysisLine struct {
	InputRef string           `json:"input_ref,omitempty"`
	Result   *pipeline.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// runAnalyses processes reqs with bounded concurrency. Per-request failures
// are written as error lines; the run fails only if every request failed.
func runAnalyses(ctx context.Context, a analyzer, reqs []pipeline.Request, concurrency int, out io.Writer) error {
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu     sync.Mutex
		failed int
	)
	enc := json.NewEncoder(out)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, req := range reqs {
		g.Go(func() error {
			line := analysisLine{InputRef: req.InputRef}
			res, err := a.Analyze(gctx, req)
			if err != nil {
				zap.L().Error("analysis failed", zap.String("input_ref", req.InputRef), zap.Error(err))
				line.Error = err.Error()
			} else {
				line.Result = res
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
			}
			return enc.Encode(line)
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "analyze: write result")
	}

	zap.L().Info("analyze complete", zap.Int("total", len(reqs)), zap.Int("failed", failed))
	if failed == len(reqs) {
		return eris.Errorf("analyze: all %d requests failed", failed)
	}
	return nil
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "JSON request file (default stdin)")
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 4, "requests analyzed in parallel")
	rootCmd.AddCommand(analyzeCmd)
}
