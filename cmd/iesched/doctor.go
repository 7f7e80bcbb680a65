package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	iesched "github.com/example/go-iesched"
	"github.com/example/go-iesched/internal/config"
	"github.com/example/go-iesched/internal/doctor"
	"github.com/example/go-iesched/internal/model"
	"github.com/example/go-iesched/internal/onnx"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			return runDoctor(cmd.Context(), cfg, skipVerify, os.Stdout, os.Stderr)
		},
	}

	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip the zero-input smoke inference")

	return cmd
}

func doctorConfig(cfg config.Config) doctor.Config {
	topology, weights, err := modelPaths(cfg.Paths)
	if err != nil {
		topology, weights = "", ""
	}

	return doctor.Config{
		Runtime: func() (string, string, error) {
			info, err := onnx.DetectRuntime(cfg.Engine)
			if err != nil {
				return "", "", err
			}
			ver := info.Version
			if ver == "unknown" {
				ver = ""
			}
			return info.LibraryPath, ver, nil
		},
		MinAPIVersion: cfg.Engine.ORTAPIVersion,
		TopologyPath:  topology,
		WeightsPath:   weights,
		ValidateTopology: func(path string) error {
			_, err := onnx.ReadTopology(path)
			return err
		},
		Device:           cfg.Engine.Device,
		SupportedDevices: []string{config.DeviceCPU},
		NumRequests:      cfg.Engine.NumRequests,
	}
}

func runDoctor(ctx context.Context, cfg config.Config, skipVerify bool, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dcfg := doctorConfig(cfg)
	result := doctor.Run(dcfg, stdout)

	switch {
	case skipVerify:
		_, _ = fmt.Fprintf(stdout, "%s model verify: skipped\n", doctor.PassMark)
	case result.Failed():
		_, _ = fmt.Fprintf(stdout, "%s model verify: skipped (earlier checks failed)\n", doctor.PassMark)
	default:
		verifyErr := verifyModel(ctx, cfg, dcfg, stdout, stderr)
		if verifyErr != nil {
			result.AddFailure(fmt.Sprintf("model verify: %v", verifyErr))
			_, _ = fmt.Fprintf(stdout, "%s model verify: %v\n", doctor.FailMark, verifyErr)
		} else {
			_, _ = fmt.Fprintf(stdout, "%s model verify: ok\n", doctor.PassMark)
		}
	}

	if result.Failed() {
		for _, f := range result.Failures() {
			_, _ = fmt.Fprintf(stderr, "FAIL: %s\n", f)
		}

		return errors.New("doctor checks failed")
	}

	_, _ = fmt.Fprintln(stdout, "doctor checks passed")

	return nil
}

func verifyModel(ctx context.Context, cfg config.Config, dcfg doctor.Config, stdout, stderr io.Writer) error {
	eng, err := iesched.NewORTEngine(cfg.Engine, iesched.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	return model.Verify(ctx, eng, model.VerifyOptions{
		TopologyPath: dcfg.TopologyPath,
		WeightsPath:  dcfg.WeightsPath,
		Device:       cfg.Engine.Device,
		Stdout:       stdout,
		Stderr:       stderr,
	})
}
