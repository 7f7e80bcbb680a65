// Package doctor provides environment preflight checks for iesched.
package doctor

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// RuntimeFunc locates the inference runtime and reports its library path and
// version.
type RuntimeFunc func() (path, version string, err error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Runtime probes the ONNX Runtime shared library.
	Runtime RuntimeFunc
	// MinAPIVersion is the C API version the runtime must provide. A runtime
	// 1.N serves API versions up to N. Zero skips the check.
	MinAPIVersion uint32
	// TopologyPath and WeightsPath are the model pair to verify on disk.
	TopologyPath string
	WeightsPath  string
	// ValidateTopology parses the topology file. Nil skips the check.
	ValidateTopology func(path string) error
	// Device is the configured target device.
	Device string
	// SupportedDevices lists the devices the engine can compile for.
	SupportedDevices []string
	// NumRequests is the configured request pool size.
	NumRequests int
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- onnx runtime ------------------------------------------------------
	if cfg.Runtime == nil {
		fmt.Fprintf(w, "%s onnx runtime: skipped\n", PassMark)
	} else {
		path, ver, err := cfg.Runtime()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		case cfg.MinAPIVersion > 0 && ver != "":
			if verErr := checkRuntimeVersion(ver, cfg.MinAPIVersion); verErr != nil {
				res.fail(fmt.Sprintf("onnx runtime %s: %v", ver, verErr))
				fmt.Fprintf(w, "%s onnx runtime %s: %v\n", FailMark, ver, verErr)
			} else {
				fmt.Fprintf(w, "%s onnx runtime: %s (%s)\n", PassMark, path, ver)
			}
		default:
			fmt.Fprintf(w, "%s onnx runtime: %s (version unknown)\n", PassMark, path)
		}
	}

	// ---- model files -------------------------------------------------------
	for _, f := range []struct{ label, path string }{
		{"topology", cfg.TopologyPath},
		{"weights", cfg.WeightsPath},
	} {
		if f.path == "" {
			res.fail(fmt.Sprintf("%s file: not configured", f.label))
			fmt.Fprintf(w, "%s %s file: not configured\n", FailMark, f.label)
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			res.fail(fmt.Sprintf("%s file %q: %v", f.label, f.path, err))
			fmt.Fprintf(w, "%s %s file %s: not found\n", FailMark, f.label, f.path)
		} else {
			fmt.Fprintf(w, "%s %s file: %s\n", PassMark, f.label, f.path)
		}
	}

	if cfg.ValidateTopology != nil && cfg.TopologyPath != "" {
		if err := cfg.ValidateTopology(cfg.TopologyPath); err != nil {
			res.fail(fmt.Sprintf("topology: %v", err))
			fmt.Fprintf(w, "%s topology: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s topology: valid\n", PassMark)
		}
	}

	// ---- device and pool ---------------------------------------------------
	if len(cfg.SupportedDevices) > 0 {
		if slices.Contains(cfg.SupportedDevices, strings.ToUpper(cfg.Device)) {
			fmt.Fprintf(w, "%s device: %s\n", PassMark, cfg.Device)
		} else {
			res.fail(fmt.Sprintf("device %q: not supported (have %s)", cfg.Device, strings.Join(cfg.SupportedDevices, ", ")))
			fmt.Fprintf(w, "%s device %s: not supported\n", FailMark, cfg.Device)
		}
	}

	if cfg.NumRequests < 1 {
		res.fail(fmt.Sprintf("request pool: %d slots", cfg.NumRequests))
		fmt.Fprintf(w, "%s request pool: %d slots\n", FailMark, cfg.NumRequests)
	} else {
		fmt.Fprintf(w, "%s request pool: %d slots\n", PassMark, cfg.NumRequests)
	}

	return res
}

// checkRuntimeVersion returns an error if ver (e.g. "1.23.2") cannot serve
// the given C API version.
func checkRuntimeVersion(ver string, apiVersion uint32) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 1 {
		return fmt.Errorf("requires ONNX Runtime 1.x, got %d", major)
	}
	if minor < int(apiVersion) {
		return fmt.Errorf("API version %d requires ONNX Runtime >=1.%d, got 1.%d", apiVersion, apiVersion, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(strings.TrimPrefix(ver, "v"), ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
