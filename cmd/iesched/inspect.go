package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	iesched "github.com/example/go-iesched"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load the model and print its input and output tensors",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if format != "table" && format != "json" {
				return errors.New("--format must be 'table' or 'json'")
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}

			return withSession(s, func(s *iesched.Session) error {
				return writeDescriptor(s.Descriptor(), format, os.Stdout)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")

	return cmd
}

func writeDescriptor(desc *iesched.Descriptor, format string, w io.Writer) error {
	if desc == nil {
		return iesched.ErrNoModel
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	}

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "model: %s  device: %s  requests: %d\n", desc.Name, desc.Device, desc.PoolSize)
	fmt.Fprintf(sb, "%-6s  %-20s  %-8s  %-6s  %s\n", "Port", "Name", "DType", "Kind", "Shape")
	fmt.Fprintln(sb, strings.Repeat("-", 60))
	for _, in := range desc.Inputs {
		fmt.Fprintf(sb, "%-6s  %-20s  %-8s  %-6s  %v\n", "input", in.Name, in.DType, in.Kind, in.Shape)
	}
	for _, out := range desc.Outputs {
		fmt.Fprintf(sb, "%-6s  %-20s  %-8s  %-6s  %v\n", "output", out.Name, out.DType, "", out.Shape)
	}

	_, err := fmt.Fprint(w, sb.String())
	return err
}
