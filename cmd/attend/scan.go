package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"qrattend/internal/attendance"
	"qrattend/internal/scanner"
	"qrattend/internal/stream"
	"qrattend/internal/utils"
)

func printOutcome(w io.Writer, out attendance.Outcome) {
	if out.SectionSwitched {
		printf(w, "Section switched: %s -> %s\n", out.PreviousSection, out.ActiveSection)
	}
	printf(w, "[%s] %s\n", out.State, out.Message)
	if out.Warning != "" {
		printf(w, "warning: %s\n", out.Warning)
	}
}

// scanErr fails the command for rejected scans only; a repeat scan is
// reported but is not an error at the terminal.
func scanErr(out attendance.Outcome) error {
	if err := out.Err(); err != nil && !utils.IsKind(err, utils.KindDuplicateScan) {
		return err
	}
	return nil
}

func scanCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <text>",
		Short: "Record attendance for a decoded QR payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := e.app.Coordinator.Scan(cmd.Context(), args[0])
			printOutcome(cmd.OutOrStdout(), out)
			return scanErr(out)
		},
	}
}

func scanImageCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "scan-image <file>",
		Short: "Find a QR code in an image and record attendance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res := e.app.Extractor.ScanImage(scanner.File{Name: filepath.Base(args[0]), Data: data})
			if !res.Success {
				printDiagnostics(cmd.OutOrStdout(), res.Diagnostics)
				return res.Err()
			}
			printf(cmd.OutOrStdout(), "decoded (%s): %s\n", res.Method, res.Data)
			out := e.app.Coordinator.Scan(cmd.Context(), res.Data)
			printOutcome(cmd.OutOrStdout(), out)
			return scanErr(out)
		},
	}
}

func printDiagnostics(w io.Writer, d *scanner.Diagnostics) {
	if d == nil {
		return
	}
	printf(w, "file: %s (%d bytes, %s)\n", d.FileName, d.FileSize, d.FileType)
	if d.Dimensions != "" {
		printf(w, "dimensions: %s\n", d.Dimensions)
	}
	for _, a := range d.Attempts {
		printf(w, "  %-18s %v\n", a.Method, a.Success)
	}
}

func listenCommand(e *env) *cobra.Command {
	var framesDir string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Scan continuously from stdin lines or a camera snapshot directory",
		Long: `Reads payloads one per line from stdin, as typed by a keyboard-wedge
hand scanner, or with --frames polls the newest image in a directory.
Repeated payloads within scan.debounce are ignored. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var src interface {
				stream.Source
				Done() <-chan struct{}
			}
			if framesDir != "" {
				frames := &stream.DirFrames{Dir: framesDir, MaxDim: e.cfg.Image.MaxDimension}
				src = stream.NewFrameScanner(frames, e.app.Extractor, e.cfg.Scan.FPS, e.log())
			} else {
				src = stream.NewLineSource(cmd.InOrStdin(), e.log())
			}

			w := cmd.OutOrStdout()
			sess := stream.NewSession(src, e.app.Coordinator, e.cfg.Scan.Debounce,
				func(out attendance.Outcome) { printOutcome(w, out) }, e.log())
			printf(w, "Listening in section %s\n", e.app.Coordinator.ActiveSection())
			if err := sess.Start(cmd.Context()); err != nil {
				return err
			}

			select {
			case <-cmd.Context().Done():
			case <-src.Done():
			}
			if err := sess.Stop(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stop scanning: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&framesDir, "frames", "", "directory to poll for camera snapshots")
	return cmd
}
