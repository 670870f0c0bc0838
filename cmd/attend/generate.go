package main

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"qrattend/internal/qrgen"
	"qrattend/internal/utils"
)

func generateCommand(e *env) *cobra.Command {
	var outDir string
	var size int
	cmd := &cobra.Command{
		Use:   "generate <id> <name> [section]",
		Short: "Write a QR code PNG for a student",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			section := e.app.Coordinator.ActiveSection()
			if len(args) == 3 {
				section = args[2]
			}
			png, name, err := qrgen.Generate(args[0], args[1], section, size)
			if err != nil {
				return err
			}
			if err := utils.EnsureDir(outDir); err != nil {
				return err
			}
			path := filepath.Join(outDir, name)
			if err := os.WriteFile(path, png, 0o644); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().IntVar(&size, "size", qrgen.DefaultSize, "image size in pixels")
	return cmd
}

func sectionCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "section",
		Short: "Show the active section and the configured sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			active := e.app.Coordinator.ActiveSection()
			for _, s := range e.cfg.Section.List {
				mark := " "
				if s == active {
					mark = "*"
				}
				printf(w, "%s %s\n", mark, s)
			}
			if !slices.Contains(e.cfg.Section.List, active) {
				printf(w, "* %s\n", active)
			}
			return nil
		},
	}
}
