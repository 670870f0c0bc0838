package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"qrattend/internal/models"
	"qrattend/internal/registry"
	"qrattend/internal/scanner"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true}

// collectImages expands directories into their image files, sorted by name.
func collectImages(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, ent := range entries {
			if !ent.IsDir() && imageExts[strings.ToLower(filepath.Ext(ent.Name()))] {
				names = append(names, filepath.Join(p, ent.Name()))
			}
		}
		sort.Strings(names)
		out = append(out, names...)
	}
	return out, nil
}

func uploadCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file|dir>...",
		Short: "Register students from QR code images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := collectImages(args)
			if err != nil {
				return err
			}
			batch := make([]scanner.File, 0, len(paths))
			for _, p := range paths {
				data, err := os.ReadFile(p)
				if err != nil {
					e.log().Warn("unreadable file", "path", p, "error", err)
				}
				batch = append(batch, scanner.File{Name: filepath.Base(p), Data: data})
			}

			w := cmd.OutOrStdout()
			sum, err := e.app.Batch.Process(cmd.Context(), batch, func(cur, total int) {
				printf(cmd.ErrOrStderr(), "\rProcessing %d/%d", cur, total)
				if cur == total {
					printf(cmd.ErrOrStderr(), "\n")
				}
			})
			for i, r := range sum.Results {
				mark := "ok  "
				if !r.Success {
					mark = "FAIL"
				}
				printf(w, "[%d/%d] %s %s: %s\n", i+1, len(batch), mark, r.FileName, r.Message)
			}
			if sum.Succeeded > 0 {
				printf(w, "Successfully registered %d QR code%s\n", sum.Succeeded, plural(sum.Succeeded))
			}
			if sum.Failed > 0 {
				printf(w, "Failed to process %d file%s\n", sum.Failed, plural(sum.Failed))
			}
			return err
		},
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func registerCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "register <id> <name> [section]",
		Short: "Register a student manually",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			section := e.app.Coordinator.ActiveSection()
			if len(args) == 3 {
				section = args[2]
			}
			entry, outcome, err := e.app.Registry.Register(cmd.Context(), models.StudentIdentity{ID: args[0], Name: args[1], Section: section})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Registered: %s (%s) [%s]\n", entry.Name, entry.ID, outcome)
			return nil
		},
	}
}

func registryCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "List, edit or remove registered students",
	}

	list := &cobra.Command{
		Use:   "list [query]",
		Short: "List registered students, optionally filtered",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSECTION\tREGISTERED")
			for _, r := range e.app.Registry.List(query) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Section, r.RegisteredAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	var f registry.Fields
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a registered student; --id renames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cur, ok := e.app.Registry.FindByID(args[0])
			if !ok {
				return fmt.Errorf("student %s is not registered", args[0])
			}
			next := registry.Fields{ID: cur.ID, Name: cur.Name, Section: cur.Section}
			if cmd.Flags().Changed("id") {
				next.ID = f.ID
			}
			if cmd.Flags().Changed("name") {
				next.Name = f.Name
			}
			if cmd.Flags().Changed("section") {
				next.Section = f.Section
			}
			entry, err := e.app.Registry.Update(cmd.Context(), args[0], next)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Updated: %s\n", entry.RawPayload)
			return nil
		},
	}
	edit.Flags().StringVar(&f.ID, "id", "", "new student ID")
	edit.Flags().StringVar(&f.Name, "name", "", "new name")
	edit.Flags().StringVar(&f.Section, "section", "", "new section")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Unregister a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Registry.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "QR code unregistered\n")
			return nil
		},
	}

	cmd.AddCommand(list, edit, remove)
	return cmd
}
