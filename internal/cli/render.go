package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gilkh/livret/internal/export"
	"github.com/gilkh/livret/internal/logging"
)

type renderOpts struct {
	assignment string
	student    string
	template   string
	output     string
	backend    string
}

func newRenderCmd() *cobra.Command {
	var opts renderOpts
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one carnet to a PDF file",
		Long: `Render the carnet of one assignment, or of the latest assignment of a template to a student.

The raster back end loads the render page from PUBLIC_BASE_URL, so a server must be running there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.assignment == "" && opts.student == "" {
				return errors.New("one of --assignment or --student is required")
			}
			if opts.assignment != "" && opts.student != "" {
				return errors.New("--assignment and --student are mutually exclusive")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var doc *export.Document
			if opts.assignment != "" {
				doc, err = a.exports.RenderAssignment(ctx, opts.assignment, opts.backend)
			} else {
				doc, err = a.exports.RenderForStudent(ctx, opts.student, opts.template, opts.backend)
			}
			if err != nil {
				return err
			}

			out := opts.output
			if out == "" {
				out = doc.FileName
			}
			if err := os.WriteFile(out, doc.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			return writeRendered(cmd.OutOrStdout(), out, len(doc.Data))
		},
	}

	cmd.Flags().StringVar(&opts.assignment, "assignment", "", "assignment id")
	cmd.Flags().StringVar(&opts.student, "student", "", "student id (with --template)")
	cmd.Flags().StringVar(&opts.template, "template", "", "template id (with --student)")
	cmd.Flags().StringVarP(&opts.output, "out", "o", "", "output file (default: the carnet file name)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "vector or raster (default: RENDER_BACKEND)")
	return cmd
}

type batchOpts struct {
	ids     []string
	file    string
	output  string
	backend string
}

func newBatchCmd() *cobra.Command {
	var opts batchOpts
	cmd := &cobra.Command{
		Use:   "batch [assignment-id...]",
		Short: "Render many carnets into one ZIP archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := append(opts.ids, args...)
			if opts.file != "" {
				fromFile, err := readIDFile(opts.file)
				if err != nil {
					return err
				}
				ids = append(ids, fromFile...)
			}
			if len(ids) == 0 {
				return errors.New("no assignment ids given")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			backend, err := a.batch.Prepare(ctx, opts.backend)
			if err != nil {
				return err
			}

			f, err := os.Create(opts.output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", opts.output, err)
			}
			res, werr := a.batch.Write(ctx, f, ids, backend)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				logging.ErrorWithComponent(logging.ComponentBatch, "Batch failed", "output", opts.output, "error", werr)
				return werr
			}
			return writeBatchResult(cmd.OutOrStdout(), opts.output, res)
		},
	}

	cmd.Flags().StringSliceVar(&opts.ids, "ids", nil, "comma-separated assignment ids")
	cmd.Flags().StringVar(&opts.file, "ids-file", "", "file with one assignment id per line")
	cmd.Flags().StringVarP(&opts.output, "out", "o", "carnets.zip", "output archive")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "vector or raster (default: RENDER_BACKEND)")
	return cmd
}

// readIDFile reads one id per line, skipping blanks and # comments.
func readIDFile(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}
