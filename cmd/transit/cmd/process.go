package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/templui/transit/internal/app"
	"github.com/templui/transit/internal/transit"
)

func ProcessCmd(opts *options) *cobra.Command {
	var model, id, stdinName string

	cmd := &cobra.Command{
		Use:   "process field=source [field=source...]",
		Short: "Run attachment pipelines and save the record",
		Long: `Each source is a local path, an http(s) URL, or "-" to read stdin.
Without --id a new record is created; with --id the record is updated and
replaced files are cleaned up after the save.`,
		Example: `  transit process --model post image=./cover.jpg
  transit process --model post --id 3f2c... image=https://example.com/a.png
  cat scan.pdf | transit process --model doc --name scan.pdf file=-`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := parseSources(args, cmd.InOrStdin(), stdinName)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app.App) error {
				res, err := a.AttachmentService.Save(cmd.Context(), model, id, sources)
				if err != nil {
					var te *transit.Error
					if errors.As(err, &te) {
						return fmt.Errorf("%s: %s", te.Field, te.Message())
					}
					return err
				}

				for field, ferr := range res.FieldErrors {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", field, ferr)
				}
				return writeJSON(cmd.OutOrStdout(), res.Record)
			})
		},
	}

	cmd.Flags().StringVar(&model, "model", "record", "model name stored with the record")
	cmd.Flags().StringVar(&id, "id", "", "update this record instead of creating one")
	cmd.Flags().StringVar(&stdinName, "name", "", "file name for a source read from stdin")

	return cmd
}

var errSourceNotFound = errors.New("local file not found")

// parseSources turns field=source arguments into pipeline sources. "-" reads
// stdin; an empty source marks the field empty. Anything that is not a URL
// must name an existing local file.
func parseSources(args []string, stdin io.Reader, stdinName string) (map[string]transit.Source, error) {
	sources := make(map[string]transit.Source, len(args))
	usedStdin := false

	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid argument %q, want field=source", arg)
		}
		if _, dup := sources[field]; dup {
			return nil, fmt.Errorf("field %s given twice", field)
		}

		if value == "-" {
			if usedStdin {
				return nil, fmt.Errorf("only one field can read stdin")
			}
			usedStdin = true
			sources[field] = transit.Stream{Name: stdinName, Reader: stdin}
			continue
		}

		if value == "" || strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
			sources[field] = transit.SourceFrom(value, nil)
			continue
		}

		info, err := os.Stat(value)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w: %s", field, errSourceNotFound, value)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s: %s is a directory", field, value)
		}
		sources[field] = transit.Local{Path: value}
	}
	return sources, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
