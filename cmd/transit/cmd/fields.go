package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/templui/transit/internal/app"
	"github.com/templui/transit/internal/attachment"
)

func FieldsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "Check the attachments file and list the configured fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			named, err := app.LoadFields(opts.cfg)
			if err != nil {
				return err
			}
			// Building resolves every transform and transporter, so
			// configuration errors show up here.
			fields, err := attachment.BuildAll(cmd.Context(), named, app.Deps(opts.cfg))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range fields {
				c := f.Config
				fmt.Fprintf(out, "%s\n", f.Name)
				fmt.Fprintf(out, "  columns:    %s\n", strings.Join(f.FileColumns(), ", "))
				fmt.Fprintf(out, "  finalDir:   %s\n", c.FinalDir)
				fmt.Fprintf(out, "  transforms: %d\n", len(c.Transforms))
				fmt.Fprintf(out, "  transports: %d\n", len(c.Transport))
			}
			return nil
		},
	}
}
