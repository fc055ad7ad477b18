package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/transit/internal/app"
)

func DeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete id",
		Short: "Delete a record and every file it references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				err := a.AttachmentService.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func ShowCmd(opts *options) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print one record, or every record of a model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				if len(args) == 1 {
					rec, err := a.AttachmentService.Record(args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), rec)
				}

				recs, err := a.AttachmentService.Records(model)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), recs)
			})
		},
	}

	cmd.Flags().StringVar(&model, "model", "record", "model to list when no id is given")
	return cmd
}
