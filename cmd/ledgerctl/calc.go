package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/starboard-tutoring/pointsledger/internal/application/query"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
)

func newCalcCmd(c *cli) *cobra.Command {
	var (
		points  int
		kind    string
		offense int
	)

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Preview a penalty deduction without touching any student",
		Long: `Compute the deduction for a penalty kind at a given balance and offense
number using the active rules. Without --type every penalty kind is listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h := query.NewPreviewPenaltyHandler(c.ledger())

			kinds := ledger.PenaltyTypes()
			if kind != "" {
				kinds = []ledger.PenaltyType{ledger.PenaltyType(kind)}
			}

			previews := make([]*query.PenaltyPreviewDTO, 0, len(kinds))
			for _, t := range kinds {
				p, err := h.Handle(cmd.Context(), query.PreviewPenaltyQuery{
					CurrentPoints: points,
					Type:          t,
					OffenseCount:  offense,
				})
				if err != nil {
					return err
				}
				previews = append(previews, p)
			}

			return c.print(cmd.OutOrStdout(), previews, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tOFFENSE\tDEDUCTION\tBALANCE\tREASON")
				for _, p := range previews {
					fmt.Fprintf(tw, "%s\t%d\t-%d\t%d\t%s\n", p.Type, p.OffenseCount, p.Deduction, p.NewBalance, p.Reason)
				}
				_ = tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&points, "points", 0, "Current balance")
	cmd.Flags().StringVar(&kind, "type", "", "Penalty kind (default: all kinds)")
	cmd.Flags().IntVar(&offense, "offense", 1, "Offense number, 1 for a first offense")
	_ = cmd.MarkFlagRequired("points")
	return cmd
}
