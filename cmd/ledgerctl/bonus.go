package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/starboard-tutoring/pointsledger/internal/application/command"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
)

func newBonusCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bonus",
		Short: "Award bonuses or run the automatic bonus rules",
	}
	cmd.AddCommand(newBonusAwardCmd(c), newBonusCheckCmd(c))
	return cmd
}

func newBonusAwardCmd(c *cli) *cobra.Command {
	var (
		kind   string
		points int
		actor  string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "award STUDENT_ID",
		Short: "Award a bonus; --points defaults to the configured award for the kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			bc := command.AwardBonusCommand{
				StudentID: args[0],
				Type:      ledger.BonusType(kind),
				AwardedBy: ledger.Actor(actor),
				Reason:    reason,
			}
			if cmd.Flags().Changed("points") {
				bc.Points = &points
			}

			res, err := command.NewAwardBonusHandler(infra.HandlerConfig()).Handle(cmd.Context(), bc)
			if err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), res.Bonus, func(w io.Writer) {
				fmt.Fprintf(w, "%s: +%d points (%s)\n", res.Bonus.ID, res.Bonus.PointsAwarded, res.Bonus.Reason)
				fmt.Fprintf(w, "balance: %d\n", res.Balance)
			})
		},
	}

	cmd.Flags().StringVar(&kind, "type", "", "Bonus kind, e.g. perfect-session")
	cmd.Flags().IntVar(&points, "points", 0, "Points to award")
	cmd.Flags().StringVar(&actor, "by", string(ledger.ActorTutor), "Who awards it (tutor or system)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason (default: the kind's label)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newBonusCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check STUDENT_ID",
		Short: "Run the automatic bonus rules for one student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			res, err := command.NewRunBonusChecksHandler(infra.HandlerConfig()).Handle(cmd.Context(), command.RunBonusChecksCommand{
				StudentID: args[0],
			})
			if err != nil {
				return err
			}

			awarded := res.Awarded
			if awarded == nil {
				awarded = []ledger.BonusRecord{}
			}
			return c.print(cmd.OutOrStdout(), awarded, func(w io.Writer) {
				switch {
				case res.Skipped:
					fmt.Fprintln(w, "automatic bonuses are disabled for this student")
				case len(awarded) == 0:
					fmt.Fprintln(w, "no automatic bonus applies")
				}
				for _, b := range awarded {
					fmt.Fprintf(w, "%s: +%d points (%s)\n", b.Type, b.PointsAwarded, b.Reason)
				}
				fmt.Fprintf(w, "balance: %d\n", res.Balance)
			})
		},
	}
}
