package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/starboard-tutoring/pointsledger/internal/application/command"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
)

func newPenaltyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "penalty",
		Short: "Apply or waive penalties",
	}
	cmd.AddCommand(newPenaltyApplyCmd(c), newPenaltyWaiveCmd(c))
	return cmd
}

func newPenaltyApplyCmd(c *cli) *cobra.Command {
	var (
		kind   string
		actor  string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "apply STUDENT_ID",
		Short: "Apply a penalty, escalating by the student's active offenses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			res, err := command.NewApplyPenaltyHandler(infra.HandlerConfig()).Handle(cmd.Context(), command.ApplyPenaltyCommand{
				StudentID: args[0],
				Type:      ledger.PenaltyType(kind),
				AppliedBy: ledger.Actor(actor),
				Reason:    reason,
			})
			if err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), res.Penalty, func(w io.Writer) {
				fmt.Fprintf(w, "%s: -%d points (%s)\n", res.Penalty.ID, res.Penalty.PointsDeducted, res.Penalty.Reason)
				fmt.Fprintf(w, "balance: %d\n", res.Balance)
			})
		},
	}

	cmd.Flags().StringVar(&kind, "type", "", "Penalty kind, e.g. missed-session")
	cmd.Flags().StringVar(&actor, "by", string(ledger.ActorTutor), "Who applies it (tutor or system)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason (default: generated from kind and offense)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newPenaltyWaiveCmd(c *cli) *cobra.Command {
	var (
		by     string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "waive STUDENT_ID PENALTY_ID",
		Short: "Waive a penalty and restore its points",
		Long: `Waive a penalty and restore the deducted points to the student's balance.
Waiving an already waived penalty changes nothing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			res, err := command.NewWaivePenaltyHandler(infra.HandlerConfig()).Handle(cmd.Context(), command.WaivePenaltyCommand{
				StudentID: args[0],
				PenaltyID: args[1],
				WaivedBy:  by,
				Reason:    reason,
			})
			if err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), res.Penalty, func(w io.Writer) {
				if res.AlreadyWaived {
					fmt.Fprintf(w, "%s was already waived by %s\n", res.Penalty.ID, res.Penalty.WaivedBy)
				} else {
					fmt.Fprintf(w, "%s waived: +%d points restored\n", res.Penalty.ID, res.Penalty.PointsDeducted)
				}
				fmt.Fprintf(w, "balance: %d\n", res.Balance)
			})
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Name of the tutor waiving the penalty")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the penalty is waived")
	_ = cmd.MarkFlagRequired("by")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
