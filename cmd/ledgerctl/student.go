package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/starboard-tutoring/pointsledger/internal/application/query"
	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/pkg/timeutil"
)

func newRiskCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "risk STUDENT_ID",
		Short: "Assess a student's disengagement risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			risk, err := query.NewGetRiskHandler(infra.Repo, infra.Ledger).Handle(cmd.Context(), query.GetRiskQuery{
				StudentID: args[0],
			})
			if err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), risk, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %s risk (score %d)\n", risk.StudentID, risk.Level, risk.Score)
				for _, r := range risk.Reasons {
					fmt.Fprintf(w, "  - %s\n", r)
				}
			})
		},
	}
}

func newSummaryCmd(c *cli) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summary STUDENT_ID",
		Short: "Total the active penalties of the trailing days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			sum, err := query.NewGetPenaltySummaryHandler(infra.Repo, infra.Ledger).Handle(cmd.Context(), query.GetPenaltySummaryQuery{
				StudentID: args[0],
				Days:      days,
			})
			if err != nil {
				return err
			}

			return c.print(cmd.OutOrStdout(), sum, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %d penalties, %d points in the last %d days\n",
					sum.StudentID, sum.Count, sum.TotalPoints, sum.Days)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", query.DefaultSummaryDays, "Window length in days")
	return cmd
}

func newStudentsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "List or show students",
	}
	cmd.AddCommand(newStudentsListCmd(c), newStudentsShowCmd(c))
	return cmd
}

func newStudentsListCmd(c *cli) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List students ordered by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infra, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			students, err := infra.Repo.List(cmd.Context(), ledger.DefaultListOptions().WithOffset(offset).WithLimit(limit))
			if err != nil {
				return err
			}

			now := c.now()
			return c.print(cmd.OutOrStdout(), students, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPOINTS\tSTREAK\tUPDATED")
				for _, s := range students {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
						s.ID, s.DisplayName, s.Points, s.Stats.CurrentStreak, timeutil.FormatRelative(s.UpdatedAt, now))
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultListOptions().Limit, "Maximum number of students")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of students to skip")
	return cmd
}

func newStudentsShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show STUDENT_ID",
		Short: "Show a student with penalty and bonus history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			s, err := query.NewGetStudentHandler(infra.Repo).Handle(cmd.Context(), query.GetStudentQuery{StudentID: args[0]})
			if err != nil {
				return err
			}

			now := c.now()
			return c.print(cmd.OutOrStdout(), s, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", s.DisplayName, s.ID)
				fmt.Fprintf(w, "points: %d  streak: %d  homework streak: %d\n",
					s.Points, s.Stats.CurrentStreak, s.Stats.HomeworkStreak)

				if len(s.Stats.PenaltyHistory) > 0 {
					fmt.Fprintln(w, "\npenalties:")
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					for _, p := range s.Stats.PenaltyHistory {
						status := "active"
						if p.Waived {
							status = "waived by " + p.WaivedBy
						}
						fmt.Fprintf(tw, "  %s\t%s\t-%d\t%s\t%s\n",
							p.ID, p.Type, p.PointsDeducted, timeutil.FormatRelative(p.AppliedAt, now), status)
					}
					tw.Flush()
				}

				if len(s.Stats.BonusHistory) > 0 {
					fmt.Fprintln(w, "\nbonuses:")
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					for _, b := range s.Stats.BonusHistory {
						fmt.Fprintf(tw, "  %s\t%s\t+%d\t%s\t%s\n",
							b.ID, b.Type, b.PointsAwarded, timeutil.FormatRelative(b.AwardedAt, now), strings.TrimSpace(b.Reason))
					}
					tw.Flush()
				}
			})
		},
	}
}
