package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgeorch/orchestrator/pkg/statussink"
)

func newStatusCommand() *cobra.Command {
	var (
		component string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent transition and fleet-health history from --history-db",
		Long: `Read --history-db (written by a running or previously-run "orchestrator
run") and print the most recent component transitions and overall
fleet-health changes. This inspects persisted history rather than a
live process, matching the CLI's stateless, one-shot-per-invocation
design.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), component, limit)
		},
	}
	cmd.Flags().StringVar(&component, "component", "", "limit to one component's transitions (empty lists every component)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to print per section")

	return cmd
}

func runStatus(ctx context.Context, component string, limit int) error {
	history, err := statussink.NewHistorySink(ctx, historyDB)
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	defer history.Close()

	transitions, err := history.ListTransitions(ctx, component, limit)
	if err != nil {
		return err
	}
	fmt.Println("recent transitions:")
	for _, t := range transitions {
		fmt.Printf("  %s  %-20s %s -> %s  (%s)\n", t.OccurredAt.Format("2006-01-02T15:04:05"), t.Component, t.FromState, t.ToState, t.Reason)
	}

	overall, err := history.ListOverallChanges(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Println("fleet health:")
	for _, o := range overall {
		fmt.Printf("  %s  %s\n", o.OccurredAt.Format("2006-01-02T15:04:05"), o.Overall)
	}

	return nil
}
