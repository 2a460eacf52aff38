package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/statusrelay/internal/storage"
)

type historyStore interface {
	RecentInvocations(ctx context.Context, limit, offset int) ([]storage.Invocation, int, error)
}

func executeHistory(cmd *cobra.Command, db historyStore, limit int) error {
	out := cmd.OutOrStdout()
	invs, total, err := db.RecentInvocations(context.Background(), limit, 0)
	if err != nil {
		return fmt.Errorf("querying invocations: %w", err)
	}

	if len(invs) == 0 {
		fmt.Fprintln(out, "No invocations recorded. Run 'statusrelay serve' and send /health first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLED AT\tCHAT\tUSER\tCOMMAND\tTARGET\tSTATUS\tENDPOINTS\tDURATION")
	for _, inv := range invs {
		target := inv.Target
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t/%s\t%s\t%s\t%d\t%s\n",
			inv.HandledAt.Local().Format("2006-01-02 15:04:05"),
			inv.ChatID,
			inv.User,
			inv.Command,
			target,
			inv.Status,
			inv.Endpoints,
			(time.Duration(inv.DurationMs) * time.Millisecond).String(),
		)
	}
	w.Flush()

	if total > len(invs) {
		fmt.Fprintf(out, "\nshowing %d of %d invocations\n", len(invs), total)
	}
	return nil
}
