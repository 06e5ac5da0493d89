package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"smsrelay/internal/database"
	"smsrelay/internal/privacy"

	"github.com/spf13/cobra"
)

func init() {
	queueCmd.AddCommand(queueListCmd, queuePurgeCmd)
	queuePurgeCmd.Flags().Bool("yes", false, "Confirm deletion of every queued entry")
	rootCmd.AddCommand(drainCmd, queueCmd)
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Retry every queued payload once and wait for the results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		included, err := a.coordinator.DrainAndRetry(cmd.Context())
		if err != nil {
			return fmt.Errorf("drain failed: %w", err)
		}
		if err := a.coordinator.WaitContext(cmd.Context()); err != nil {
			return err
		}

		remaining, err := a.db.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "retried %d entries, %d remaining\n", included, remaining)
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or clear the failure queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued payloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return listQueue(cmd.Context(), a.db, cmd.OutOrStdout())
	},
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every queued payload",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to purge without --yes")
		}
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.db.Purge(cmd.Context())
		if err != nil {
			return err
		}
		a.logger.WithField("removed", removed).Warn("Failure queue purged")
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", removed)
		return nil
	},
}

const previewLength = 60

func listQueue(ctx context.Context, db *database.Database, out io.Writer) error {
	entries, err := db.ListAll(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tBYTES\tPAYLOAD")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n",
			entry.ID,
			time.UnixMilli(entry.CreatedAt).UTC().Format(time.RFC3339),
			len(entry.Payload),
			payloadSummary(entry.Payload))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d entries\n", len(entries))
	return nil
}

// payloadSummary describes a queued payload without exposing message text
// or numeric senders.
func payloadSummary(payload string) string {
	var records []map[string]interface{}
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return fmt.Sprintf("[unparseable, %d bytes]", len(payload))
		}
	} else {
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
			return fmt.Sprintf("[unparseable, %d bytes]", len(payload))
		}
		records = append(records, record)
	}

	summary := fmt.Sprintf("records=%d", len(records))
	if len(records) > 0 {
		sender, _ := records[0]["sender"].(string)
		content, _ := records[0]["content"].(string)
		if sender != "" {
			summary += " sender=" + privacy.MaskSender(sender)
		}
		if content != "" {
			summary += " content=" + privacy.MaskContent(content)
		}
	}
	return truncateRunes(summary, previewLength)
}

// truncateRunes cuts s to at most n runes, marking the cut with "..."
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
