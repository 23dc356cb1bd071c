package x402relay

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit log",
	RunE:  runAudit,
}

var (
	auditEventType string
	auditTaskID    string
	auditActor     string
	auditLimit     int
	auditSince     string
	auditPayments  bool
)

func init() {
	auditCmd.Flags().StringVar(&auditEventType, "type", "", "filter by event type")
	auditCmd.Flags().StringVar(&auditTaskID, "task", "", "filter by task ID")
	auditCmd.Flags().StringVar(&auditActor, "actor", "", "filter by actor (agent or wallet identity)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum number of entries")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "show entries since (e.g. 2026-01-01)")
	auditCmd.Flags().BoolVar(&auditPayments, "payments", false, "show payment events only")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = db.Close() }()

	auditLog, err := audit.New(db.DB())
	if err != nil {
		return fmt.Errorf("initializing audit logger: %w", err)
	}

	filter := audit.Filter{
		EventType: auditEventType,
		TaskID:    auditTaskID,
		Actor:     auditActor,
		Limit:     auditLimit,
	}
	if auditPayments {
		filter.EventTypes = audit.PaymentEvents
	}
	if auditSince != "" {
		t, err := time.Parse("2006-01-02", auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use YYYY-MM-DD): %w", err)
		}
		filter.Since = t
	}

	entries, err := auditLog.Query(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("querying audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries found.")
		return nil
	}

	for _, e := range entries {
		ts := e.Timestamp.Format("2006-01-02 15:04:05")
		fmt.Fprintf(out, "[%s] %-20s task=%-36s actor=%-10s %s\n",
			ts, e.EventType, e.TaskID, e.Actor, e.Detail,
		)
	}

	fmt.Fprintf(out, "\n%d entries\n", len(entries))
	return nil
}
