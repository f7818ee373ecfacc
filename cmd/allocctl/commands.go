package main

import (
	"fmt"
	"strings"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type sessionRunner func(run func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error

// parsePlan reads "<document-id>=<amount>" pairs
func parsePlan(entries []string) ([]appfinance.PlanEntryInput, error) {
	plan := make([]appfinance.PlanEntryInput, 0, len(entries))
	for _, entry := range entries {
		docPart, amountPart, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("plan entry %q must be <document-id>=<amount>", entry)
		}
		docID, err := uuid.Parse(strings.TrimSpace(docPart))
		if err != nil {
			return nil, fmt.Errorf("plan entry %q: invalid document ID", entry)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(amountPart))
		if err != nil {
			return nil, fmt.Errorf("plan entry %q: invalid amount", entry)
		}
		plan = append(plan, appfinance.PlanEntryInput{DocumentID: docID, Amount: amount})
	}
	return plan, nil
}

func newAllocateCommand(withSession sessionRunner) *cobra.Command {
	var (
		sourceType string
		strategy   string
		amount     string
		plan       []string
		notes      string
		key        string
		preview    bool
	)
	cmd := &cobra.Command{
		Use:   "allocate <source-id>",
		Short: "Allocate a payment or credit note to open documents",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			sourceID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid source ID %q", args[0])
			}
			entries, err := parsePlan(plan)
			if err != nil {
				return err
			}
			req := appfinance.AllocateRequest{
				SourceType:     finance.SourceType(sourceType),
				SourceID:       sourceID,
				Strategy:       finance.StrategyType(strategy),
				Plan:           entries,
				Notes:          notes,
				IdempotencyKey: key,
			}
			if amount != "" {
				if req.Amount, err = decimal.NewFromString(amount); err != nil {
					return fmt.Errorf("invalid amount %q", amount)
				}
			}

			if preview {
				result, err := s.allocations.PreviewAllocation(cmd.Context(), s.cc.CompanyID, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}
			result, err := s.allocations.Allocate(cmd.Context(), s.cc, req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("nothing allocated: %s", result.Message)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&sourceType, "source-type", string(finance.SourceTypePayment), "payment or credit_note")
	cmd.Flags().StringVar(&strategy, "strategy", "", "manual, fifo, proportional or overdue_first (manual when --plan is given)")
	cmd.Flags().StringVar(&amount, "amount", "", "cap for automatic strategies; the whole remaining amount when empty")
	cmd.Flags().StringArrayVar(&plan, "plan", nil, "manual plan entry <document-id>=<amount>, repeatable")
	cmd.Flags().StringVar(&notes, "notes", "", "notes stored on every allocation")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "replay protection key")
	cmd.Flags().BoolVar(&preview, "preview", false, "compute the plan without writing anything")
	return cmd
}

func newReverseCommand(withSession sessionRunner) *cobra.Command {
	var reason, key string
	cmd := &cobra.Command{
		Use:   "reverse <allocation-id>",
		Short: "Reverse an allocation",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid allocation ID %q", args[0])
			}
			result, err := s.allocations.Reverse(cmd.Context(), s.cc, appfinance.ReverseAllocationRequest{
				AllocationID:   id,
				Reason:         reason,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reversal reason (required)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "replay protection key")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newPostCommand(withSession sessionRunner) *cobra.Command {
	var autoApply bool
	var creditNote bool
	cmd := &cobra.Command{
		Use:   "post <id>",
		Short: "Post an approved document or a draft credit note",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid ID %q", args[0])
			}
			if creditNote {
				result, err := s.creditNotes.Post(cmd.Context(), s.cc, id, appfinance.PostCreditNoteRequest{AutoApply: autoApply})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}
			result, err := s.documents.Post(cmd.Context(), s.cc, id, appfinance.DocumentTransitionRequest{})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
	cmd.Flags().BoolVar(&creditNote, "credit-note", false, "the ID names a credit note")
	cmd.Flags().BoolVar(&autoApply, "auto-apply", false, "apply the posted credit note to its source document")
	return cmd
}

func newCancelCommand(withSession sessionRunner) *cobra.Command {
	var reason, kind string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a document, payment or credit note",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid ID %q", args[0])
			}
			ctx := cmd.Context()
			var result any
			switch kind {
			case "document":
				result, err = s.documents.Cancel(ctx, s.cc, id, appfinance.DocumentTransitionRequest{Reason: reason})
			case "payment":
				result, err = s.payments.Void(ctx, s.cc, id, appfinance.VoidPaymentRequest{Reason: reason})
			case "credit-note":
				result, err = s.creditNotes.Cancel(ctx, s.cc, id, appfinance.CancelCreditNoteRequest{Reason: reason})
			default:
				return fmt.Errorf("--kind must be document, payment or credit-note, got %q", kind)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "document", "document, payment or credit-note")
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newStatsCommand(withSession sessionRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show allocation and credit note statistics",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, _ []string) error {
			allocations, err := s.allocations.GetAllocationStatistics(cmd.Context(), s.cc.CompanyID)
			if err != nil {
				return err
			}
			creditNotes, err := s.creditNotes.Statistics(cmd.Context(), s.cc.CompanyID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"allocations":  allocations,
				"credit_notes": creditNotes,
			})
		}),
	}
}

func newBalanceCommand(withSession sessionRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <counterpart-id>",
		Short: "Show what a counterpart owes",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid counterpart ID %q", args[0])
			}
			balance, err := s.allocations.GetCounterpartBalance(cmd.Context(), s.cc.CompanyID, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), balance)
		}),
	}
}

func newStrategiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the allocation strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, t := range finance.AllStrategyTypes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", t, t.Description())
			}
			return nil
		},
	}
}

func newTokenCommand(opts *options) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for --company and --actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFile(opts.configFile)
			if err != nil {
				return err
			}
			companyID, err := uuid.Parse(opts.companyID)
			if err != nil {
				return fmt.Errorf("--company must be a UUID: %w", err)
			}
			actorID, err := uuid.Parse(opts.actorID)
			if err != nil {
				return fmt.Errorf("--actor must be a UUID: %w", err)
			}
			token, err := auth.NewTokenService(cfg.JWT).Issue(companyID, actorID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
