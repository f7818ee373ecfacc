// Command allocctl runs settlement commands directly against the ledger
// database, for operators and scripted backfills.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/event"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	configFile string
	companyID  string
	actorID    string
	logLevel   string
}

// session is an open database with the services bound to one company
type session struct {
	cfg         *config.Config
	db          *persistence.Database
	cc          shared.CommandContext
	documents   *appfinance.DocumentService
	payments    *appfinance.PaymentService
	creditNotes *appfinance.CreditNoteService
	allocations *appfinance.AllocationService
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	var log *zap.Logger

	root := &cobra.Command{
		Use:           "allocctl",
		Short:         "Settlement operator tool",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := logger.New(&logger.Config{
				Level:      opts.logLevel,
				Format:     "console",
				Output:     "stderr",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			log = l
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if log != nil {
				logger.Sync(log)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./config.toml)")
	root.PersistentFlags().StringVar(&opts.companyID, "company", "", "company ID the command acts on")
	root.PersistentFlags().StringVar(&opts.actorID, "actor", "", "actor ID recorded in the audit trail")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	withSession := func(run func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := s.db.Close(); err != nil {
					log.Warn("Error closing database", zap.Error(err))
				}
			}()
			ctx := logger.WithCompanyID(cmd.Context(), s.cc.CompanyID.String())
			cmd.SetContext(logger.WithActorID(ctx, s.cc.ActorID.String()))
			return run(cmd, s, args)
		}
	}

	root.AddCommand(
		newAllocateCommand(withSession),
		newReverseCommand(withSession),
		newPostCommand(withSession),
		newCancelCommand(withSession),
		newStatsCommand(withSession),
		newBalanceCommand(withSession),
		newStrategiesCommand(),
		newTokenCommand(opts),
	)
	return root
}

func openSession(opts *options, log *zap.Logger) (*session, error) {
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return nil, err
	}
	companyID, err := uuid.Parse(opts.companyID)
	if err != nil {
		return nil, fmt.Errorf("--company must be a UUID: %w", err)
	}
	actorID, err := uuid.Parse(opts.actorID)
	if err != nil {
		return nil, fmt.Errorf("--actor must be a UUID: %w", err)
	}

	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{Logger: log})
	if err != nil {
		return nil, err
	}

	repos := persistence.NewRepositorySet(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewLoggingHandler(log))

	allocations := appfinance.NewAllocationService(repos, scope, log)
	allocations.SetEventPublisher(bus)
	documents := appfinance.NewDocumentService(repos, scope, log)
	documents.SetEventPublisher(bus)
	documents.SetDefaultCurrency(cfg.Allocation.DefaultCurrency)
	payments := appfinance.NewPaymentService(repos, scope, log)
	payments.SetEventPublisher(bus)
	payments.SetDefaultCurrency(cfg.Allocation.DefaultCurrency)
	creditNotes := appfinance.NewCreditNoteService(repos, scope, allocations, log)
	creditNotes.SetEventPublisher(bus)

	cc := shared.NewCommandContext(companyID, actorID)
	cc.UserAgent = "allocctl"
	return &session{
		cfg:         cfg,
		db:          db,
		cc:          cc,
		documents:   documents,
		payments:    payments,
		creditNotes: creditNotes,
		allocations: allocations,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
