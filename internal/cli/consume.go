package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/fiche-cuisine/internal/config"
	"github.com/iliyamo/fiche-cuisine/internal/queue"
)

// NewConsumeImportsCommand creates the consume-imports command.
func NewConsumeImportsCommand(rootOpts *RootOptions) *cobra.Command {
	var logPath string
	cmd := &cobra.Command{
		Use:   "consume-imports",
		Short: "Append reservations.imported events to an audit log",
		Long: `Consume the reservations.imported queue from RABBITMQ_URL and append one
line per event to the audit log until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RabbitURL == "" {
				return errors.New("RABBITMQ_URL is not set")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.WithField("log", logPath).Info("consuming reservations.imported")
			err = queue.StartImportConsumer(ctx, cfg.RabbitURL, logPath)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&logPath, "log", queue.DefaultImportLog, "audit log file")
	return cmd
}
