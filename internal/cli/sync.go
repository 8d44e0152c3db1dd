package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/fiche-cuisine/internal/service"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	From    string
	To      string
	PerPage int
	Key     string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import large group reservations from Zenchef",
		Long: `Import Zenchef reservations of more than 10 covers using the stored
credentials. Reservations already present are skipped.

Example:
  fichectl sync --from 2025-10-15 --to 2025-10-20
  fichectl sync --key nightly-2025-10-15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "first service date (default today)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last service date (default --from)")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", service.DefaultPerPage, "upstream page size")
	cmd.Flags().StringVar(&opts.Key, "key", "", "idempotency key; a key already used makes the run a no-op")
	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	ctx := cmd.Context()
	a, err := opts.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := a.Settings.Credentials(ctx)
	if err != nil {
		return err
	}
	res, err := a.Sync.Sync(ctx, service.SyncRequest{
		Credentials:    creds,
		FromDate:       opts.From,
		ToDate:         opts.To,
		PerPage:        opts.PerPage,
		IdempotencyKey: opts.Key,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, res)
	}
	if res.Idempotent {
		fmt.Fprintf(out, "key %q already processed, nothing imported\n", opts.Key)
		return nil
	}
	fmt.Fprintf(out, "imported %d reservation(s) from %s to %s\n", res.Count, res.FromDate, res.ToDate)
	for _, r := range res.Created {
		fmt.Fprintf(out, "  %s %s  %-30s %3d pax  %s\n", r.ServiceDate, r.ArrivalTime, r.ClientName, r.Pax, r.ID)
	}
	return nil
}
