package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or update the Zenchef credentials",
	}
	cmd.AddCommand(newSettingsGetCommand(rootOpts))
	cmd.AddCommand(newSettingsSetCommand(rootOpts))
	return cmd
}

func newSettingsGetCommand(opts *RootOptions) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if !reveal {
				creds.APIToken = mask(creds.APIToken)
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, creds)
			}
			fmt.Fprintf(out, "api_token:     %s\nrestaurant_id: %s\n", orUnset(creds.APIToken), orUnset(creds.RestaurantID))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the token in clear")
	return cmd
}

func newSettingsSetCommand(opts *RootOptions) *cobra.Command {
	var token, restaurant string
	cmd := &cobra.Command{
		Use:     "set",
		Short:   "Update the credentials; omitted flags are kept",
		Example: `  fichectl settings set --token "$ZENCHEF_TOKEN" --restaurant 12345`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var tokenPtr, restaurantPtr *string
			if cmd.Flags().Changed("token") {
				tokenPtr = &token
			}
			if cmd.Flags().Changed("restaurant") {
				restaurantPtr = &restaurant
			}
			if tokenPtr == nil && restaurantPtr == nil {
				return fmt.Errorf("nothing to update: pass --token and/or --restaurant")
			}

			ctx := cmd.Context()
			a, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Settings.SetCredentials(ctx, tokenPtr, restaurantPtr); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Zenchef API token")
	cmd.Flags().StringVar(&restaurant, "restaurant", "", "Zenchef restaurant id")
	return cmd
}

func mask(s string) string {
	if len(s) <= 4 {
		return s
	}
	return "****" + s[len(s)-4:]
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
