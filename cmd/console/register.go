package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func registerCommand() *cobra.Command {
	var displayKey string
	cmd := &cobra.Command{
		Use:   "register <username> <password>",
		Short: "Create a staff account on the member service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd.Context())
			if cfg == nil {
				return fmt.Errorf("no config found in context")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.RequestTimeout())
			defer cancel()
			// Registration happens before the station has credentials.
			user, err := newStation(cfg).transport.Client().Register(ctx, args[0], args[1], displayKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Registered staff user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&displayKey, "display-key", "", "name shown for this staff member")
	return cmd
}
