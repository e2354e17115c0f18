package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/guildgate/internal/session"
)

func newWhoamiCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in Discord identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			if !rt.session.HasToken() {
				fmt.Fprintln(out, "not logged in")
				return nil
			}
			if err := rt.session.Refresh(cmd.Context(), rt.client); err != nil {
				if errors.Is(err, session.ErrExpired) {
					fmt.Fprintln(out, "not logged in (session expired)")
					return nil
				}
				return err
			}
			id, _ := rt.session.Current()
			fmt.Fprintf(out, "%s (%s)\n", id.DisplayName(), id.User.ID)
			if roles := id.Roles(); len(roles) > 0 {
				fmt.Fprintf(out, "roles: %s\n", strings.Join(roles, ", "))
			}
			return nil
		},
	}
}
