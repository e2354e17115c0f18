package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/guildgate/internal/api"
	"github.com/kingrea/guildgate/internal/wizard"
)

var errNotLoggedIn = errors.New("not logged in: run guildgate and choose Log In")

func newCheckCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether you can submit an application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer rt.Close()
			if !rt.session.HasToken() {
				return errNotLoggedIn
			}

			result, err := rt.client.CheckEligibility(cmd.Context())
			if err != nil {
				return errors.New(api.Message(err, wizard.MsgEligibilityFailed))
			}
			out := cmd.OutOrStdout()
			if result.Eligible {
				fmt.Fprintln(out, "Eligible: you can submit an application.")
				return nil
			}
			blocked := wizard.BlockedCopy(result)
			fmt.Fprintln(out, blocked.Headline)
			if blocked.Message != "" {
				fmt.Fprintln(out, blocked.Message)
			}
			if blocked.DaysHint != "" {
				fmt.Fprintln(out, blocked.DaysHint)
			}
			return nil
		},
	}
}
