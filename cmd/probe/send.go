package main

import (
	"github.com/spf13/cobra"
)

func (a *app) sendCommand() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "send URL",
		Short: "Dispatch one request and print the exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.build(cmd, args[0])
			if err != nil {
				return err
			}
			req.OnComplete(printer(cmd.OutOrStdout()))

			t, closeIdle := a.transport()
			defer closeIdle()

			c := a.client(t)
			if _, err := c.Dispatch(cmd.Context(), req); err != nil {
				return err
			}
			c.Wait()

			return nil
		},
	}
	flags.register(cmd)

	return cmd
}
