package main

import (
	"fmt"
	"log/slog"

	"scan-http/application/http/message"
	"scan-http/application/http/replay"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (a *app) enqueueCommand() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "enqueue URL",
		Short: "Push a request to the replay queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.build(cmd, args[0])
			if err != nil {
				return err
			}

			q, closeQueue, err := a.queue(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQueue()

			if err := q.Push(cmd.Context(), req); err != nil {
				return err
			}

			n, err := q.Len(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued, %d pending\n", n)

			return nil
		},
	}
	flags.register(cmd)

	return cmd
}

func (a *app) replayCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Dispatch queued requests and print the exchanges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			q, closeQueue, err := a.queue(ctx)
			if err != nil {
				return err
			}
			defer closeQueue()

			t, closeIdle := a.transport()
			defer closeIdle()

			c := a.client(t)
			out := &syncWriter{w: cmd.OutOrStdout()}

			replayed := 0
			for limit <= 0 || replayed < limit {
				req, err := q.Pop(ctx)
				if errors.Is(err, replay.ErrEmpty) {
					break
				}
				if err != nil {
					c.Wait()
					return err
				}

				if err := req.SetMode(message.ModeAsync.String()); err != nil {
					return err
				}
				req.OnComplete(printer(out))

				if _, err := c.Dispatch(ctx, req); err != nil {
					a.logger.Warn("replay dispatch failed", slog.Any("error", err))
				}
				replayed++
			}
			c.Wait()

			fmt.Fprintf(out, "replayed %d\n", replayed)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Replay at most this many requests, 0 for all")

	return cmd
}
