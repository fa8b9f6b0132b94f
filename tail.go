package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/session"
)

func tailCmd() *cobra.Command {
	var (
		roomID  string
		after   int64
		newOnly bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print a room's messages as JSON lines, then follow new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			database, err := connectDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()
			changes, err := openFeed(ctx, database)
			if err != nil {
				return err
			}
			defer changes.Close()

			repo := repositories.NewMessageRepo(database, changes, cfg.WatchPollInterval, logger)
			if newOnly {
				if after, err = repo.LastID(ctx, roomID); err != nil {
					return err
				}
			}
			sessions := session.New(repo, session.DefaultConfig(), logger)
			defer sessions.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			sub, err := sessions.Subscribe(roomID, func(ev models.Event) {
				if err := enc.Encode(ev); err != nil {
					logger.Warn().Err(err).Msg("write event")
				}
			}, session.WithCursor(after))
			if err != nil {
				return err
			}
			defer sessions.Unsubscribe(sub)

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&roomID, "room", "", "room to follow")
	cmd.Flags().Int64Var(&after, "after", 0, "resume after this message id")
	cmd.Flags().BoolVar(&newOnly, "new", false, "skip the backlog and print only messages appended from now on")
	cmd.MarkFlagsMutuallyExclusive("after", "new")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}
