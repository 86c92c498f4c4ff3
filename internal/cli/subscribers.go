package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	subscribeChatID   int64
	unsubscribeChatID int64
)

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "List all registry rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Subscribers(cmd.Context())
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Register a chat for notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		if subscribeChatID == 0 {
			return fmt.Errorf("--chat-id must be provided")
		}
		return getApp().Subscribe(cmd.Context(), subscribeChatID)
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe",
	Short: "Deactivate a chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		if unsubscribeChatID == 0 {
			return fmt.Errorf("--chat-id must be provided")
		}
		return getApp().Unsubscribe(cmd.Context(), unsubscribeChatID)
	},
}

func init() {
	subscribeCmd.Flags().Int64Var(&subscribeChatID, "chat-id", 0, "Telegram chat identifier")
	unsubscribeCmd.Flags().Int64Var(&unsubscribeChatID, "chat-id", 0, "Telegram chat identifier")
}
