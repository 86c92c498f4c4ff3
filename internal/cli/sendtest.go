package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sendTestChatID int64

var sendTestCmd = &cobra.Command{
	Use:   "send-test",
	Short: "Deliver the latest stored rate to one chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendTestChatID == 0 {
			return fmt.Errorf("--chat-id must be provided")
		}
		return getApp().SendTest(cmd.Context(), sendTestChatID)
	},
}

func init() {
	sendTestCmd.Flags().Int64Var(&sendTestChatID, "chat-id", 0, "Telegram chat identifier")
}
