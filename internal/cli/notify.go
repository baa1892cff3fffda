package cli

import (
	"github.com/spf13/cobra"
)

var (
	notifyMessage string
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "发送一条测试消息到所有已配置的告警渠道",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().NotifyTest(cmd.Context(), notifyMessage)
	},
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyMessage, "message", "", "Message text (defaults to a fixed test message)")
}
