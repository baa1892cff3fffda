package cli

import (
	"github.com/spf13/cobra"

	"vault-watcher/internal/app"
)

var (
	dashboardOut        string
	dashboardDatasource string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Generate a Grafana dashboard with one panel per account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Dashboard(app.DashboardOptions{
			OutPath:    dashboardOut,
			Datasource: dashboardDatasource,
		})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "-", "Output path, - for stdout")
	dashboardCmd.Flags().StringVar(&dashboardDatasource, "datasource", "", "Grafana PostgreSQL datasource UID")
}
