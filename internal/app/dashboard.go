package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	panelWidth   = 12
	panelHeight  = 9
	panelsPerRow = 2
)

// DashboardOptions configure the dashboard command.
type DashboardOptions struct {
	OutPath    string
	Datasource string
}

type dashboard struct {
	Title         string         `json:"title"`
	UID           string         `json:"uid"`
	SchemaVersion int            `json:"schemaVersion"`
	Refresh       string         `json:"refresh"`
	Time          dashboardRange `json:"time"`
	Panels        []panel        `json:"panels"`
}

type dashboardRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type panel struct {
	ID         int           `json:"id"`
	Type       string        `json:"type"`
	Title      string        `json:"title"`
	Datasource datasourceRef `json:"datasource"`
	GridPos    gridPos       `json:"gridPos"`
	Targets    []target      `json:"targets"`
}

type datasourceRef struct {
	Type string `json:"type"`
	UID  string `json:"uid"`
}

type gridPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type target struct {
	RefID      string        `json:"refId"`
	Format     string        `json:"format"`
	RawQuery   bool          `json:"rawQuery"`
	RawSQL     string        `json:"rawSql"`
	EditorMode string        `json:"editorMode"`
	Datasource datasourceRef `json:"datasource"`
}

// Dashboard writes a Grafana dashboard with one balance panel per configured account.
func (a *App) Dashboard(opts DashboardOptions) error {
	accounts, err := a.Config.ResolveAccounts()
	if err != nil {
		return err
	}
	names := make([]string, len(accounts))
	for i, acc := range accounts {
		names[i] = acc.Name
	}

	raw, err := json.MarshalIndent(buildDashboard(names, opts.Datasource), "", "    ")
	if err != nil {
		return fmt.Errorf("encode dashboard: %w", err)
	}
	raw = append(raw, '\n')

	if opts.OutPath == "" || opts.OutPath == "-" {
		_, err = a.Out.Write(raw)
		return err
	}
	if err := ensureDir(opts.OutPath); err != nil {
		return err
	}
	if err := os.WriteFile(opts.OutPath, raw, 0o644); err != nil {
		return fmt.Errorf("write dashboard: %w", err)
	}
	a.Logger.Info().Str("path", opts.OutPath).Int("panels", len(names)).Msg("dashboard written")
	return nil
}

func buildDashboard(names []string, datasourceUID string) dashboard {
	ds := datasourceRef{Type: "grafana-postgresql-datasource", UID: datasourceUID}
	d := dashboard{
		Title:         "Vault Watcher",
		UID:           "vault-watcher",
		SchemaVersion: 39,
		Refresh:       "1m",
		Time:          dashboardRange{From: "now-24h", To: "now"},
		Panels:        make([]panel, 0, len(names)),
	}
	for i, name := range names {
		d.Panels = append(d.Panels, panel{
			ID:         i + 2,
			Type:       "timeseries",
			Title:      name,
			Datasource: ds,
			GridPos: gridPos{
				X: (i % panelsPerRow) * panelWidth,
				Y: (i / panelsPerRow) * panelHeight,
				W: panelWidth,
				H: panelHeight,
			},
			Targets: []target{{
				RefID:      "A",
				Format:     "time_series",
				RawQuery:   true,
				EditorMode: "code",
				RawSQL:     panelQuery(name),
				Datasource: ds,
			}},
		})
	}
	return d
}

const panelQueryTemplate = `SELECT timestamp AS "time", balance AS "value"
FROM vault_watcher
WHERE name = '%s' AND $__timeFilter(timestamp)
ORDER BY 1`

func panelQuery(name string) string {
	return fmt.Sprintf(panelQueryTemplate, strings.ReplaceAll(name, "'", "''"))
}
