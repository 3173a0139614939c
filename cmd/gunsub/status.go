package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/store"
	"github.com/nhle/gunsub/internal/theme"
)

func runStatus(args []string) error {
	flags, configPath := commonFlags("status")
	limit := flags.Int("limit", 10, "number of recent runs to show")
	failedOnly := flags.Bool("failed", false, "only show failed runs")

	cfg, err := loadConfig(flags, configPath, args)
	if err != nil {
		return err
	}

	cursors, err := store.Open(cfg.State)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer cursors.Close()

	ctx := context.Background()
	var cursor *time.Time
	value, ok, err := cursors.ReadCursor(ctx)
	if err != nil {
		return err
	}
	if ok {
		cursor = &value
	}

	var runs []model.Run
	history, hasHistory := cursors.(*store.SQLiteStore)
	if hasHistory {
		runs, err = history.ListRuns(ctx, store.RunFilter{FailedOnly: *failedOnly, Limit: *limit})
		if err != nil {
			return err
		}
	}

	renderStatus(os.Stdout, cfg, cursor, runs, hasHistory, time.Now())
	return nil
}

// renderStatus writes the cursor and the run history.
func renderStatus(w io.Writer, cfg *model.AppConfig, cursor *time.Time, runs []model.Run, hasHistory bool, now time.Time) {
	var b strings.Builder

	b.WriteString(theme.HeaderStyle.Render("gunsub") + "\n\n")
	b.WriteString(keyValue("state", cfg.State.Backend+" "+cfg.State.Path))
	if cursor == nil {
		b.WriteString(keyValue("cursor", "none, next scan reads all notifications"))
	} else {
		b.WriteString(keyValue("cursor",
			cursor.Local().Format(time.DateTime)+" ("+humanizeAge(now.Sub(*cursor))+" ago)"))
	}

	if !hasHistory {
		b.WriteString("\n" + theme.HelpStyle.Render("run history needs state.backend: sqlite"))
		fmt.Fprintln(w, theme.PanelStyle.Render(b.String()))
		return
	}

	b.WriteString("\n")
	if len(runs) == 0 {
		b.WriteString(theme.HelpStyle.Render("no runs recorded"))
	}
	lines := make([]string, 0, len(runs))
	for _, run := range runs {
		lines = append(lines, renderRun(run))
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, lines...))

	fmt.Fprintln(w, theme.PanelStyle.Render(b.String()))
}

func renderRun(run model.Run) string {
	outcome := "ok"
	switch {
	case !run.Succeeded():
		outcome = "failed"
	case run.Malformed > 0:
		outcome = "warning"
	}

	line := fmt.Sprintf("%s  %-7s  pages=%d unsubscribed=%d",
		run.StartedAt.Local().Format(time.DateTime),
		theme.RunStyle(outcome).Render(outcome),
		run.Pages, run.Unsubscribed,
	)
	if run.Malformed > 0 {
		line += fmt.Sprintf(" malformed=%d", run.Malformed)
	}
	if run.Error != "" {
		line += "  " + theme.HelpStyle.Render(run.Error)
	}
	return line
}

func keyValue(key, value string) string {
	return theme.LabelStyle.Render(key) + theme.ValueStyle.Render(value) + "\n"
}

func humanizeAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func runConfig(args []string) error {
	flags, configPath := commonFlags("config")
	flags.StringSlice("include", nil, "repository glob to scan")
	flags.StringSlice("exclude", nil, "repository glob to skip")
	flags.Int("interval", 0, "seconds between scans")
	flags.Bool("dry-run", false, "log without muting")

	cfg, err := loadConfig(flags, configPath, args)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "# %s\n", *configPath)
	return writeConfig(os.Stdout, cfg)
}

// writeConfig prints cfg as YAML with the token masked.
func writeConfig(w io.Writer, cfg *model.AppConfig) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return encoder.Close()
}
