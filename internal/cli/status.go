package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/config"
	"github.com/runnerr0/synapse/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string           `json:"version"`
	Driver            string           `json:"driver"`
	DatabasePath      string           `json:"database_path,omitempty"`
	DatabaseSizeBytes int64            `json:"database_size_bytes,omitempty"`
	TotalItems        int64            `json:"total_items"`
	ByType            map[string]int64 `json:"by_type"`
	OldestItem        string           `json:"oldest_item,omitempty"`
	NewestItem        string           `json:"newest_item,omitempty"`
	CapturesLogged    int64            `json:"captures_logged"`
	CapturesFailed    int64            `json:"captures_failed"`
	Recent            []captureJSON    `json:"recent_captures"`
}

type captureJSON struct {
	TaskID     string `json:"task_id"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	ItemID     int64  `json:"item_id,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := commandLogger(c.globals, cfg)
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open synapse: %w", err)
	}
	defer a.Close(context.Background()) //nolint:errcheck

	return c.executeWithApp(ctx, a, cfg)
}

// executeWithApp prints status for a provided app (used by tests).
func (c *StatusCommand) executeWithApp(ctx context.Context, a *app.App, cfg *config.Config) error {
	st, err := a.Status(ctx, c.Recent)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	var dbPath string
	var dbSize int64
	if cfg.Storage.Driver == config.DriverSQLite {
		if dbPath, err = cfg.SQLitePath(); err == nil {
			dbSize = fileSize(dbPath)
		}
	}

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(st, cfg.Storage.Driver, dbPath, dbSize)
	}
	return c.printStatusHuman(st, cfg.Storage.Driver, dbPath, dbSize)
}

func (c *StatusCommand) printStatusHuman(st *app.Status, driver, dbPath string, dbSize int64) error {
	stats := st.Stats
	fmt.Println("Synapse Status")
	fmt.Println("==============")
	fmt.Printf("Version:       %s\n", c.version)
	if dbPath != "" {
		fmt.Printf("Database:      %s (%s)\n", dbPath, formatBytes(dbSize))
	} else {
		fmt.Printf("Database:      %s\n", driver)
	}
	fmt.Printf("Items:         %s\n", formatNumber(stats.TotalItems))

	if stats.TotalItems > 0 {
		fmt.Printf("Oldest:        %s\n", stats.OldestItem.Local().Format("2006-01-02"))
		fmt.Printf("Newest:        %s\n", stats.NewestItem.Local().Format("2006-01-02"))
		fmt.Println()
		fmt.Println("By Type:")
		for _, t := range storage.ItemTypes() {
			if n := stats.ByType[t]; n > 0 {
				fmt.Printf("  %-10s %s\n", t.Label(), formatNumber(n))
			}
		}
	}

	fmt.Println()
	fmt.Printf("Captures:      %s (%s failed)\n", formatNumber(stats.CapturesLogged), formatNumber(stats.CapturesFailed))
	if len(st.Recent) > 0 {
		fmt.Println()
		fmt.Println("Recent Captures:")
		for _, r := range st.Recent {
			line := fmt.Sprintf("  %s  %-6s %-8s %s", r.FinishedAt.Local().Format("2006-01-02 15:04"), r.Source, r.State, r.Target)
			if r.Error != "" {
				line += " (" + r.Error + ")"
			}
			fmt.Println(line)
		}
	}
	return nil
}

func (c *StatusCommand) printStatusJSON(st *app.Status, driver, dbPath string, dbSize int64) error {
	stats := st.Stats
	out := statusJSON{
		Version:           c.version,
		Driver:            driver,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: dbSize,
		TotalItems:        stats.TotalItems,
		ByType:            make(map[string]int64, len(stats.ByType)),
		CapturesLogged:    stats.CapturesLogged,
		CapturesFailed:    stats.CapturesFailed,
		Recent:            make([]captureJSON, len(st.Recent)),
	}

	if stats.TotalItems > 0 {
		out.OldestItem = stats.OldestItem.UTC().Format(time.RFC3339)
		out.NewestItem = stats.NewestItem.UTC().Format(time.RFC3339)
	}
	for t, n := range stats.ByType {
		out.ByType[string(t)] = n
	}
	for i, r := range st.Recent {
		out.Recent[i] = captureJSON{
			TaskID:     r.TaskID,
			Source:     r.Source,
			Target:     r.Target,
			State:      r.State,
			Error:      r.Error,
			ItemID:     r.ItemID,
			FinishedAt: r.FinishedAt.UTC().Format(time.RFC3339),
		}
	}

	return printJSON(out)
}

// fileSize returns the size of the database file plus its WAL, or 0.
func fileSize(path string) int64 {
	var total int64
	for _, p := range []string{path, path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}
