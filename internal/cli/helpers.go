package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/config"
	"github.com/runnerr0/synapse/internal/logging"
	"github.com/runnerr0/synapse/internal/storage"
)

// loadConfig reads --config when given, otherwise the default config file
// (created on first use), then applies SYNAPSE_* overrides.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if globals != nil && globals.Config != "" {
		path, perr := config.ExpandPath(globals.Config)
		if perr != nil {
			return nil, perr
		}
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrCreate()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// commandLogger is silent for one-shot commands unless --verbose is set.
func commandLogger(globals *GlobalFlags, cfg *config.Config) (*zap.Logger, error) {
	if globals == nil || !globals.Verbose {
		return zap.NewNop(), nil
	}
	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	return logging.New(config.LoggingConfig{Level: "debug", Format: "console", File: cfg.Logging.File}, dataDir)
}

// openApp loads config and opens a Synapse instance for a one-shot command.
// The returned close function drains the capture workers.
func openApp(ctx context.Context, globals *GlobalFlags) (*app.App, func(), error) {
	cfg, err := loadConfig(globals)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := commandLogger(globals, cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("open synapse: %w", err)
	}
	closeFn := func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("close synapse", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return a, closeFn, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// filterItems keeps items whose type is in types (all when empty) and
// truncates to limit (no limit when <= 0).
func filterItems(items []storage.Item, types []string, limit int) ([]storage.Item, error) {
	want := make(map[storage.ItemType]bool, len(types))
	for _, t := range types {
		it, err := storage.ParseItemType(t)
		if err != nil {
			return nil, err
		}
		want[it] = true
	}

	out := make([]storage.Item, 0, len(items))
	for _, it := range items {
		if len(want) > 0 && !want[it.Type] {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type jsonItem struct {
	ID        int64  `json:"id"`
	Type      string `json:"item_type"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}

func toJSONItems(items []storage.Item) []jsonItem {
	out := make([]jsonItem, len(items))
	for i, it := range items {
		out[i] = jsonItem{
			ID:        it.ID,
			Type:      string(it.Type),
			Title:     it.Title,
			URL:       it.URL,
			CreatedAt: it.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		}
	}
	return out
}

// printItemsHuman prints a numbered item listing.
func printItemsHuman(items []storage.Item) {
	for i, it := range items {
		fmt.Printf("%d. [%s] %s\n", i+1, it.Type.Label(), it.Title)
		if it.URL != "" {
			fmt.Printf("   %s\n", it.URL)
		}
		fmt.Printf("   #%d · %s\n", it.ID, it.CreatedAt.Local().Format("2006-01-02 15:04"))
		if i < len(items)-1 {
			fmt.Println()
		}
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var result strings.Builder
	if neg {
		result.WriteString("-")
	}
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
