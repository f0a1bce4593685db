package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/storage"
)

// Execute implements the go-flags Commander interface for OpenCommand.
func (c *OpenCommand) Execute(args []string) error {
	if err := c.validate(); err != nil {
		return err
	}

	ctx := context.Background()
	a, closeApp, err := openApp(ctx, c.globals)
	if err != nil {
		return err
	}
	defer closeApp()

	return c.executeWithApp(ctx, a)
}

func (c *OpenCommand) validate() error {
	if c.ID == 0 && c.Upload == "" {
		return fmt.Errorf("--id or --upload is required for open command")
	}
	if c.ID != 0 && c.Upload != "" {
		return fmt.Errorf("--id and --upload are mutually exclusive")
	}
	return nil
}

// executeWithApp prints the item or upload from a provided app (used by tests).
func (c *OpenCommand) executeWithApp(ctx context.Context, a *app.App) error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.Upload != "" {
		return c.openUpload(ctx, a)
	}

	item, err := a.GetItem(ctx, c.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("item not found: %d", c.ID)
	}
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return c.outputJSON(item)
	}

	switch c.Format {
	case "content":
		fmt.Println(item.Content)
	case "json":
		return c.outputJSON(item)
	default: // "full"
		c.outputFull(item)
	}
	return nil
}

func (c *OpenCommand) openUpload(ctx context.Context, a *app.App) error {
	up, err := a.FetchUpload(ctx, c.Upload)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("upload not found: %s", c.Upload)
	}
	if err != nil {
		return err
	}

	if c.Out == "" {
		_, err := os.Stdout.Write(up.Data)
		return err
	}
	if err := os.WriteFile(c.Out, up.Data, 0o644); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%s, %s)\n", c.Out, up.ContentType, formatBytes(int64(len(up.Data))))
	return nil
}

func (c *OpenCommand) outputFull(item *storage.Item) {
	fmt.Printf("#%d\n", item.ID)
	fmt.Printf("Title:     %s\n", item.Title)
	fmt.Printf("Type:      %s\n", item.Type.Label())
	if item.URL != "" {
		fmt.Printf("URL:       %s\n", item.URL)
	}
	fmt.Printf("Captured:  %s\n", item.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Println()
	fmt.Println("--- Content ---")
	if item.Content == "" {
		fmt.Println("No content captured")
	} else {
		fmt.Println(item.Content)
	}
}

func (c *OpenCommand) outputJSON(item *storage.Item) error {
	out := struct {
		jsonItem
		Content string `json:"content"`
	}{
		jsonItem: toJSONItems([]storage.Item{*item})[0],
		Content:  item.Content,
	}
	return printJSON(out)
}
