package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/storage"
)

// Execute implements the go-flags Commander interface for NoteCommand.
func (c *NoteCommand) Execute(args []string) error {
	ctx := context.Background()
	a, closeApp, err := openApp(ctx, c.globals)
	if err != nil {
		return err
	}
	defer closeApp()

	return c.executeWithApp(ctx, a)
}

// executeWithApp stores the note using a provided app (used by tests).
func (c *NoteCommand) executeWithApp(ctx context.Context, a *app.App) error {
	if c.Body != "" && c.BodyFile != "" {
		return fmt.Errorf("--body and --body-file are mutually exclusive")
	}

	body := c.Body
	if c.BodyFile != "" {
		data, err := os.ReadFile(c.BodyFile)
		if err != nil {
			return fmt.Errorf("reading body file: %w", err)
		}
		body = string(data)
	}

	item, err := a.CaptureNote(ctx, c.Title, body)
	if err != nil {
		return fmt.Errorf("storing note: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(toJSONItems([]storage.Item{*item})[0])
	}
	fmt.Printf("Stored note #%d\n", item.ID)
	fmt.Printf("  Title: %s\n", item.Title)
	return nil
}
