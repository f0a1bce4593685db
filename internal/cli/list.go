package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/synapse/internal/app"
)

// Execute implements the go-flags Commander interface for ListCommand.
func (c *ListCommand) Execute(args []string) error {
	ctx := context.Background()
	a, closeApp, err := openApp(ctx, c.globals)
	if err != nil {
		return err
	}
	defer closeApp()

	return c.executeWithApp(ctx, a)
}

// executeWithApp lists items from a provided app (used by tests).
func (c *ListCommand) executeWithApp(ctx context.Context, a *app.App) error {
	all, err := a.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	items, err := filterItems(all, c.Type, c.Limit)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(toJSONItems(items))
	}
	if len(items) == 0 {
		fmt.Println("No items stored yet")
		return nil
	}
	if len(items) < len(all) {
		fmt.Printf("Showing %d of %s\n\n", len(items), plural(len(all), "item"))
	}
	printItemsHuman(items)
	return nil
}
