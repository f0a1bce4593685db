package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/search"
)

// Execute implements the go-flags Commander interface for SearchCommand.
func (c *SearchCommand) Execute(args []string) error {
	ctx := context.Background()
	a, closeApp, err := openApp(ctx, c.globals)
	if err != nil {
		return err
	}
	defer closeApp()

	return c.executeWithApp(ctx, a, args)
}

// executeWithApp runs the search against a provided app (used by tests).
func (c *SearchCommand) executeWithApp(ctx context.Context, a *app.App, args []string) error {
	query := strings.Join(args, " ")

	res, err := a.SearchItems(ctx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if res.NoQuery {
		if c.globals != nil && c.globals.JSON {
			return printJSON(map[string]string{"message": res.Message})
		}
		fmt.Println(res.Message)
		return nil
	}

	items, err := filterItems(res.Items, c.Type, c.Limit)
	if err != nil {
		return err
	}
	res.Items = items

	if c.globals != nil && c.globals.JSON {
		return printJSON(jsonSearchOutput{
			Count:   len(items),
			Query:   res.Query,
			Results: toJSONItems(items),
		})
	}
	return c.printHuman(res)
}

type jsonSearchOutput struct {
	Count   int        `json:"count"`
	Query   string     `json:"query"`
	Results []jsonItem `json:"results"`
}

func (c *SearchCommand) printHuman(res *search.Result) error {
	if len(res.Items) == 0 {
		fmt.Printf("No results found for %q\n", res.Query)
		return nil
	}

	fmt.Printf("Found %s for %q\n\n", plural(len(res.Items), "result"), res.Query)
	printItemsHuman(res.Items)
	return nil
}
