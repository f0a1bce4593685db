package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/runnerr0/synapse/internal/app"
	"github.com/runnerr0/synapse/internal/capture"
)

// Execute implements the go-flags Commander interface for CaptureCommand.
func (c *CaptureCommand) Execute(args []string) error {
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

func (c *CaptureCommand) validate() error {
	if c.URL == "" && c.File == "" {
		return fmt.Errorf("--url or --file is required for capture command")
	}
	if c.URL != "" && c.File != "" {
		return fmt.Errorf("--url and --file are mutually exclusive")
	}
	return nil
}

// executeWithApp runs the capture against a provided app (used by tests).
func (c *CaptureCommand) executeWithApp(ctx context.Context, a *app.App) error {
	if err := c.validate(); err != nil {
		return err
	}
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return fmt.Errorf("invalid --timeout value %q: %w", c.Timeout, err)
	}

	var ack *app.Ack
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		ack, err = a.CaptureUpload(ctx, c.File, data)
		if err != nil {
			return err
		}
	} else {
		ack, err = a.CaptureURL(ctx, c.URL)
		if err != nil {
			return err
		}
	}

	if ack.Duplicate || c.NoWait {
		return c.printAck(ack)
	}

	task, ok := a.Task(ack.TaskID)
	if !ok {
		return c.printAck(ack)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := task.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("waiting for capture %s: %w", ack.TaskID, err)
	}
	if res.Err != nil {
		return fmt.Errorf("capture failed: %w", res.Err)
	}
	return c.printResult(task, res)
}

func (c *CaptureCommand) printAck(ack *app.Ack) error {
	if c.globals != nil && c.globals.JSON {
		return printJSON(ack)
	}
	fmt.Println(ack.Message)
	if ack.TaskID != "" {
		fmt.Printf("  Task:  %s\n", ack.TaskID)
	}
	if ack.ItemID != 0 {
		fmt.Printf("  Item:  #%d\n", ack.ItemID)
	}
	if ack.TitleGuess != "" {
		fmt.Printf("  Title: %s\n", ack.TitleGuess)
	}
	return nil
}

func (c *CaptureCommand) printResult(task *capture.Task, res capture.Result) error {
	if c.globals != nil && c.globals.JSON {
		return printJSON(task.Snapshot())
	}
	item := res.Item
	fmt.Printf("Stored item #%d (%s)\n", item.ID, item.Type.Label())
	fmt.Printf("  Title: %s\n", item.Title)
	if item.URL != "" {
		fmt.Printf("  URL:   %s\n", item.URL)
	}
	if res.Degraded {
		fmt.Printf("  Note:  %s\n", res.DegradedReason)
	}
	return nil
}
