package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Serve   *ServeCommand
	Capture *CaptureCommand
	Note    *NoteCommand
	Search  *SearchCommand
	List    *ListCommand
	Open    *OpenCommand
	Status  *StatusCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "synapse"
	parser.LongDescription = "Capture links, files and notes, classify them, and search them later."

	cmds := &commands{
		Serve:   &ServeCommand{globals: &globals, version: version},
		Capture: &CaptureCommand{globals: &globals, version: version},
		Note:    &NoteCommand{globals: &globals, version: version},
		Search:  &SearchCommand{globals: &globals, version: version},
		List:    &ListCommand{globals: &globals, version: version},
		Open:    &OpenCommand{globals: &globals, version: version},
		Status:  &StatusCommand{globals: &globals, version: version},
	}

	parser.AddCommand("serve", "Start the Synapse HTTP service", "Start the local HTTP service and capture workers.", cmds.Serve)
	parser.AddCommand("capture", "Capture a URL or file", "Run a URL or a local file through the capture pipeline.", cmds.Capture)
	parser.AddCommand("note", "Store a text note", "Store a text note directly, without fetching anything.", cmds.Note)
	parser.AddCommand("search", "Search stored items", "Case-insensitive substring search over titles and content.", cmds.Search)
	parser.AddCommand("list", "List stored items", "List stored items, newest first.", cmds.List)
	parser.AddCommand("open", "Print an item or upload", "Print a stored item, or write an uploaded file back out.", cmds.Open)
	parser.AddCommand("status", "Show store statistics", "Show item counts by type and the most recent captures.", cmds.Status)

	return parser, &globals, cmds
}

// Run is the main entry point for the Synapse CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("synapse %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
