package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ServeCommand runs the HTTP service until interrupted.
type ServeCommand struct {
	Host     string `long:"host" description:"Override listen host"`
	Port     int    `long:"port" description:"Override listen port"`
	LogLevel string `long:"log-level" description:"Override log level"`

	globals *GlobalFlags
	version string
}

// CaptureCommand queues a URL or a local file and waits for the result.
type CaptureCommand struct {
	URL     string `long:"url" description:"URL to capture"`
	File    string `long:"file" description:"Path of a file to upload"`
	NoWait  bool   `long:"no-wait" description:"Return after queueing instead of waiting for the item"`
	Timeout string `long:"timeout" description:"How long to wait for the pipeline (e.g., 30s, 2m)" default:"30s"`

	globals *GlobalFlags
	version string
}

// NoteCommand stores a text note.
type NoteCommand struct {
	Title    string `long:"title" description:"Note title (defaults to the first line of the body)"`
	Body     string `long:"body" description:"Inline note text"`
	BodyFile string `long:"body-file" description:"Path to file containing note text"`

	globals *GlobalFlags
	version string
}

// SearchCommand runs a substring search over titles and content.
type SearchCommand struct {
	Type  []string `long:"type" description:"Only items of this type (repeatable)"`
	Limit int      `long:"limit" description:"Maximum results, 0 for all" default:"10"`

	globals *GlobalFlags
	version string
}

// ListCommand prints stored items, newest first.
type ListCommand struct {
	Type  []string `long:"type" description:"Only items of this type (repeatable)"`
	Limit int      `long:"limit" description:"Maximum items, 0 for all" default:"20"`

	globals *GlobalFlags
	version string
}

// OpenCommand prints one item, or writes an uploaded file back out.
type OpenCommand struct {
	ID     int64  `long:"id" description:"Item ID"`
	Upload string `long:"upload" description:"Upload reference to read back"`
	Out    string `long:"out" description:"Write upload bytes to this path instead of stdout"`
	Format string `long:"format" description:"Output format: full | content | json" default:"full"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows store statistics and recent pipeline runs.
type StatusCommand struct {
	Recent int `long:"recent" description:"Number of recent captures to show" default:"5"`

	globals *GlobalFlags
	version string
}
