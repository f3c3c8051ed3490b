package cli

import "io"

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

type GlobalOptions struct {
	ConfigPath string
	// Workspace overrides defaults.workspace for this invocation.
	Workspace string
	JSON      bool
	Quiet     bool
	Verbose   bool
	NoInput   bool
	// EventLog appends every event as JSON to this file, whatever the console mode.
	EventLog string
	// Progress is auto, always or never and controls the in-place progress line.
	Progress string
}

type AppContext struct {
	Build BuildInfo
	IO    IOStreams
	Opts  GlobalOptions
}
