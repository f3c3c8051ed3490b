package exitcode

const (
	Success           = 0
	RuntimeFailure    = 1
	InvalidUsage      = 2
	InvalidConfig     = 3
	MissingDependency = 4
	// NotReady means the step's preconditions do not hold yet.
	NotReady = 5
	// Busy means another step holds the workspace lock.
	Busy        = 6
	TimedOut    = 124
	Interrupted = 130
)
