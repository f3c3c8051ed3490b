// Package progress maps free-text status lines from an external registration run to a
// coarse completion percentage and carries the run's cancellation token.
package progress

import (
	"strings"
	"sync"
)

const (
	Complete = 100

	statusMaxLen = 60
)

type Rule struct {
	Prefix  string
	Percent int
}

// Rules is checked in order; the first matching prefix wins.
var Rules = []Rule{
	{Prefix: "Register volumes", Percent: 1},
	{Prefix: "-fMask", Percent: 3},
	{Prefix: "Reading images", Percent: 7},
	{Prefix: "Time spent in resolution 0", Percent: 14},
	{Prefix: "Time spent in resolution 1", Percent: 40},
	{Prefix: "Time spent in resolution 2", Percent: 60},
	{Prefix: "Time spent in resolution 3", Percent: 80},
	{Prefix: "Applying final transform", Percent: 85},
	{Prefix: "Time spent on saving the results", Percent: 90},
	{Prefix: "Generate output", Percent: 93},
	{Prefix: "Reading input image", Percent: 94},
	{Prefix: "Resampling image and writing to disk", Percent: 96},
	{Prefix: "Registration is completed", Percent: Complete},
}

// MapLineToProgress returns the percentage bound to the first rule whose prefix
// starts line. ok is false when no rule matches.
func MapLineToProgress(line string) (percent int, ok bool) {
	for _, rule := range Rules {
		if strings.HasPrefix(line, rule.Prefix) {
			return rule.Percent, true
		}
	}
	return 0, false
}

type State struct {
	Percent  int
	Known    bool
	Status   string
	Finished bool
}

type Update struct {
	Line      string
	Status    string
	Percent   int
	Matched   bool
	Completed bool
}

type Tracker struct {
	mu    sync.Mutex
	state State
	token *CancelToken
}

func NewTracker() *Tracker {
	return &Tracker{token: newCancelToken()}
}

// Begin resets the progress to 0 and hands out a fresh token for the new run.
func (t *Tracker) Begin() *CancelToken {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = State{Percent: 0, Known: true}
	t.token = newCancelToken()
	return t.token
}

// Observe maps line and folds a match into the tracked state. Unmatched lines leave
// the percentage as it was.
func (t *Tracker) Observe(line string) Update {
	percent, ok := MapLineToProgress(line)
	status := TruncateStatus(line)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = status
	update := Update{Line: line, Status: status, Matched: ok}
	if ok {
		t.state.Percent = percent
		t.state.Known = true
		if percent == Complete {
			t.state.Finished = true
		}
	}
	update.Percent = t.state.Percent
	update.Completed = ok && percent == Complete
	return update
}

func (t *Tracker) RequestCancel() {
	t.mu.Lock()
	token := t.token
	t.mu.Unlock()
	token.RequestCancel()
}

func (t *Tracker) Token() *CancelToken {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func TruncateStatus(line string) string {
	line = strings.TrimRight(line, "\r\n")
	runes := []rune(line)
	if len(runes) > statusMaxLen {
		return string(runes[:statusMaxLen]) + ".."
	}
	return line
}
