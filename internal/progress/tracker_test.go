package progress

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapLineToProgressKnownPrefixes(t *testing.T) {
	expected := map[string]int{
		"Register volumes...":                                  1,
		"-fMask /tmp/work/mask.nrrd":                           3,
		"Reading images...":                                    7,
		"Time spent in resolution 0 (ITK initialization and iterating): 1.2 s.": 14,
		"Time spent in resolution 1 (ITK initialization and iterating): 3.1 s.": 40,
		"Time spent in resolution 2 (ITK initialization and iterating): 4.0 s.": 60,
		"Time spent in resolution 3 (ITK initialization and iterating): 9.9 s.": 80,
		"Applying final transform...":                          85,
		"Time spent on saving the results, applying the final transform etc.: 2 ms.": 90,
		"Generate output...":                                   93,
		"Reading input image ...":                              94,
		"Resampling image and writing to disk ...":             96,
		"Registration is completed.":                           100,
	}
	for line, want := range expected {
		got, ok := MapLineToProgress(line)
		assert.True(t, ok, "expected %q to match", line)
		assert.Equal(t, want, got, "line %q", line)
	}
}

func TestMapLineToProgressUnknownLine(t *testing.T) {
	for _, line := range []string{"", "elastix is started at Mon", " Register volumes", "Resolution: 0", "registration is completed"} {
		_, ok := MapLineToProgress(line)
		assert.False(t, ok, "expected %q to be unset", line)
	}
}

func TestRulePrefixesAreMutuallyExclusive(t *testing.T) {
	for i, a := range Rules {
		for j, b := range Rules {
			if i == j {
				continue
			}
			assert.False(t, strings.HasPrefix(a.Prefix, b.Prefix), "%q would also match %q", a.Prefix, b.Prefix)
		}
	}
}

func TestTrackerSequenceSignalsCompletion(t *testing.T) {
	tracker := NewTracker()
	tracker.Begin()

	lines := []string{"Register volumes", "Time spent in resolution 2", "Registration is completed"}
	percents := []int{}
	completed := []bool{}
	for _, line := range lines {
		update := tracker.Observe(line)
		require.True(t, update.Matched)
		percents = append(percents, update.Percent)
		completed = append(completed, update.Completed)
	}

	assert.Equal(t, []int{1, 60, 100}, percents)
	assert.Equal(t, []bool{false, false, true}, completed)
	assert.True(t, tracker.Snapshot().Finished)
}

func TestTrackerUnmatchedLineKeepsPercent(t *testing.T) {
	tracker := NewTracker()
	tracker.Begin()
	tracker.Observe("Reading images")

	update := tracker.Observe("Resolution: 1")
	assert.False(t, update.Matched)
	assert.Equal(t, 7, update.Percent)
	assert.Equal(t, "Resolution: 1", tracker.Snapshot().Status)
}

func TestTrackerBeginResetsStateAndToken(t *testing.T) {
	tracker := NewTracker()
	first := tracker.Begin()
	tracker.Observe("Time spent in resolution 3")
	tracker.RequestCancel()
	require.True(t, first.Cancelled())

	second := tracker.Begin()
	assert.False(t, second.Cancelled())
	assert.True(t, first.Cancelled(), "old token stays cancelled")
	assert.Equal(t, 0, tracker.Snapshot().Percent)
	assert.False(t, tracker.Snapshot().Finished)
}

func TestCancelDoesNotAlterMapping(t *testing.T) {
	tracker := NewTracker()
	token := tracker.Begin()
	token.RequestCancel()
	token.RequestCancel()

	update := tracker.Observe("Applying final transform")
	assert.True(t, update.Matched)
	assert.Equal(t, 85, update.Percent)
	assert.True(t, token.Cancelled())
}

func TestCancelTokenDoneChannel(t *testing.T) {
	token := NewCancelToken()
	select {
	case <-token.Done():
		t.Fatalf("token fired before cancel")
	default:
	}
	token.RequestCancel()
	<-token.Done()

	var nilToken *CancelToken
	assert.False(t, nilToken.Cancelled())
	assert.Nil(t, nilToken.Done())
}

func TestTrackerConcurrentObserve(t *testing.T) {
	tracker := NewTracker()
	tracker.Begin()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, rule := range Rules {
				tracker.Observe(rule.Prefix)
			}
		}()
	}
	wg.Wait()
	assert.True(t, tracker.Snapshot().Known)
}

func TestTruncateStatus(t *testing.T) {
	long := strings.Repeat("x", 75)
	assert.Equal(t, strings.Repeat("x", 60)+"..", TruncateStatus(long))
	assert.Equal(t, "short", TruncateStatus("short\n"))
}
