package progress

import "sync"

// CancelToken is a set-once cancellation request that a long-running routine polls.
// Setting it does not interrupt anything by itself.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

func newCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// NewCancelToken returns a standalone token for callers that do not track progress.
func NewCancelToken() *CancelToken {
	return newCancelToken()
}

func (c *CancelToken) RequestCancel() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.done) })
}

func (c *CancelToken) Cancelled() bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed once cancellation was requested. A nil token never fires.
func (c *CancelToken) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.done
}
