package upstream

import "sync"

// coalescer ensures only one fetch_features call is in flight per
// environment at a time. A second caller that arrives while a fetch for the
// same key is outstanding waits for and receives that same result instead
// of issuing its own request.
type coalescer struct {
	mu      sync.Mutex
	waiters map[string][]chan fetchOutcome
}

type fetchOutcome struct {
	result *FetchResult
	err    error
}

func newCoalescer() *coalescer {
	return &coalescer{waiters: make(map[string][]chan fetchOutcome)}
}

// Do runs fn for key if no call for key is currently outstanding, otherwise
// blocks until the outstanding call completes and returns its result.
func (c *coalescer) Do(key string, fn func() (*FetchResult, error)) (*FetchResult, error) {
	c.mu.Lock()
	waiters, inFlight := c.waiters[key]
	myChan := make(chan fetchOutcome, 1)
	c.waiters[key] = append(waiters, myChan)
	c.mu.Unlock()

	if inFlight {
		outcome := <-myChan
		return outcome.result, outcome.err
	}

	result, err := fn()

	c.mu.Lock()
	chans := c.waiters[key]
	delete(c.waiters, key)
	c.mu.Unlock()

	for _, ch := range chans {
		ch <- fetchOutcome{result: result, err: err}
	}
	return result, err
}
