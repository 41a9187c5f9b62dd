package solidhttp

import (
	"sync"
	"time"
)

// pacer retries a call with exponential backoff/decay, adapted from
// lib/pacer's Default calculator (minSleep=10ms, maxSleep=2s,
// decayConstant=2, attackConstant=1): each successful call cuts the
// sleep time by a quarter (decay), each retry raises it by half
// (attack), clamped to [minSleep, maxSleep].
type pacer struct {
	mu             sync.Mutex
	sleepTime      time.Duration
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
	retries        int
}

func newPacer() *pacer {
	return &pacer{
		sleepTime:      10 * time.Millisecond,
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
		retries:        5,
	}
}

func (p *pacer) decay() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sleepTime = p.clamp(p.sleepTime - p.sleepTime>>p.decayConstant)
}

func (p *pacer) attack() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attackConstant == 0 {
		p.sleepTime = p.maxSleep
	} else {
		p.sleepTime = p.clamp(p.sleepTime + p.sleepTime>>p.attackConstant)
	}
	return p.sleepTime
}

func (p *pacer) clamp(d time.Duration) time.Duration {
	if d < p.minSleep {
		return p.minSleep
	}
	if d > p.maxSleep {
		return p.maxSleep
	}
	return d
}

// call runs fn, retrying while it reports retry=true, up to p.retries
// additional attempts, sleeping per the decay/attack schedule above.
func (p *pacer) call(fn func() (retry bool, err error)) error {
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		var retry bool
		retry, err = fn()
		if !retry {
			p.decay()
			return err
		}
		if attempt == p.retries {
			break
		}
		time.Sleep(p.attack())
	}
	return err
}

// retryableStatusCodes mirrors backend/webdav's retryErrorCodes: the
// set of HTTP statuses worth retrying with backoff rather than failing
// the caller immediately.
var retryableStatusCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
	509: true,
}

func shouldRetryStatus(status int) bool {
	return retryableStatusCodes[status]
}

// shouldRetryNetworkError reports whether a transport-level error
// (connection reset, timeout, ...) deserves a retry. Kept simple and
// conservative: any non-nil transport error is retried since it can't
// have produced a usable *http.Response.
func shouldRetryNetworkError(err error) bool {
	return err != nil
}
