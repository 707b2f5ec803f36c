package stream

import (
	"errors"
	"sync"
)

// defaultMaxTotal caps concurrent streams across all clients.
const defaultMaxTotal = 1000

var (
	errPerIPLimit = errors.New("too many concurrent streams from this address")
	errTotalLimit = errors.New("server stream capacity reached")
)

// streamLimiter counts open distance streams per client IP and in total.
type streamLimiter struct {
	mu     sync.Mutex
	perIP  map[string]int
	open   int
	maxIP  int
	maxAll int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	if maxTotal <= 0 {
		maxTotal = defaultMaxTotal
	}
	return &streamLimiter{
		perIP:  make(map[string]int),
		maxIP:  maxPerIP,
		maxAll: maxTotal,
	}
}

// acquire takes a slot for ip. The returned release must be called exactly
// once when the stream ends. The error says which limit was hit.
func (l *streamLimiter) acquire(ip string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.open >= l.maxAll:
		return nil, errTotalLimit
	case l.perIP[ip] >= l.maxIP:
		return nil, errPerIPLimit
	}
	l.perIP[ip]++
	l.open++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, nil
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.open--
	if l.perIP[ip]--; l.perIP[ip] <= 0 {
		delete(l.perIP, ip)
	}
}

// count returns the number of open streams for ip.
func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}
