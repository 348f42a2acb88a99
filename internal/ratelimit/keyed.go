package ratelimit

import (
	"container/list"
	"sync"
)

// DefaultMaxKeys bounds KeyedLimiter memory when the caller does not.
const DefaultMaxKeys = 4096

type keyedEntry struct {
	key    string
	bucket *TokenBucket
}

// KeyedLimiter keeps one TokenBucket per key (for example a client IP).
//
// At most maxKeys buckets are retained; the least recently used key is evicted
// when a new key arrives, so a spray of distinct keys cannot grow memory
// without bound. An evicted key starts again with a full bucket.
type KeyedLimiter struct {
	clock    Clock
	capacity int64
	rate     int64
	maxKeys  int

	// OnEvict, if set, is called once per evicted key outside the lock.
	OnEvict func(key string)

	mu      sync.Mutex
	buckets map[string]*list.Element
	lru     *list.List
}

// NewKeyedLimiter returns a limiter allowing burst tokens per key, refilled at
// perSecond. A perSecond <= 0 disables limiting.
func NewKeyedLimiter(clock Clock, burst, perSecond int64, maxKeys int) *KeyedLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	if burst <= 0 {
		burst = perSecond
	}
	return &KeyedLimiter{
		clock:    clock,
		capacity: burst,
		rate:     perSecond,
		maxKeys:  maxKeys,
		buckets:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Allow consumes one token from key's bucket.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || l.rate <= 0 {
		return true
	}
	return l.bucket(key).Allow(1)
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *KeyedLimiter) bucket(key string) *TokenBucket {
	var evicted string
	var didEvict bool

	l.mu.Lock()
	if elem, ok := l.buckets[key]; ok {
		l.lru.MoveToFront(elem)
		b := elem.Value.(*keyedEntry).bucket
		l.mu.Unlock()
		return b
	}

	if len(l.buckets) >= l.maxKeys {
		if elem := l.lru.Back(); elem != nil {
			evicted = elem.Value.(*keyedEntry).key
			l.lru.Remove(elem)
			delete(l.buckets, evicted)
			didEvict = true
		}
	}

	b := NewTokenBucket(l.clock, l.capacity, l.rate)
	l.buckets[key] = l.lru.PushFront(&keyedEntry{key: key, bucket: b})
	onEvict := l.OnEvict
	l.mu.Unlock()

	if didEvict && onEvict != nil {
		onEvict(evicted)
	}
	return b
}
