package priority

import (
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	HighPush int64
	LowPush  int64
	HighPop  int64
	LowPop   int64
}

type Queue interface {
	TryPushHigh(f any) bool
	TryPushLow(f any) bool
	Pop() (any, bool)
	Close()
	Stats() Stats
}

// PriorityQueue carries control signals on the high lane so a stop or an
// error can overtake a backlog of audio frames on the low lane.
type PriorityQueue struct {
	high     chan any
	low      chan any
	fairness int
	closed   chan struct{}
	once     sync.Once
	highPush int64
	lowPush  int64
	highPop  int64
	lowPop   int64
}

func New(highCap, lowCap, fairness int) *PriorityQueue {
	if fairness <= 0 {
		fairness = 3
	}
	return &PriorityQueue{
		high:     make(chan any, highCap),
		low:      make(chan any, lowCap),
		fairness: fairness,
		closed:   make(chan struct{}),
	}
}

func (q *PriorityQueue) TryPushHigh(f any) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.high <- f:
		atomic.AddInt64(&q.highPush, 1)
		return true
	default:
		return false
	}
}

func (q *PriorityQueue) TryPushLow(f any) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.low <- f:
		atomic.AddInt64(&q.lowPush, 1)
		return true
	default:
		return false
	}
}

// Pop drains the high lane before the low lane and returns false only
// after Close once both lanes are empty.
func (q *PriorityQueue) Pop() (any, bool) {
	for {
		select {
		case f := <-q.high:
			atomic.AddInt64(&q.highPop, 1)
			return f, true
		default:
		}
		if q.fairness > 0 {
			select {
			case f := <-q.low:
				atomic.AddInt64(&q.lowPop, 1)
				return f, true
			default:
			}
		}
		select {
		case <-q.closed:
			return nil, false
		default:
		}
		time.Sleep(time.Millisecond)
	}
}

// Close rejects further pushes and unblocks Pop. Idempotent.
func (q *PriorityQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}

func (q *PriorityQueue) Stats() Stats {
	return Stats{
		HighPush: atomic.LoadInt64(&q.highPush),
		LowPush:  atomic.LoadInt64(&q.lowPush),
		HighPop:  atomic.LoadInt64(&q.highPop),
		LowPop:   atomic.LoadInt64(&q.lowPop),
	}
}
