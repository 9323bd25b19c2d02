package realtime

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSlowSubscriber ends a subscription whose buffer overflowed. The client has
	// missed updates and must resync from a fresh snapshot.
	ErrSlowSubscriber = errors.New("realtime: subscriber fell behind")
)

// sink buffers live values for one subscriber between publishers and its pump.
type sink[T any] struct {
	queue chan T
	stop  chan struct{}
	once  sync.Once
	err   error
}

func newSink[T any](buffer int) *sink[T] {
	return &sink[T]{queue: make(chan T, buffer), stop: make(chan struct{})}
}

func (s *sink[T]) offer(v T) bool {
	select {
	case s.queue <- v:
		return true
	default:
		return false
	}
}

func (s *sink[T]) halt(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.stop)
	})
}

func (s *sink[T]) failure() error {
	select {
	case <-s.stop:
		return s.err
	default:
		return nil
	}
}

type halter interface {
	halt(err error)
	failure() error
}

// Subscription delivers a snapshot followed by live values on C. C is closed when
// the subscription ends; Err then reports why, nil for Close or cancellation.
type Subscription[T any] struct {
	C    <-chan T
	ctrl halter
}

func (s *Subscription[T]) Close() {
	s.ctrl.halt(nil)
}

func (s *Subscription[T]) Err() error {
	return s.ctrl.failure()
}

// fold turns a batch of source values into emitted values. It returns false when
// emission stopped.
type fold[T, U any] func(batch []T, emit func(U) bool) bool

func pump[T, U any](ctx context.Context, s *sink[T], out chan<- U, snapshot func(context.Context) ([]T, error), f fold[T, U], release func()) {
	defer close(out)
	defer release()
	defer s.halt(nil)

	emit := func(v U) bool {
		select {
		case out <- v:
			return true
		case <-s.stop:
			return false
		case <-ctx.Done():
			return false
		}
	}

	items, err := snapshot(ctx)
	if err != nil {
		s.halt(err)
		return
	}
	if !f(items, emit) {
		return
	}
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case v := <-s.queue:
			if !f([]T{v}, emit) {
				return
			}
		}
	}
}

// topic is a keyed set of sinks. Callers hold the broker lock.
type topic[K comparable, T any] struct {
	subs map[K]map[*sink[T]]struct{}
}

func newTopic[K comparable, T any]() topic[K, T] {
	return topic[K, T]{subs: make(map[K]map[*sink[T]]struct{})}
}

func (t topic[K, T]) add(key K, s *sink[T]) {
	set, ok := t.subs[key]
	if !ok {
		set = make(map[*sink[T]]struct{})
		t.subs[key] = set
	}
	set[s] = struct{}{}
}

func (t topic[K, T]) remove(key K, s *sink[T]) {
	set, ok := t.subs[key]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(t.subs, key)
	}
}

// publish offers v to every sink under key and drops the ones that are full.
func (t topic[K, T]) publish(key K, v T) int {
	dropped := 0
	for s := range t.subs[key] {
		if s.offer(v) {
			continue
		}
		t.remove(key, s)
		s.halt(ErrSlowSubscriber)
		dropped++
	}
	return dropped
}

func (t topic[K, T]) count() int {
	n := 0
	for _, set := range t.subs {
		n += len(set)
	}
	return n
}
