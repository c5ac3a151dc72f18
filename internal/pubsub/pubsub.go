package pubsub

import (
	"errors"
	"sync"
)

const DefaultBufSize = 16

var ErrPublisherClosed = errors.New("publisher closed")

// A Publisher fans values out to any number of receivers. Publishing never
// blocks: a receiver that falls behind has its oldest pending value dropped.
type Publisher[T any] struct {
	mu        sync.Mutex
	receivers map[*Receiver[T]]struct{}
	closed    bool
}

func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{receivers: make(map[*Receiver[T]]struct{})}
}

func (p *Publisher[T]) Subscribe() (*Receiver[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPublisherClosed
	}
	r := &Receiver[T]{p: p, ch: make(chan T, DefaultBufSize)}
	p.receivers[r] = struct{}{}
	return r, nil
}

// Publish sends the value to every receiver without blocking.
func (p *Publisher[T]) Publish(value T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for r := range p.receivers {
		select {
		case r.ch <- value:
		default:
			// Buffer full: drop the oldest value to make room for the newest.
			select {
			case <-r.ch:
			default:
			}
			select {
			case r.ch <- value:
			default:
			}
		}
	}
}

// Close idempotently shuts down the publisher, closing all receiver channels.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for r := range p.receivers {
		close(r.ch)
	}
	p.receivers = nil
}

// A Receiver consumes values from a Publisher.
type Receiver[T any] struct {
	p  *Publisher[T]
	ch chan T
}

// Receive returns the channel of published values. It is closed when the
// publisher closes or the receiver unsubscribes.
func (r *Receiver[T]) Receive() <-chan T {
	return r.ch
}

// Close unsubscribes the receiver from its publisher.
func (r *Receiver[T]) Close() {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	if r.p.closed {
		return
	}
	if _, ok := r.p.receivers[r]; ok {
		delete(r.p.receivers, r)
		close(r.ch)
	}
}
