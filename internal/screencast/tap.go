// Package screencast taps presented frames for capture consumers. Each
// output has a latest-frame mailbox: a slow consumer sees the newest frame,
// never a backlog, and the compositor loop never blocks on delivery.
package screencast

import (
	"sync"
	"time"

	"github.com/loomwm/loom/internal/core"
	"github.com/loomwm/loom/internal/logger"
)

// Frame is one presented frame as seen by the tap.
type Frame struct {
	Output    string
	Buffer    core.BufferToken
	Presented time.Time
}

type subscriber struct {
	ch          chan Frame
	output      string // empty matches every output
	minInterval time.Duration
	lastSent    map[string]time.Time
}

// Tap fans presented frames out to subscribers. Implements
// core.FramePublisher; Publish is called from the loop goroutine.
type Tap struct {
	mu              sync.Mutex
	subs            map[*subscriber]struct{}
	defaultInterval time.Duration
	closed          bool
}

// TapOption configures a Tap.
type TapOption func(*Tap)

// WithDefaultMinInterval rate-limits every subscription that does not set
// its own interval. Zero means unlimited.
func WithDefaultMinInterval(d time.Duration) TapOption {
	return func(t *Tap) { t.defaultInterval = d }
}

func NewTap(opts ...TapOption) *Tap {
	t := &Tap{subs: make(map[*subscriber]struct{})}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscriber)

// WithOutput limits the subscription to one output.
func WithOutput(name string) SubscribeOption {
	return func(s *subscriber) { s.output = name }
}

// WithMinInterval rate-limits delivery per output. Frames arriving inside
// the interval are dropped for that subscriber.
func WithMinInterval(d time.Duration) SubscribeOption {
	return func(s *subscriber) { s.minInterval = d }
}

// Subscribe registers a consumer. The returned channel holds at most one
// frame; a new frame replaces an unconsumed one. cancel removes the
// subscription and closes the channel.
func (t *Tap) Subscribe(opts ...SubscribeOption) (frames <-chan Frame, cancel func()) {
	sub := &subscriber{
		ch:          make(chan Frame, 1),
		minInterval: t.defaultInterval,
		lastSent:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(sub)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	logger.Debug("screencast subscriber added", "output", sub.output)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			t.mu.Lock()
			if _, ok := t.subs[sub]; ok {
				delete(t.subs, sub)
				close(sub.ch)
			}
			t.mu.Unlock()
		})
	}
}

// Publish implements core.FramePublisher.
func (t *Tap) Publish(output string, buf core.BufferToken) {
	t.publishAt(output, buf, time.Now())
}

func (t *Tap) publishAt(output string, buf core.BufferToken, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	frame := Frame{Output: output, Buffer: buf, Presented: now}
	for sub := range t.subs {
		if sub.output != "" && sub.output != output {
			continue
		}
		if sub.minInterval > 0 {
			if last, ok := sub.lastSent[output]; ok && now.Sub(last) < sub.minInterval {
				continue
			}
		}
		sub.lastSent[output] = now

		// Latest-frame mailbox: drop the stale frame, keep the new one.
		select {
		case sub.ch <- frame:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- frame:
			default:
			}
		}
	}
}

// Close drops all subscribers and closes their channels. Further publishes
// are ignored.
func (t *Tap) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for sub := range t.subs {
		close(sub.ch)
	}
	t.subs = make(map[*subscriber]struct{})
}
