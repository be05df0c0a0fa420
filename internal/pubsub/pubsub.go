// Package pubsub implements topic-keyed broadcast with glob-pattern
// subscriptions (spec §4.7): publishers never block on slow subscribers,
// and a lagging subscriber silently drops its oldest buffered value rather
// than stalling the publish.
package pubsub

import (
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/tenzoki/ipcbus/internal/envelope"
	"github.com/tenzoki/ipcbus/internal/errs"
	"github.com/tenzoki/ipcbus/internal/router"
)

// Receiver is a handle to a single subscription's bounded broadcast
// channel.
type Receiver struct {
	id     string
	ch     chan *envelope.Envelope
	sendMu sync.Mutex
	closed atomic.Bool
}

// Recv blocks for the next published value. ReceiveFailed is returned once
// the receiver's channel has been closed by Unsubscribe.
func (rc *Receiver) Recv() (*envelope.Envelope, error) {
	env, ok := <-rc.ch
	if !ok {
		return nil, errs.ErrReceiveFailed
	}
	return env, nil
}

// TryRecv returns immediately: the next value if one is buffered, or nil
// with no error if the channel is empty. A lag condition never surfaces to
// the caller; try_recv simply advances past it.
func (rc *Receiver) TryRecv() (*envelope.Envelope, error) {
	select {
	case env, ok := <-rc.ch:
		if !ok {
			return nil, errs.ErrReceiveFailed
		}
		return env, nil
	default:
		return nil, nil
	}
}

func (rc *Receiver) deliver(env *envelope.Envelope) bool {
	if rc.closed.Load() {
		return false
	}
	rc.sendMu.Lock()
	defer rc.sendMu.Unlock()
	select {
	case rc.ch <- env:
		return true
	default:
		select {
		case <-rc.ch:
		default:
		}
		select {
		case rc.ch <- env:
			return true
		default:
			return false
		}
	}
}

func (rc *Receiver) close() {
	if rc.closed.CompareAndSwap(false, true) {
		close(rc.ch)
	}
}

type patternSub struct {
	id   string
	re   *regexp.Regexp
	recv *Receiver
}

// PubSub broadcasts envelopes to exact-topic and glob-pattern subscribers.
type PubSub struct {
	mu         sync.RWMutex
	bufferSize int
	exact      map[string][]*Receiver
	patterns   []patternSub
	nextSubID  uint64
}

// New builds a PubSub whose per-subscriber channels are buffered to
// bufferSize entries.
func New(bufferSize int) *PubSub {
	return &PubSub{
		bufferSize: bufferSize,
		exact:      make(map[string][]*Receiver),
	}
}

// Subscribe attaches to topic. If topic contains glob metacharacters a
// pattern subscription is created; otherwise a receiver is attached to the
// exact-topic channel (created on first use). InvalidPattern is returned on
// an empty topic or a glob compile failure.
func (p *PubSub) Subscribe(topic string) (*Receiver, error) {
	if topic == "" {
		return nil, &errs.InvalidPattern{Cause: errs.ErrInvalidEnvelope}
	}
	rc := &Receiver{ch: make(chan *envelope.Envelope, p.bufferSize)}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !containsGlobChars(topic) {
		rc.id = topic
		p.exact[topic] = append(p.exact[topic], rc)
		return rc, nil
	}

	re, err := compilePattern(topic)
	if err != nil {
		return nil, err
	}
	p.nextSubID++
	rc.id = subscriptionID(p.nextSubID)
	p.patterns = append(p.patterns, patternSub{id: rc.id, re: re, recv: rc})
	return rc, nil
}

// Unsubscribe removes the pattern subscription identified by subscriberID.
// SubscriptionNotFound is returned otherwise. Exact-topic receivers are not
// addressable this way; they close implicitly when dropped by the caller.
func (p *PubSub) Unsubscribe(subscriberID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, sub := range p.patterns {
		if sub.id == subscriberID {
			sub.recv.close()
			p.patterns = append(p.patterns[:i], p.patterns[i+1:]...)
			return nil
		}
	}
	return errs.ErrSubscriptionNotFound
}

// Publish delivers env to every exact-topic receiver for topic and every
// pattern subscription whose matcher accepts topic, returning the number of
// receivers the copy was successfully sent to. Publish never blocks on a
// lagging subscriber.
func (p *PubSub) Publish(topic string, env *envelope.Envelope) int {
	p.mu.RLock()
	receivers := append([]*Receiver(nil), p.exact[topic]...)
	for _, sub := range p.patterns {
		if sub.re.MatchString(topic) {
			receivers = append(receivers, sub.recv)
		}
	}
	p.mu.RUnlock()

	delivered := 0
	for _, rc := range receivers {
		if rc.deliver(env.Clone()) {
			delivered++
		}
	}
	return delivered
}

func containsGlobChars(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := router.CompileGlobPattern(pattern)
	if err != nil {
		return nil, err
	}
	return re, nil
}

func subscriptionID(n uint64) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "sub-0"
	}
	buf := make([]byte, 0, 16)
	for n > 0 {
		buf = append([]byte{alphabet[n%uint64(len(alphabet))]}, buf...)
		n /= uint64(len(alphabet))
	}
	return "sub-" + string(buf)
}
