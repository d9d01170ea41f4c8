// Package bus is the in-process status bus. Services publish small typed
// payloads under hierarchical topics; retained messages are replayed to late
// subscribers so a newly started reader sees the last known state at once.
package bus

import (
	"sync"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Wildcard tokens. "+" matches exactly one level, "#" matches the remainder
// (including zero levels) and must be the last token.
const (
	SingleWild = "+"
	MultiWild  = "#"
)

// Topic is a sequence of comparable tokens (normally strings or ints).
type Topic []any

// T builds a Topic and panics on a non-comparable token, since such a token
// could never be used as a trie key.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, int, int32, int64, uint, uint32, uint64, bool:
		default:
			panic("bus: non-comparable topic token")
		}
	}
	return Topic(tokens)
}

// String renders the topic with "/" separators, for logs.
func (t Topic) String() string {
	var out []byte
	for i, tok := range t {
		if i > 0 {
			out = append(out, '/')
		}
		switch v := tok.(type) {
		case string:
			out = append(out, v...)
		default:
			out = append(out, '?')
		}
	}
	return string(out)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
}

func (s *Subscription) Channel() <-chan *Message { return s.ch }

// deliver never blocks: when the queue is full the oldest message is dropped.
func (s *Subscription) deliver(m *Message) {
	for {
		select {
		case s.ch <- m:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Trie
// -----------------------------------------------------------------------------

type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok any, create bool) *node {
	if c, ok := n.children[tok]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// NewBus creates a bus whose subscriptions buffer queueLen messages each.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// NewMessage is a convenience constructor.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers msg to every matching subscription. A retained message
// with a nil payload clears the retained value for that topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		n := b.root
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}

	for _, s := range b.match(b.root, msg.Topic, nil) {
		s.deliver(msg)
	}
}

// match walks subscription patterns that accept the concrete topic.
func (b *Bus) match(n *node, topic Topic, out []*Subscription) []*Subscription {
	if n == nil {
		return out
	}
	if h := n.child(MultiWild, false); h != nil {
		out = append(out, h.subs...)
	}
	if len(topic) == 0 {
		return append(out, n.subs...)
	}
	out = b.match(n.child(topic[0], false), topic[1:], out)
	if topic[0] != SingleWild {
		out = b.match(n.child(SingleWild, false), topic[1:], out)
	}
	return out
}

// retainedFor collects retained messages whose concrete topic matches pattern.
func retainedFor(n *node, pattern Topic, out []*Message) []*Message {
	if n == nil {
		return out
	}
	if len(pattern) == 0 {
		if n.retained != nil {
			out = append(out, n.retained)
		}
		return out
	}
	switch pattern[0] {
	case MultiWild:
		return collectAll(n, out)
	case SingleWild:
		for _, c := range n.children {
			out = retainedFor(c, pattern[1:], out)
		}
		return out
	default:
		return retainedFor(n.child(pattern[0], false), pattern[1:], out)
	}
}

func collectAll(n *node, out []*Message) []*Message {
	if n.retained != nil {
		out = append(out, n.retained)
	}
	for _, c := range n.children {
		out = collectAll(c, out)
	}
	return out
}

func (b *Bus) subscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	for _, m := range retainedFor(b.root, sub.topic, nil) {
		sub.deliver(m)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		if n = n.child(tok, false); n == nil {
			return
		}
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connection groups the subscriptions owned by one service.
type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
}

func (b *Bus) NewConnection() *Connection {
	return &Connection{bus: b}
}

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.subscribe(sub)
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes every subscription owned by the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		c.bus.unsubscribe(s)
		close(s.ch)
	}
}
