// Package bus is a small in-process topic bus with MQTT-style wildcards and
// retained messages.
package bus

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

const (
	// SingleLevel matches exactly one token.
	SingleLevel = "+"
	// MultiLevel matches the remainder of a topic (zero or more tokens).
	// It is only valid as the final token of a subscription.
	MultiLevel = "#"
)

// Topic is a sequence of tokens, e.g. {"report", "rp2040"}.
type Topic []string

// T builds a topic from tokens.
func T(tokens ...string) Topic { return Topic(tokens) }

func (t Topic) String() string { return strings.Join(t, "/") }

// Match reports whether the concrete topic t matches the filter f.
func (t Topic) Match(f Topic) bool {
	for i, tok := range f {
		if tok == MultiLevel {
			return true
		}
		if i >= len(t) {
			return false
		}
		if tok != SingleLevel && tok != t[i] {
			return false
		}
	}
	return len(t) == len(f)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the sender asked for a reply.
func (m *Message) CanReply() bool { return m != nil && len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	filter Topic
	ch     chan *Message
	conn   *Connection
	closed bool // guarded by Bus.mu
}

func (s *Subscription) Topic() Topic             { return s.filter }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[string]*node
	subs     []*Subscription
}

func (n *node) child(tok string, create bool) *node {
	if c, ok := n.children[tok]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu       sync.Mutex
	root     *node
	retained map[string]*Message
	qLen     int
	drops    atomic.Uint64
	replySeq atomic.Uint64
}

// New creates a bus with the given per-subscription queue length.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{
		root:     &node{},
		retained: make(map[string]*Message),
		qLen:     queueLen,
	}
}

// Drops returns the number of messages discarded because a queue was full.
func (b *Bus) Drops() uint64 { return b.drops.Load() }

// NewMessage is a convenience constructor.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// caller holds b.mu
func (b *Bus) deliver(sub *Subscription, msg *Message) {
	if sub.closed {
		return
	}
	select {
	case sub.ch <- msg:
		return
	default:
	}
	// drop oldest
	select {
	case <-sub.ch:
		b.drops.Add(1)
	default:
	}
	select {
	case sub.ch <- msg:
	default:
		b.drops.Add(1)
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.filter {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	for _, m := range b.retained {
		if m.Topic.Match(sub.filter) {
			b.deliver(sub, m)
		}
	}
}

// collect walks the trie gathering subscriptions whose filter matches topic.
func collect(n *node, topic Topic, out []*Subscription) []*Subscription {
	if h := n.child(MultiLevel, false); h != nil {
		out = append(out, h.subs...)
	}
	if len(topic) == 0 {
		return append(out, n.subs...)
	}
	if c := n.child(topic[0], false); c != nil {
		out = collect(c, topic[1:], out)
	}
	if c := n.child(SingleLevel, false); c != nil {
		out = collect(c, topic[1:], out)
	}
	return out
}

// Publish delivers a message to all matching subscribers. Retained messages
// are stored per topic; a retained message with a nil payload clears it.
func (b *Bus) Publish(msg *Message) {
	if msg == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		key := msg.Topic.String()
		if msg.Payload == nil {
			delete(b.retained, key)
		} else {
			b.retained[key] = msg
		}
	}
	for _, sub := range collect(b.root, msg.Topic, nil) {
		b.deliver(sub, msg)
	}
}

// Retained returns the retained message for an exact topic, if any.
func (b *Bus) Retained(topic Topic) (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.retained[topic.String()]
	return m, ok
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)

	n := b.root
	stack := make([]*node, 0, len(sub.filter))
	for _, tok := range sub.filter {
		c := n.child(tok, false)
		if c == nil {
			return
		}
		stack = append(stack, n)
		n = c
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty nodes bottom-up.
	for i := len(sub.filter) - 1; i >= 0; i-- {
		parent, key := stack[i], sub.filter[i]
		c := parent.children[key]
		if len(c.subs) != 0 || len(c.children) != 0 {
			break
		}
		delete(parent.children, key)
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }
func (c *Connection) Bus() *Bus  { return c.bus }

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection. Retained
// messages matching the filter are queued immediately.
func (c *Connection) Subscribe(filter Topic) *Subscription {
	sub := &Subscription{
		filter: append(Topic(nil), filter...),
		ch:     make(chan *Message, c.bus.qLen),
		conn:   c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call twice.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// Disconnect closes all subscriptions owned by the connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		c.bus.unsubscribe(sub)
	}
}

// Reply publishes payload to the request's ReplyTo topic.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if !req.CanReply() {
		return
	}
	c.bus.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}

// newReplyTopic returns a unique topic suitable for ReplyTo.
func (c *Connection) newReplyTopic() Topic {
	return T("_reply", c.id, strconv.FormatUint(c.bus.replySeq.Add(1), 10))
}

// Request publishes payload on topic and waits for the first reply.
func (c *Connection) Request(ctx context.Context, topic Topic, payload any) (*Message, error) {
	replyTo := c.newReplyTopic()
	sub := c.Subscribe(replyTo)
	defer c.Unsubscribe(sub)

	c.Publish(&Message{Topic: topic, Payload: payload, ReplyTo: replyTo})
	select {
	case m := <-sub.Channel():
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
