// Package netlink keeps the device's uplink alive: link association first,
// then a publish session on top of it. The Supervisor is pumped from a
// single control loop through Poll; any goroutine may ask Connected or
// Publish without blocking on that loop.
package netlink

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"failsafe-go/bus"
	"failsafe-go/errcode"
	"failsafe-go/types"
	"failsafe-go/x/timex"
)

// -----------------------------------------------------------------------------
// Boundaries
// -----------------------------------------------------------------------------

// Link is the layer below the session (Wi-Fi association, a wired interface).
type Link interface {
	// Associate blocks until the link is usable, ctx is done, or the
	// implementation's own timeout expires.
	Associate(ctx context.Context) error
	// Up is a cheap, non-blocking liveness check.
	Up() bool
	String() string
}

// Session is a publish session over an associated link.
type Session interface {
	Connect(ctx context.Context, clientID string) error
	// Pump services keep-alives and reports a dead session as an error.
	// It must not block.
	Pump() error
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
	// Close tears the session down, best effort.
	Close()
}

// Publisher is what producers see of the supervisor.
type Publisher interface {
	Connected() bool
	Publish(topic string, value float64, retained bool) bool
}

// TopicState carries the retained types.NetState.
var TopicState = bus.T("net", "state")

// FormatValue renders a reading as the decimal string sent on the wire.
func FormatValue(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// -----------------------------------------------------------------------------
// Supervisor
// -----------------------------------------------------------------------------

const (
	bitLink uint32 = 1 << iota
	bitSession
)

// Options tune a Supervisor; the zero value is usable.
type Options struct {
	// ClientPrefix is prepended to the random per-attempt client id.
	ClientPrefix string
	// NewClientID overrides the id generator (tests).
	NewClientID func() string
	// PublishTimeout bounds a single Publish. Default 2 s.
	PublishTimeout time.Duration
	// Conn, when set, receives a retained types.NetState on every transition.
	Conn   *bus.Connection
	Logger *slog.Logger
}

// Stats are monotonic counters for the reporter.
type Stats struct {
	Associations    uint64
	ConnectAttempts uint64
	ConnectFailures uint64
	Published       uint64
	PublishFailures uint64
}

// Supervisor keeps the link and the publish session alive. Poll advances it
// one step; Connected and Publish may be called from any goroutine.
type Supervisor struct {
	link Link
	sess Session
	opts Options
	log  *slog.Logger

	state atomic.Uint32

	assoc, attempts, connFails, published, pubFails atomic.Uint64
}

// NewSupervisor starts in the down/down state.
func NewSupervisor(link Link, sess Session, opts Options) *Supervisor {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.NewClientID == nil {
		opts.NewClientID = NewClientID(opts.ClientPrefix)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		link: link,
		sess: sess,
		opts: opts,
		log:  log.With("component", "netlink"),
	}
	s.publishState("init", nil)
	return s
}

// State returns a consistent snapshot; SessionUp implies LinkUp.
func (s *Supervisor) State() types.ConnectivityState {
	v := s.state.Load()
	return types.ConnectivityState{LinkUp: v&bitLink != 0, SessionUp: v&bitSession != 0}
}

// Connected reports whether the session is up.
func (s *Supervisor) Connected() bool { return s.state.Load()&bitSession != 0 }

func (s *Supervisor) Stats() Stats {
	return Stats{
		Associations:    s.assoc.Load(),
		ConnectAttempts: s.attempts.Load(),
		ConnectFailures: s.connFails.Load(),
		Published:       s.published.Load(),
		PublishFailures: s.pubFails.Load(),
	}
}

func (s *Supervisor) set(link, session bool) {
	var v uint32
	if link {
		v |= bitLink
		if session {
			v |= bitSession
		}
	}
	s.state.Store(v)
}

// Poll advances the state machine by at most one step. It blocks only while
// associating the link. Failures leave the state where it was; the next Poll
// is the retry.
func (s *Supervisor) Poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("poll panicked; restarting from link", "panic", r)
			s.sess.Close()
			s.set(false, false)
			s.publishState("recovered", fmt.Errorf("%v", r))
		}
	}()

	st := s.State()
	if st.LinkUp && !s.link.Up() {
		if st.SessionUp {
			s.sess.Close()
		}
		s.set(false, false)
		s.log.Warn("link lost", "link", s.link.String(), "code", errcode.LinkDown)
		s.publishState("link_lost", nil)
		return
	}

	switch {
	case !st.LinkUp:
		if err := s.link.Associate(ctx); err != nil {
			s.log.Warn("link association failed", "link", s.link.String(), "code", errcode.Of(err), "err", err)
			s.publishState("associate_failed", err)
			return
		}
		s.assoc.Add(1)
		s.set(true, false)
		s.log.Info("link up", "link", s.link.String())
		s.publishState("link_up", nil)

	case !st.SessionUp:
		id := s.opts.NewClientID()
		s.attempts.Add(1)
		if err := s.sess.Connect(ctx, id); err != nil {
			s.connFails.Add(1)
			s.log.Warn("session connect failed", "client_id", id, "code", errcode.ConnectFailed, "err", err)
			s.publishState("connect_failed", err)
			return
		}
		s.set(true, true)
		s.log.Info("session up", "client_id", id)
		s.publishState("session_up", nil)

	default:
		if err := s.sess.Pump(); err != nil {
			s.sess.Close()
			s.set(true, false)
			s.log.Warn("session lost", "code", errcode.SessionDown, "err", err)
			s.publishState("session_lost", err)
		}
	}
}

// Publish sends value as a decimal string. It returns false when the session
// is down or the send fails; nothing is queued.
func (s *Supervisor) Publish(topic string, value float64, retained bool) bool {
	if !s.Connected() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PublishTimeout)
	defer cancel()
	if err := s.sess.Publish(ctx, topic, []byte(FormatValue(value)), retained); err != nil {
		s.pubFails.Add(1)
		s.log.Warn("publish failed", "topic", topic, "code", errcode.PublishFailed, "err", err)
		return false
	}
	s.published.Add(1)
	return true
}

// Close drops the session and reports both layers down.
func (s *Supervisor) Close() {
	if s.Connected() {
		s.sess.Close()
	}
	s.set(false, false)
	s.publishState("closed", nil)
}

func (s *Supervisor) publishState(status string, err error) {
	if s.opts.Conn == nil {
		return
	}
	ns := types.NetState{ConnectivityState: s.State(), Status: status, TSms: timex.NowMs()}
	if err != nil {
		ns.Error = err.Error()
	}
	s.opts.Conn.Publish(s.opts.Conn.NewMessage(TopicState, ns, true))
}

var _ Publisher = (*Supervisor)(nil)
