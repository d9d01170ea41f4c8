// Package report logs a periodic status line: the latest slot values, the
// alert level and the connectivity state. It is a passive reader; nothing it
// does feeds back into the pipeline.
package report

import (
	"context"
	"log/slog"

	"failsafe-go/bus"
	"failsafe-go/services/alert"
	"failsafe-go/services/netlink"
	"failsafe-go/services/sensors"
	"failsafe-go/types"
	"failsafe-go/x/slot"
)

// Slots are the reading slots the reporter peeks at; nil slots report n/a.
type Slots struct {
	Gas, Temperature, Humidity *slot.Slot[float64]
}

// NetCounter is satisfied by *netlink.Supervisor.
type NetCounter interface {
	Stats() netlink.Stats
}

// ProducerCounter is satisfied by the sensors producers.
type ProducerCounter interface {
	Stats() sensors.Stats
}

type namedProducer struct {
	name string
	p    ProducerCounter
}

// ProducerStats is one producer's counters in a Status.
type ProducerStats struct {
	Name string
	sensors.Stats
}

// Status is one report.
type Status struct {
	Gas         types.Reading
	Temperature types.Reading
	Humidity    types.Reading
	Level       types.AlertLevel
	Net         types.NetState
	NetStats    netlink.Stats
	Producers   []ProducerStats
}

// Reporter is the passive status task. It owns its bus connection.
type Reporter struct {
	slots    Slots
	conn     *bus.Connection
	netSub   *bus.Subscription
	alertSub *bus.Subscription
	log      *slog.Logger

	netCounter NetCounter
	producers  []namedProducer

	net   types.NetState
	alert types.AlertState
}

// New subscribes to the retained state topics straight away so the first
// report already reflects them.
func New(conn *bus.Connection, slots Slots, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		slots:    slots,
		conn:     conn,
		netSub:   conn.Subscribe(netlink.TopicState),
		alertSub: conn.Subscribe(alert.TopicLevel),
		log:      log.With("component", "report"),
	}
}

// WatchNet adds the supervisor's counters to the status line. Call before
// the first Step.
func (r *Reporter) WatchNet(c NetCounter) { r.netCounter = c }

// WatchProducer adds a producer's counters under name. Call before the first
// Step.
func (r *Reporter) WatchProducer(name string, p ProducerCounter) {
	r.producers = append(r.producers, namedProducer{name: name, p: p})
}

func read(s *slot.Slot[float64]) types.Reading {
	if s == nil {
		return types.Invalid
	}
	if v, ok := s.TryRead(); ok {
		return types.NewReading(v)
	}
	return types.Invalid
}

// drain takes the newest state messages without blocking.
func (r *Reporter) drain() {
	for {
		select {
		case m, ok := <-r.netSub.Channel():
			if !ok {
				return
			}
			if ns, ok := m.Payload.(types.NetState); ok {
				r.net = ns
			}
		case m, ok := <-r.alertSub.Channel():
			if !ok {
				return
			}
			if as, ok := m.Payload.(types.AlertState); ok {
				r.alert = as
			}
		default:
			return
		}
	}
}

// Snapshot collects the current status.
func (r *Reporter) Snapshot() Status {
	r.drain()
	st := Status{
		Gas:         read(r.slots.Gas),
		Temperature: read(r.slots.Temperature),
		Humidity:    read(r.slots.Humidity),
		Level:       r.alert.Level,
		Net:         r.net,
	}
	if r.netCounter != nil {
		st.NetStats = r.netCounter.Stats()
	}
	for _, np := range r.producers {
		st.Producers = append(st.Producers, ProducerStats{Name: np.name, Stats: np.p.Stats()})
	}
	return st
}

func attr(key string, rd types.Reading) slog.Attr {
	if !rd.Valid {
		return slog.String(key, "n/a")
	}
	return slog.Float64(key, rd.Value)
}

// Step logs one status line.
func (r *Reporter) Step(ctx context.Context) {
	st := r.Snapshot()
	attrs := []slog.Attr{
		attr("gas", st.Gas),
		attr("temp", st.Temperature),
		attr("hum", st.Humidity),
		slog.String("alert", st.Level.String()),
		slog.String("net", st.Net.Level()),
		slog.String("net_status", st.Net.Status),
	}
	if r.netCounter != nil {
		attrs = append(attrs, slog.Group("session",
			slog.Uint64("associations", st.NetStats.Associations),
			slog.Uint64("connects", st.NetStats.ConnectAttempts),
			slog.Uint64("connect_fails", st.NetStats.ConnectFailures),
			slog.Uint64("published", st.NetStats.Published),
			slog.Uint64("publish_fails", st.NetStats.PublishFailures),
		))
	}
	for _, p := range st.Producers {
		attrs = append(attrs, slog.Group(p.Name,
			slog.Uint64("samples", p.Samples),
			slog.Uint64("skipped", p.Skipped),
			slog.Uint64("published", p.Published),
			slog.Uint64("dropped", p.Dropped),
		))
	}
	r.log.LogAttrs(ctx, slog.LevelInfo, "status", attrs...)
}

// Close drops the reporter's subscriptions.
func (r *Reporter) Close() { r.conn.Disconnect() }
