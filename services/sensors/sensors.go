// Package sensors holds the periodic producers. Each Step samples one sensor,
// drops invalid readings, overwrites the reading slot(s) and, when the
// session is up, publishes the value retained. Producers never touch the
// actuators.
package sensors

import (
	"log/slog"
	"sync/atomic"

	"failsafe-go/errcode"
	"failsafe-go/services/hal"
	"failsafe-go/services/netlink"
	"failsafe-go/x/slot"
)

// Stats are monotonic per-producer counters.
type Stats struct {
	Samples   uint64
	Skipped   uint64
	Published uint64
	Dropped   uint64 // publish attempted and failed
}

type counters struct {
	samples, skipped, published, dropped atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Samples:   c.samples.Load(),
		Skipped:   c.skipped.Load(),
		Published: c.published.Load(),
		Dropped:   c.dropped.Load(),
	}
}

// publish sends one value if the session is up. The publisher logs the
// failure; the next period is the retry.
func publish(pub netlink.Publisher, c *counters, log *slog.Logger, topic string, v float64) {
	if pub == nil || !pub.Connected() {
		return
	}
	if !pub.Publish(topic, v, true) {
		c.dropped.Add(1)
		log.Debug("publish dropped", "topic", topic, "code", errcode.PublishFailed)
		return
	}
	c.published.Add(1)
	log.Debug("published", "topic", topic, "value", v)
}

// -----------------------------------------------------------------------------
// Gas
// -----------------------------------------------------------------------------

// GasProducer samples the gas sensor into the gas slot.
type GasProducer struct {
	sensor hal.GasSensor
	slot   *slot.Slot[float64]
	pub    netlink.Publisher
	topic  string
	log    *slog.Logger
	c      counters
}

func NewGasProducer(s hal.GasSensor, out *slot.Slot[float64], pub netlink.Publisher, topic string, log *slog.Logger) *GasProducer {
	if log == nil {
		log = slog.Default()
	}
	return &GasProducer{sensor: s, slot: out, pub: pub, topic: topic, log: log.With("component", "gas")}
}

// Step runs one sampling cycle.
func (p *GasProducer) Step() {
	r := p.sensor.ReadGas()
	if !r.Valid {
		p.c.skipped.Add(1)
		p.log.Warn("invalid gas reading, cycle skipped", "code", errcode.InvalidReading)
		return
	}
	p.c.samples.Add(1)
	p.slot.Write(r.Value)
	publish(p.pub, &p.c, p.log, p.topic, r.Value)
}

// Stats returns the producer's counters; safe from any goroutine.
func (p *GasProducer) Stats() Stats { return p.c.snapshot() }

// -----------------------------------------------------------------------------
// Climate
// -----------------------------------------------------------------------------

// ClimateTopics are the publish topics for the two climate readings.
type ClimateTopics struct {
	Temperature string
	Humidity    string
}

// ClimateProducer samples temperature and humidity as one pair.
type ClimateProducer struct {
	sensor hal.ClimateSensor
	temp   *slot.Slot[float64]
	hum    *slot.Slot[float64]
	pub    netlink.Publisher
	topics ClimateTopics
	log    *slog.Logger
	c      counters
}

func NewClimateProducer(s hal.ClimateSensor, temp, hum *slot.Slot[float64], pub netlink.Publisher, topics ClimateTopics, log *slog.Logger) *ClimateProducer {
	if log == nil {
		log = slog.Default()
	}
	return &ClimateProducer{sensor: s, temp: temp, hum: hum, pub: pub, topics: topics, log: log.With("component", "climate")}
}

// Step reads the pair once. A partial pair counts as a full failure.
func (p *ClimateProducer) Step() {
	t, h := p.sensor.ReadClimate()
	if !t.Valid || !h.Valid {
		p.c.skipped.Add(1)
		p.log.Warn("invalid climate reading, cycle skipped", "code", errcode.InvalidReading)
		return
	}
	p.c.samples.Add(1)
	p.temp.Write(t.Value)
	p.hum.Write(h.Value)
	publish(p.pub, &p.c, p.log, p.topics.Temperature, t.Value)
	publish(p.pub, &p.c, p.log, p.topics.Humidity, h.Value)
}

func (p *ClimateProducer) Stats() Stats { return p.c.snapshot() }
