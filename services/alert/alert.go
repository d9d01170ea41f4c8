// Package alert turns the latest gas reading into an alert level and drives
// the indicator and ventilation outputs from it, once per engine period.
//
// The classifier is level-triggered: every Step re-derives the level from the
// current reading alone. Both thresholds are inclusive and there is no
// deadband, so a reading hovering on a threshold will flap between levels.
package alert

import (
	"log/slog"

	"failsafe-go/bus"
	"failsafe-go/services/hal"
	"failsafe-go/types"
	"failsafe-go/x/slot"
	"failsafe-go/x/timex"
)

// TopicLevel carries the retained types.AlertState.
var TopicLevel = bus.T("alert", "level")

// Classify maps a gas reading to a level; g equal to a threshold counts as
// having crossed it.
func Classify(g float64, th types.Thresholds) types.AlertLevel {
	switch {
	case g >= th.Critical:
		return types.Critical
	case g >= th.Warning:
		return types.Warning
	default:
		return types.Normal
	}
}

// Output is what one Step decided and applied.
type Output struct {
	Gas       float64
	Level     types.AlertLevel
	Blink     bool
	Indicator types.IndicatorValue
	Duty      uint32
}

// Engine is the alert state machine. It holds only the current level and
// the blink phase; Step is called from a single task.
type Engine struct {
	gas  *slot.Slot[float64]
	th   types.Thresholds
	ind  hal.Indicator
	fan  hal.Ventilation
	conn *bus.Connection
	log  *slog.Logger

	level  types.AlertLevel
	blink  bool
	primed bool
}

// NewEngine starts in Normal with the blink flag clear. conn may be nil.
func NewEngine(gas *slot.Slot[float64], th types.Thresholds, ind hal.Indicator, fan hal.Ventilation, conn *bus.Connection, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{gas: gas, th: th, ind: ind, fan: fan, conn: conn, log: log.With("component", "alert")}
}

// Step runs one engine period. An empty gas slot reads as 0.
func (e *Engine) Step() Output {
	g := e.gas.ReadOr(0)
	next := Classify(g, e.th)
	if next == types.Critical {
		e.blink = !e.blink
	}

	out := Output{
		Gas:       g,
		Level:     next,
		Blink:     e.blink,
		Indicator: IndicatorFor(next, e.blink),
		Duty:      VentilationFor(next, e.fan.Max()),
	}
	e.ind.Apply(out.Indicator)
	e.fan.SetDuty(out.Duty)

	if !e.primed || next != e.level {
		e.log.Info("alert level", "from", e.level, "to", next, "gas", g)
		e.level = next
		e.primed = true
		if e.conn != nil {
			e.conn.Publish(e.conn.NewMessage(TopicLevel, types.AlertState{Level: next, Gas: g, TSms: timex.NowMs()}, true))
		}
	}
	return out
}

// Level is the level decided by the last Step. Not safe for concurrent use
// with Step; other goroutines should follow TopicLevel instead.
func (e *Engine) Level() types.AlertLevel { return e.level }
