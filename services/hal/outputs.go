package hal

import (
	"errors"
	"log/slog"
	"sync"

	"failsafe-go/types"
	"failsafe-go/x/mathx"
)

// -----------------------------------------------------------------------------
// Pin handles
// -----------------------------------------------------------------------------

// DigitalOut is one push-pull output at its physical level.
type DigitalOut interface {
	Set(level bool) error
}

// PWMOut drives a PWM pin with a physical duty in 0..Top().
type PWMOut interface {
	SetDuty(duty uint32) error
	Top() uint32
}

// -----------------------------------------------------------------------------
// RGB indicator
// -----------------------------------------------------------------------------

// RGB is a three-channel indicator on discrete pins. Apply switches channels
// off before switching any on, so two channels are never lit together. If a
// channel fails to switch off, nothing is switched on and the next Apply
// rewrites every pin.
type RGB struct {
	mu        sync.Mutex
	pins      [3]DigitalOut // red, green, blue; nil = not fitted
	activeLow bool
	cur       types.IndicatorValue
	primed    bool
	log       *slog.Logger
}

func NewRGB(red, green, blue DigitalOut, activeLow bool, log *slog.Logger) *RGB {
	if log == nil {
		log = slog.Default()
	}
	return &RGB{
		pins:      [3]DigitalOut{red, green, blue},
		activeLow: activeLow,
		log:       log.With("device", "indicator"),
	}
}

func (d *RGB) Apply(v types.IndicatorValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.primed && v == d.cur {
		return
	}
	want := [3]bool{v.Red, v.Green, v.Blue}
	have := [3]bool{d.cur.Red, d.cur.Green, d.cur.Blue}
	ok := true
	for _, on := range []bool{false, true} {
		for ch := range want {
			if want[ch] != on || (d.primed && have[ch] == on) {
				continue
			}
			if err := d.setLogical(types.Channel(ch), on); err != nil {
				ok = false
			}
		}
		if !ok {
			break // an off write failed; light nothing
		}
	}
	if !ok {
		d.primed = false
		return
	}
	d.cur = v
	d.primed = true
}

// Value returns the last applied state.
func (d *RGB) Value() types.IndicatorValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur
}

func (d *RGB) setLogical(ch types.Channel, on bool) error {
	p := d.pins[ch]
	if p == nil {
		return nil
	}
	level := on
	if d.activeLow {
		level = !level
	}
	if err := p.Set(level); err != nil {
		d.log.Warn("set failed", "channel", ch, "on", on, "err", err)
		return err
	}
	return nil
}

// Close turns every channel off.
func (d *RGB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for _, p := range d.pins {
		if p == nil {
			continue
		}
		if err := p.Set(d.activeLow); err != nil {
			errs = append(errs, err)
		}
	}
	d.cur = types.IndicatorValue{}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Ventilation fan
// -----------------------------------------------------------------------------

// Fan maps a logical duty 0..Max onto the PWM pin's 0..Top, inverting for
// active-low drivers.
type Fan struct {
	mu     sync.Mutex
	out    PWMOut
	info   types.VentilationInfo
	cur    uint32
	primed bool
	log    *slog.Logger
}

func NewFan(out PWMOut, info types.VentilationInfo, log *slog.Logger) *Fan {
	if log == nil {
		log = slog.Default()
	}
	return &Fan{out: out, info: info, log: log.With("device", "fan", "pin", info.Pin)}
}

func (f *Fan) Max() uint32 { return f.info.Max }

// --- helpers: clamp + logical->physical mapping (invert if ActiveLow) ---

func (f *Fan) clamp(duty uint32) uint32 {
	return mathx.Clamp(duty, 0, f.info.Max)
}

func (f *Fan) toPhys(logical uint32) uint32 {
	top := f.out.Top()
	p := mathx.Rescale(f.clamp(logical), f.info.Max, top)
	if !f.info.ActiveLow {
		return p
	}
	return top - p
}

func (f *Fan) SetDuty(duty uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	duty = f.clamp(duty)
	if f.primed && duty == f.cur {
		return
	}
	if err := f.out.SetDuty(f.toPhys(duty)); err != nil {
		f.log.Warn("set duty failed", "duty", duty, "err", err)
		return
	}
	f.cur = duty
	f.primed = true
}

// Value returns the last logical duty written successfully.
func (f *Fan) Value() types.VentilationValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.VentilationValue{Duty: f.cur}
}

// Close stops the fan.
func (f *Fan) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = 0
	return f.out.SetDuty(f.toPhys(0))
}
