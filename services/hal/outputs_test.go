package hal

import (
	"errors"
	"testing"

	"failsafe-go/types"
)

// recorder collects pin writes from all three channels in order.
type recorder struct {
	log   []string
	state map[string]bool
}

func newRecorder() *recorder { return &recorder{state: map[string]bool{}} }

type recPin struct {
	name string
	r    *recorder
	err  error
}

func (p *recPin) Set(level bool) error {
	if p.err != nil {
		return p.err
	}
	p.r.state[p.name] = level
	s := p.name + "-off"
	if level {
		s = p.name + "-on"
	}
	p.r.log = append(p.r.log, s)
	return nil
}

func (r *recorder) lit() int {
	n := 0
	for _, on := range r.state {
		if on {
			n++
		}
	}
	return n
}

func newTestRGB(r *recorder, activeLow bool) *RGB {
	return NewRGB(&recPin{name: "r", r: r}, &recPin{name: "g", r: r}, &recPin{name: "b", r: r}, activeLow, nil)
}

func TestRGBSwitchesOffBeforeOn(t *testing.T) {
	r := newRecorder()
	d := newTestRGB(r, false)
	d.Apply(types.IndicatorValue{Green: true})
	r.log = nil

	d.Apply(types.IndicatorValue{Red: true})
	want := []string{"g-off", "r-on"}
	if len(r.log) != len(want) || r.log[0] != want[0] || r.log[1] != want[1] {
		t.Fatalf("writes = %v, want %v", r.log, want)
	}
	if r.lit() != 1 {
		t.Fatalf("lit = %d", r.lit())
	}
}

func TestRGBSkipsUnchanged(t *testing.T) {
	r := newRecorder()
	d := newTestRGB(r, false)
	d.Apply(types.IndicatorValue{Red: true})
	n := len(r.log)
	d.Apply(types.IndicatorValue{Red: true})
	if len(r.log) != n {
		t.Fatalf("unchanged Apply wrote pins: %v", r.log[n:])
	}
	if got := d.Value(); !got.Red || got.Active() != 1 {
		t.Fatalf("Value = %+v", got)
	}
}

func TestRGBActiveLow(t *testing.T) {
	r := newRecorder()
	d := newTestRGB(r, true)
	d.Apply(types.IndicatorValue{Blue: true})
	// physical low = lit
	if r.state["b"] != false || r.state["r"] != true || r.state["g"] != true {
		t.Fatalf("physical levels = %v", r.state)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !r.state["b"] {
		t.Fatal("Close should drive active-low pins high")
	}
}

func TestRGBPinErrorIsContained(t *testing.T) {
	r := newRecorder()
	d := NewRGB(&recPin{name: "r", r: r, err: errors.New("ebusy")}, &recPin{name: "g", r: r}, nil, false, nil)
	d.Apply(types.IndicatorValue{Red: true})
	d.Apply(types.IndicatorValue{Blue: true}) // blue not fitted
	if r.state["g"] {
		t.Fatal("green must stay off")
	}
}

func TestRGBFailedOffBlocksOn(t *testing.T) {
	r := newRecorder()
	green := &recPin{name: "g", r: r}
	d := NewRGB(&recPin{name: "r", r: r}, green, &recPin{name: "b", r: r}, false, nil)
	d.Apply(types.IndicatorValue{Green: true})

	green.err = errors.New("ebusy")
	d.Apply(types.IndicatorValue{Red: true})
	if r.state["r"] {
		t.Fatal("red lit while green could not be switched off")
	}
	if got := d.Value(); !got.Green || got.Red {
		t.Fatalf("Value = %+v, want last good state", got)
	}

	// The next period retries the whole transition.
	green.err = nil
	d.Apply(types.IndicatorValue{Red: true})
	if r.lit() != 1 || !r.state["r"] || r.state["g"] {
		t.Fatalf("state after retry = %v", r.state)
	}
}

type fakePWM struct {
	top    uint32
	writes []uint32
	err    error
}

func (p *fakePWM) Top() uint32 { return p.top }
func (p *fakePWM) SetDuty(d uint32) error {
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, d)
	return nil
}

func TestFanScalesAndClamps(t *testing.T) {
	pwm := &fakePWM{top: 1 << 24}
	f := NewFan(pwm, types.VentilationInfo{Pin: "fan", Max: 4095}, nil)

	f.SetDuty(4095)
	f.SetDuty(9999) // clamped to Max: no new write
	f.SetDuty(0)

	want := []uint32{1 << 24, 0}
	if len(pwm.writes) != len(want) || pwm.writes[0] != want[0] || pwm.writes[1] != want[1] {
		t.Fatalf("writes = %v, want %v", pwm.writes, want)
	}
	if f.Max() != 4095 || f.Value().Duty != 0 {
		t.Fatalf("max=%d value=%+v", f.Max(), f.Value())
	}
}

func TestFanActiveLow(t *testing.T) {
	pwm := &fakePWM{top: 255}
	f := NewFan(pwm, types.VentilationInfo{Max: 255, ActiveLow: true}, nil)
	f.SetDuty(255)
	f.SetDuty(0)
	if pwm.writes[0] != 0 || pwm.writes[1] != 255 {
		t.Fatalf("writes = %v", pwm.writes)
	}
}

func TestFanWriteErrorKeepsPreviousValue(t *testing.T) {
	pwm := &fakePWM{top: 255}
	f := NewFan(pwm, types.VentilationInfo{Max: 255}, nil)
	f.SetDuty(128)
	pwm.err = errors.New("eio")
	f.SetDuty(255)
	if f.Value().Duty != 128 {
		t.Fatalf("value = %d", f.Value().Duty)
	}
}

func TestPlatformCloseOrder(t *testing.T) {
	var order []int
	p := &Platform{}
	p.onClose(func() error { order = append(order, 1); return nil })
	p.onClose(func() error { order = append(order, 2); return errors.New("x") })
	if err := p.Close(); err == nil {
		t.Fatal("expected joined error")
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("order = %v", order)
	}
}
