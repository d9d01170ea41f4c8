package alert

import (
	"math"
	"testing"
	"time"

	"failsafe-go/bus"
	"failsafe-go/types"
	"failsafe-go/x/slot"
)

var th = types.Thresholds{Warning: 800, Critical: 1200}

type recIndicator struct{ last types.IndicatorValue }

func (r *recIndicator) Apply(v types.IndicatorValue) { r.last = v }

type recFan struct {
	max  uint32
	duty uint32
}

func (f *recFan) SetDuty(d uint32) { f.duty = d }
func (f *recFan) Max() uint32      { return f.max }

func TestClassifyExhaustive(t *testing.T) {
	cases := []struct {
		g    float64
		want types.AlertLevel
	}{
		{math.Inf(-1), types.Normal},
		{-1, types.Normal},
		{0, types.Normal},
		{799.999, types.Normal},
		{800, types.Warning},
		{1000, types.Warning},
		{1199.999, types.Warning},
		{1200, types.Critical},
		{5000, types.Critical},
		{math.Inf(1), types.Critical},
	}
	for _, tc := range cases {
		if got := Classify(tc.g, th); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.g, got, tc.want)
		}
	}
	// Sweep: exactly one band per value.
	for g := -100.0; g < 2000; g += 0.5 {
		got := Classify(g, th)
		crit := g >= th.Critical
		warn := g >= th.Warning && g < th.Critical
		switch {
		case crit && got != types.Critical,
			warn && got != types.Warning,
			!crit && !warn && got != types.Normal:
			t.Fatalf("Classify(%v) = %s", g, got)
		}
	}
}

func TestIndicatorNeverTwoChannels(t *testing.T) {
	for _, l := range []types.AlertLevel{types.Normal, types.Warning, types.Critical} {
		for _, b := range []bool{false, true} {
			if n := IndicatorFor(l, b).Active(); n > 1 {
				t.Fatalf("%s/%v lights %d channels", l, b, n)
			}
		}
	}
}

func TestVentilationIsBinary(t *testing.T) {
	for _, ceil := range []uint32{255, 4095} {
		if VentilationFor(types.Normal, ceil) != 0 {
			t.Fatal("normal must be off")
		}
		if VentilationFor(types.Warning, ceil) != ceil || VentilationFor(types.Critical, ceil) != ceil {
			t.Fatal("warning/critical must be full duty")
		}
	}
}

func TestEmptySlotIsNormal(t *testing.T) {
	ind, fan := &recIndicator{}, &recFan{max: 255}
	e := NewEngine(slot.New[float64](), th, ind, fan, nil, nil)
	out := e.Step()
	if out.Level != types.Normal || out.Gas != 0 || !ind.last.Green || fan.duty != 0 {
		t.Fatalf("out=%+v ind=%+v duty=%d", out, ind.last, fan.duty)
	}
}

func TestBlinkScenario(t *testing.T) {
	gas := slot.New[float64]()
	ind, fan := &recIndicator{}, &recFan{max: 4095}
	e := NewEngine(gas, th, ind, fan, nil, nil)

	step := func(g float64) Output {
		gas.Write(g)
		return e.Step()
	}

	for i := 0; i < 3; i++ {
		out := step(0)
		if out.Level != types.Normal || fan.duty != 0 || !ind.last.Green || ind.last.Red {
			t.Fatalf("normal cycle %d: %+v", i, out)
		}
	}
	for i := 0; i < 2; i++ {
		out := step(900)
		if out.Level != types.Warning || fan.duty != 4095 || !ind.last.Red || ind.last.Green {
			t.Fatalf("warning cycle %d: %+v ind=%+v", i, out, ind.last)
		}
	}
	var reds []bool
	for i := 0; i < 4; i++ {
		out := step(1300)
		if out.Level != types.Critical || fan.duty != 4095 || ind.last.Green || ind.last.Blue {
			t.Fatalf("critical cycle %d: %+v ind=%+v", i, out, ind.last)
		}
		reds = append(reds, ind.last.Red)
	}
	for i := 1; i < len(reds); i++ {
		if reds[i] == reds[i-1] {
			t.Fatalf("red did not alternate: %v", reds)
		}
	}
	out := step(100)
	if out.Level != types.Normal || fan.duty != 0 || !ind.last.Green || ind.last.Red {
		t.Fatalf("recovery: %+v ind=%+v", out, ind.last)
	}
}

func TestBlinkPhaseCarriesAcrossCriticalEpisodes(t *testing.T) {
	gas := slot.New[float64]()
	e := NewEngine(gas, th, &recIndicator{}, &recFan{max: 1}, nil, nil)

	gas.Write(1300)
	first := e.Step().Blink // phase flips to true
	gas.Write(0)
	e.Step()
	gas.Write(1300)
	second := e.Step().Blink
	if first == second {
		t.Fatalf("blink phase reset on re-entry: %v then %v", first, second)
	}
}

func TestLevelChangesPublishedRetained(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection()
	gas := slot.New[float64]()
	e := NewEngine(gas, th, &recIndicator{}, &recFan{max: 1}, conn, nil)

	e.Step()
	gas.Write(900)
	e.Step()
	e.Step() // unchanged, no new message

	sub := conn.Subscribe(TopicLevel)
	defer conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		st, ok := m.Payload.(types.AlertState)
		if !ok || st.Level != types.Warning || st.Gas != 900 {
			t.Fatalf("retained = %#v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no retained alert level")
	}
	select {
	case m := <-sub.Channel():
		t.Fatalf("unexpected extra message %#v", m.Payload)
	case <-time.After(20 * time.Millisecond):
	}
	if e.Level() != types.Warning {
		t.Fatalf("Level() = %s", e.Level())
	}
}
