package hal

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"failsafe-go/drivers/mq2"
	"failsafe-go/types"
)

// OpenSim builds a platform with synthetic sensors and logging outputs so the
// whole pipeline runs on any host.
func OpenSim(p Params, log *slog.Logger) *Platform {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "hal", "platform", "sim")

	sp := p.Sim
	if sp.Steps <= 0 {
		sp.Steps = 40
	}
	if sp.Peak <= sp.Base {
		sp.Peak = sp.Base + 1500
	}
	// One generator per sensor; they are read from different tasks.
	plat := &Platform{Name: "sim"}
	plat.Gas = NewGasSensor(&SimGas{p: sp, rng: rand.New(rand.NewPCG(sp.Seed, 1))}, log)
	plat.Climate = NewClimateSensor(&SimClimate{rng: rand.New(rand.NewPCG(sp.Seed, 2))}, log)

	rgb := NewRGB(
		&simPin{name: "red", log: log},
		&simPin{name: "green", log: log},
		&simPin{name: "blue", log: log},
		p.Indicator.ActiveLow, log)
	rgb.Apply(types.IndicatorValue{})
	plat.Indicator = rgb
	plat.onClose(rgb.Close)

	fan := NewFan(&simPWM{top: p.Fan.Max, log: log}, types.VentilationInfo{
		Pin:       "sim",
		Max:       p.Fan.Max,
		ActiveLow: p.Fan.ActiveLow,
	}, log)
	fan.SetDuty(0)
	plat.Fan = fan
	plat.onClose(fan.Close)

	log.Info("platform ready", "gas_base", sp.Base, "gas_peak", sp.Peak, "steps", sp.Steps)
	return plat
}

// -----------------------------------------------------------------------------
// Synthetic sensors
// -----------------------------------------------------------------------------

// SimGas is a triangle wave with optional noise and periodic faults.
type SimGas struct {
	mu  sync.Mutex
	p   SimParams
	n   int
	rng *rand.Rand
}

func (g *SimGas) ReadPPM() (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.n
	g.n++
	if g.p.FailEvery > 0 && n%g.p.FailEvery == g.p.FailEvery-1 {
		return 0, mq2.ErrNoSignal
	}
	phase := float64(n%g.p.Steps) / float64(g.p.Steps)
	tri := 1 - math.Abs(2*phase-1)
	v := g.p.Base + (g.p.Peak-g.p.Base)*tri
	if g.p.Noise > 0 && g.rng != nil {
		v += g.rng.NormFloat64() * g.p.Noise
	}
	return v, nil
}

// SimClimate drifts slowly around 22 °C / 45 %RH.
type SimClimate struct {
	mu  sync.Mutex
	n   int
	rng *rand.Rand
}

func (c *SimClimate) ReadClimate() (celsius, rh float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	x := float64(c.n) / 20
	c.n++
	celsius = 22 + 2*math.Sin(x)
	rh = 45 + 5*math.Cos(x)
	if c.rng != nil {
		celsius += c.rng.Float64()*0.2 - 0.1
		rh += c.rng.Float64()*0.4 - 0.2
	}
	return celsius, rh, nil
}

// -----------------------------------------------------------------------------
// Logging outputs
// -----------------------------------------------------------------------------

type simPin struct {
	name  string
	level bool
	log   *slog.Logger
}

func (p *simPin) Set(level bool) error {
	if level != p.level {
		p.log.Debug("pin", "name", p.name, "level", level)
	}
	p.level = level
	return nil
}

type simPWM struct {
	top  uint32
	duty uint32
	log  *slog.Logger
}

func (p *simPWM) Top() uint32 { return p.top }

func (p *simPWM) SetDuty(duty uint32) error {
	if duty != p.duty {
		p.log.Info("fan", "duty", duty, "top", p.top)
	}
	p.duty = duty
	return nil
}
