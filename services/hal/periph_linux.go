//go:build linux

package hal

import (
	"fmt"
	"log/slog"
	"sync"

	"failsafe-go/drivers/aht20"
	"failsafe-go/drivers/mq2"
	"failsafe-go/errcode"
	"failsafe-go/types"
	"failsafe-go/x/mathx"
	"failsafe-go/x/strx"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// OpenPeriph opens the board's I²C bus, sensors and output pins through
// periph.io. Any failure releases what was already opened.
func OpenPeriph(p Params, log *slog.Logger) (_ *Platform, err error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "hal")

	if _, err := host.Init(); err != nil {
		return nil, errcode.Wrap(errcode.Unsupported, "host init", err)
	}

	plat := &Platform{Name: "periph"}
	defer func() {
		if err != nil {
			_ = plat.Close()
		}
	}()

	bc, err := i2creg.Open(p.I2CBus)
	if err != nil {
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "i2c open", Msg: p.I2CBus, Err: err}
	}
	plat.onClose(bc.Close)
	bus := &lockedBus{b: bc}
	log.Info("i2c bus opened", "bus", bc.String())

	// Climate
	switch s := strx.Coalesce(p.Climate.Sensor, "aht20"); s {
	case "aht20":
		d := aht20.New(bus)
		if err := d.Configure(aht20.Config{Address: p.Climate.Addr}); err != nil {
			return nil, errcode.Wrap(errcode.NotReady, "aht20 configure", err)
		}
		plat.Climate = NewClimateSensor(d, log)
	case "shtc3":
		plat.Climate = NewClimateSensor(NewSHTC3(bus), log)
	default:
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "climate", Msg: "unknown sensor " + s}
	}

	// Gas
	adc, err := openADS1115(bus, p.Gas)
	if err != nil {
		return nil, err
	}
	plat.onClose(adc.pin.Halt)
	drv, err := mq2.New(adc, gasConfig(p.Gas))
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "mq2", err)
	}
	plat.Gas = NewGasSensor(drv, log)

	// Indicator
	var pins [3]DigitalOut
	for i, name := range []string{p.Indicator.Red, p.Indicator.Green, p.Indicator.Blue} {
		if name == "" {
			continue
		}
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, &errcode.E{C: errcode.UnknownPin, Op: "indicator", Msg: name}
		}
		pins[i] = gpioOut{pin}
	}
	rgb := NewRGB(pins[0], pins[1], pins[2], p.Indicator.ActiveLow, log)
	rgb.Apply(types.IndicatorValue{})
	plat.Indicator = rgb
	plat.onClose(rgb.Close)

	// Fan
	fp := gpioreg.ByName(p.Fan.Pin)
	if fp == nil {
		return nil, &errcode.E{C: errcode.UnknownPin, Op: "fan", Msg: p.Fan.Pin}
	}
	fan := NewFan(&gpioPWM{pin: fp, freq: physic.Frequency(p.Fan.FreqHz) * physic.Hertz}, types.VentilationInfo{
		Pin:       p.Fan.Pin,
		FreqHz:    p.Fan.FreqHz,
		Max:       p.Fan.Max,
		ActiveLow: p.Fan.ActiveLow,
	}, log)
	fan.SetDuty(0)
	plat.Fan = fan
	plat.onClose(fan.Close)

	log.Info("platform ready", "climate", p.Climate.Sensor, "fan_max", p.Fan.Max)
	return plat, nil
}

func gasConfig(g GasParams) mq2.Config {
	c := mq2.DefaultConfig()
	if g.LoadK > 0 {
		c.LoadKOhm = g.LoadK
	}
	if g.RoK > 0 {
		c.RoKOhm = g.RoK
	}
	if g.SupplyV > 0 {
		c.SupplyV = g.SupplyV
	}
	c.RefV = g.RefV
	if g.ADCMax > 0 {
		c.ADCMax = g.ADCMax
	}
	if g.Curve != nil {
		c.Curve = mq2.Curve{X1: g.Curve.X1, X2: g.Curve.X2, Y1: g.Curve.Y1, Y2: g.Curve.Y2, X: g.Curve.X, Y: g.Curve.Y}
	}
	c.RawCounts = g.Raw
	return c
}

// -----------------------------------------------------------------------------
// I²C
// -----------------------------------------------------------------------------

// lockedBus serialises transactions from the gas and climate tasks, which
// share one bus.
type lockedBus struct {
	mu sync.Mutex
	b  i2c.Bus
}

func (l *lockedBus) String() string { return l.b.String() }

func (l *lockedBus) Tx(addr uint16, w, r []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Tx(addr, w, r)
}

func (l *lockedBus) SetSpeed(f physic.Frequency) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.SetSpeed(f)
}

// -----------------------------------------------------------------------------
// ADS1115 gas channel
// -----------------------------------------------------------------------------

var adsChannels = [...]ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

type adsADC struct {
	pin  ads1x15.PinADC
	refV float64
	max  uint32
}

func openADS1115(bus i2c.Bus, g GasParams) (*adsADC, error) {
	if a := strx.Coalesce(g.ADC, "ads1115"); a != "ads1115" {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "gas", Msg: "unknown adc " + a}
	}
	if g.Channel < 0 || g.Channel >= len(adsChannels) {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "gas", Msg: fmt.Sprintf("channel %d", g.Channel)}
	}
	opts := ads1x15.DefaultOpts
	if g.Addr != 0 {
		opts.I2cAddress = g.Addr
	}
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		return nil, errcode.Wrap(errcode.NotReady, "ads1115", err)
	}
	cfg := gasConfig(g)
	refV := strx.Coalesce(cfg.RefV, cfg.SupplyV)
	pin, err := dev.PinForChannel(adsChannels[g.Channel],
		physic.ElectricPotential(refV*float64(physic.Volt)), 1*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		return nil, errcode.Wrap(errcode.NotReady, "ads1115 pin", err)
	}
	return &adsADC{pin: pin, refV: refV, max: cfg.ADCMax}, nil
}

// Read scales the measured voltage onto 0..max counts so the MQ-2 driver sees
// the same units as on a native ADC.
func (a *adsADC) Read() (uint32, error) {
	s, err := a.pin.Read()
	if err != nil {
		return 0, err
	}
	v := float64(s.V) / float64(physic.Volt)
	counts := mathx.Clamp(v/a.refV*float64(a.max), 0, float64(a.max))
	return uint32(counts + 0.5), nil
}

// -----------------------------------------------------------------------------
// GPIO
// -----------------------------------------------------------------------------

type gpioOut struct{ p gpio.PinIO }

func (g gpioOut) Set(level bool) error { return g.p.Out(gpio.Level(level)) }

type gpioPWM struct {
	pin  gpio.PinIO
	freq physic.Frequency
}

func (g *gpioPWM) Top() uint32 { return uint32(gpio.DutyMax) }

func (g *gpioPWM) SetDuty(duty uint32) error {
	return g.pin.PWM(gpio.Duty(duty), g.freq)
}
