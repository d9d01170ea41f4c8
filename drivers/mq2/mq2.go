// Package mq2 converts MQ-2 gas sensor ADC samples to a concentration in ppm.
//
// The sensor forms a divider with the load resistor RL:
//
//	Vrl = raw * Vref / ADCMax
//	Rs  = (Vcc * RL / Vrl) - RL
//
// and the Rs/Ro ratio is mapped to ppm along a straight line in log-log
// space fitted through two datasheet points plus an anchor:
//
//	m   = (log y2 - log y1) / (log x2 - log x1)
//	b   = log y - m * log x
//	ppm = 10 ^ ((log(Rs/Ro) - b) / m)
package mq2

import (
	"errors"
	"math"
)

// ADC is a single analog channel returning raw counts in [0, Config.ADCMax].
type ADC interface {
	Read() (uint32, error)
}

var (
	ErrNoSignal  = errors.New("mq2: no signal")
	ErrSaturated = errors.New("mq2: adc saturated")
	ErrConfig    = errors.New("mq2: invalid calibration")
)

// Curve is a two-point log-log fit plus the anchor point used for the intercept.
type Curve struct {
	X1, X2 float64 // ppm
	Y1, Y2 float64 // Rs/Ro at X1, X2
	X, Y   float64 // anchor
}

// LPG is the curve shipped with the reference firmware.
var LPG = Curve{
	X1: 199.150007852152, X2: 797.3322752256328,
	Y1: 1.664988323698715, Y2: 0.8990240080541785,
	X: 497.4177875376839, Y: 1.0876679972710004,
}

type Config struct {
	LoadKOhm  float64 // RL
	RoKOhm    float64 // sensor resistance in clean air
	SupplyV   float64 // Vcc across the divider
	RefV      float64 // ADC full-scale voltage; defaults to SupplyV
	ADCMax    uint32  // e.g. 4095 for 12-bit
	Curve     Curve
	RawCounts bool // report raw ADC counts instead of ppm
}

// DefaultConfig mirrors the reference board: RL 100k, Ro 6.02k, 5 V, 12-bit.
func DefaultConfig() Config {
	return Config{
		LoadKOhm: 100,
		RoKOhm:   6.02,
		SupplyV:  5.0,
		RefV:     5.0,
		ADCMax:   4095,
		Curve:    LPG,
	}
}

type Device struct {
	adc ADC
	cfg Config
	m   float64
	b   float64
}

// New validates the calibration and precomputes the curve slope/intercept.
func New(adc ADC, cfg Config) (*Device, error) {
	if cfg.RefV == 0 {
		cfg.RefV = cfg.SupplyV
	}
	if cfg.ADCMax == 0 {
		return nil, ErrConfig
	}
	d := &Device{adc: adc, cfg: cfg}
	if cfg.RawCounts {
		return d, nil
	}
	c := cfg.Curve
	if cfg.LoadKOhm <= 0 || cfg.RoKOhm <= 0 || cfg.SupplyV <= 0 ||
		c.X1 <= 0 || c.X2 <= 0 || c.Y1 <= 0 || c.Y2 <= 0 || c.X <= 0 || c.Y <= 0 || c.X1 == c.X2 {
		return nil, ErrConfig
	}
	d.m = (math.Log10(c.Y2) - math.Log10(c.Y1)) / (math.Log10(c.X2) - math.Log10(c.X1))
	if d.m == 0 {
		return nil, ErrConfig
	}
	d.b = math.Log10(c.Y) - d.m*math.Log10(c.X)
	return d, nil
}

// Slope and Intercept expose the fitted curve.
func (d *Device) Slope() float64     { return d.m }
func (d *Device) Intercept() float64 { return d.b }

// ReadPPM samples the ADC once and converts it. In RawCounts mode the raw
// count is returned unchanged.
func (d *Device) ReadPPM() (float64, error) {
	raw, err := d.adc.Read()
	if err != nil {
		return 0, err
	}
	if d.cfg.RawCounts {
		return float64(raw), nil
	}
	return d.PPM(raw)
}

// PPM converts a raw count.
func (d *Device) PPM(raw uint32) (float64, error) {
	if raw == 0 {
		return 0, ErrNoSignal
	}
	if raw >= d.cfg.ADCMax {
		return 0, ErrSaturated
	}
	vrl := float64(raw) * d.cfg.RefV / float64(d.cfg.ADCMax)
	rs := d.cfg.SupplyV*d.cfg.LoadKOhm/vrl - d.cfg.LoadKOhm
	if rs <= 0 {
		return 0, ErrSaturated
	}
	ratio := rs / d.cfg.RoKOhm
	return math.Pow(10, (math.Log10(ratio)-d.b)/d.m), nil
}
