package types

import (
	"math"

	"failsafe-go/errcode"
	"failsafe-go/x/mathx"
)

// ------------------------
// Readings
// ------------------------

// Reading is one calibrated sensor sample. A Reading with Valid=false carries
// no usable Value and must never reach a slot or the network.
type Reading struct {
	Value float64
	Valid bool
}

// NewReading builds a Reading, marking NaN and ±Inf as invalid.
func NewReading(v float64) Reading {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

// Invalid is the "no reading" value returned by drivers on a fault.
var Invalid = Reading{}

// Within returns r unchanged when its value lies in [lo, hi], otherwise Invalid.
func (r Reading) Within(lo, hi float64) Reading {
	if !r.Valid || !mathx.Between(r.Value, lo, hi) {
		return Invalid
	}
	return r
}

// Plausible bounds for DHT/AHT/SHT class climate sensors.
const (
	MinCelsius  = -40.0
	MaxCelsius  = 85.0
	MinHumidity = 0.0
	MaxHumidity = 100.0
)

// ------------------------
// Alert thresholds
// ------------------------

// Thresholds are fixed at startup, in the gas sensor's unit (ppm).
type Thresholds struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// Validate requires finite values with Warning strictly below Critical.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Warning, t.Critical} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &errcode.E{C: errcode.InvalidConfig, Op: "thresholds", Msg: "non-finite threshold"}
		}
	}
	if t.Warning >= t.Critical {
		return &errcode.E{C: errcode.InvalidConfig, Op: "thresholds", Msg: "warning must be below critical"}
	}
	return nil
}
