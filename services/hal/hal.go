// Package hal owns every piece of hardware the monitor touches: the gas and
// climate sensors on the input side, the RGB indicator and the ventilation fan
// on the output side. Services only see the small interfaces below.
package hal

import (
	"errors"

	"failsafe-go/types"
)

// -----------------------------------------------------------------------------
// Sensor boundary
// -----------------------------------------------------------------------------

// GasSensor returns one calibrated gas reading, or an invalid Reading on any
// fault. Implementations may block for the duration of one conversion.
type GasSensor interface {
	ReadGas() types.Reading
}

// ClimateSensor returns temperature (°C) and relative humidity (%) from a
// single transaction. Either both are valid or both are invalid.
type ClimateSensor interface {
	ReadClimate() (temp, hum types.Reading)
}

// -----------------------------------------------------------------------------
// Actuator boundary
// -----------------------------------------------------------------------------

// Indicator drives the three discrete status channels.
type Indicator interface {
	Apply(v types.IndicatorValue)
}

// Ventilation drives the fan. Duty is logical, 0..Max().
type Ventilation interface {
	SetDuty(duty uint32)
	Max() uint32
}

// -----------------------------------------------------------------------------
// Platform
// -----------------------------------------------------------------------------

// Platform is the set of devices opened for one run.
type Platform struct {
	Name      string
	Gas       GasSensor
	Climate   ClimateSensor
	Indicator Indicator
	Fan       Ventilation

	closers []func() error
}

func (p *Platform) onClose(f func() error) { p.closers = append(p.closers, f) }

// Close releases everything in reverse order of acquisition.
func (p *Platform) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
