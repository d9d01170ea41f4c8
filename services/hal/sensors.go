package hal

import (
	"errors"
	"log/slog"

	"failsafe-go/drivers/aht20"
	"failsafe-go/drivers/mq2"
	"failsafe-go/errcode"
	"failsafe-go/types"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/shtc3"
)

// -----------------------------------------------------------------------------
// Gas
// -----------------------------------------------------------------------------

// PPMReader is satisfied by *mq2.Device.
type PPMReader interface {
	ReadPPM() (float64, error)
}

type gasSensor struct {
	drv PPMReader
	log *slog.Logger
}

// NewGasSensor wraps a calibrated gas driver. Driver errors, non-finite and
// negative values all come back as an invalid Reading.
func NewGasSensor(drv PPMReader, log *slog.Logger) GasSensor {
	if log == nil {
		log = slog.Default()
	}
	return &gasSensor{drv: drv, log: log.With("device", "gas")}
}

func (g *gasSensor) ReadGas() types.Reading {
	v, err := g.drv.ReadPPM()
	if err != nil {
		g.log.Debug("read failed", "code", mapDriverErr(err), "err", err)
		return types.Invalid
	}
	r := types.NewReading(v)
	if r.Valid && r.Value < 0 {
		g.log.Debug("negative concentration", "value", v)
		return types.Invalid
	}
	return r
}

// -----------------------------------------------------------------------------
// Climate
// -----------------------------------------------------------------------------

// ClimateReader is satisfied by *aht20.Device and by the SHTC3 wrapper.
type ClimateReader interface {
	ReadClimate() (celsius, rh float64, err error)
}

type climateSensor struct {
	drv ClimateReader
	log *slog.Logger
}

// NewClimateSensor range-checks both values and rejects the pair if either
// one is implausible.
func NewClimateSensor(drv ClimateReader, log *slog.Logger) ClimateSensor {
	if log == nil {
		log = slog.Default()
	}
	return &climateSensor{drv: drv, log: log.With("device", "climate")}
}

func (c *climateSensor) ReadClimate() (types.Reading, types.Reading) {
	tc, rh, err := c.drv.ReadClimate()
	if err != nil {
		c.log.Debug("read failed", "code", mapDriverErr(err), "err", err)
		return types.Invalid, types.Invalid
	}
	t := types.NewReading(tc).Within(types.MinCelsius, types.MaxCelsius)
	h := types.NewReading(rh).Within(types.MinHumidity, types.MaxHumidity)
	if !t.Valid || !h.Valid {
		c.log.Debug("reading out of range", "code", errcode.OutOfRange, "temp", tc, "hum", rh)
		return types.Invalid, types.Invalid
	}
	return t, h
}

// SHTC3 adapts the tinygo shtc3 driver: wake, read, sleep.
type SHTC3 struct {
	dev shtc3.Device
}

func NewSHTC3(bus drivers.I2C) *SHTC3 { return &SHTC3{dev: shtc3.New(bus)} }

func (s *SHTC3) ReadClimate() (celsius, rh float64, err error) {
	if err := s.dev.WakeUp(); err != nil {
		return 0, 0, err
	}
	defer func() { _ = s.dev.Sleep() }()
	tmc, rhx100, err := s.dev.ReadTemperatureHumidity()
	if err != nil {
		return 0, 0, err
	}
	// milli-°C and hundredths of a percent
	return float64(tmc) / 1000, float64(rhx100) / 100, nil
}

var _ ClimateReader = (*aht20.Device)(nil)

// -----------------------------------------------------------------------------
// Error codes
// -----------------------------------------------------------------------------

// mapDriverErr classifies driver errors into stable log codes.
func mapDriverErr(err error) errcode.Code {
	switch {
	case err == nil:
		return errcode.OK
	case errors.Is(err, aht20.ErrTimeout):
		return errcode.SensorTimeout
	case errors.Is(err, aht20.ErrNotReady):
		return errcode.NotReady
	case errors.Is(err, aht20.ErrCRC):
		return errcode.InvalidReading
	case errors.Is(err, mq2.ErrNoSignal), errors.Is(err, mq2.ErrSaturated):
		return errcode.OutOfRange
	}
	return errcode.Of(err)
}
