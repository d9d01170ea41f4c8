// Package aht20 provides a driver for the AHT20 temperature/humidity sensor.
// It exposes a two-phase measurement API:
//
//	d.Trigger()              // start a measurement (fast)
//	err := d.Collect(&s)     // fetch when ready; returns ErrNotReady while busy
//
// For convenience, d.Read() performs trigger + bounded polling until ready,
// and d.ReadClimate() returns both values in engineering units.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package aht20

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

var (
	ErrTimeout  = errors.New("aht20: timeout")
	ErrNotReady = errors.New("aht20: not ready")
	ErrCRC      = errors.New("aht20: crc mismatch")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x38 if zero.
	Address uint16
	// PollInterval is used by Read() between Collect() attempts. Default 15 ms.
	PollInterval time.Duration
	// CollectTimeout bounds the total wait in Read(). Default 250 ms.
	CollectTimeout time.Duration
	// SkipCRC disables checksum verification for clones that omit it.
	SkipCRC bool
}

// Device wraps an I2C connection to an AHT20 device.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg        Config
	configured bool
	buf        [7]byte
	last       Sample
}

// New creates a Device. The bus must already be configured; the sensor is
// not touched until Configure or the first measurement.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Configure applies cfg and sends the calibration command if the sensor
// reports itself uncalibrated. It is idempotent.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Millisecond
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 250 * time.Millisecond
	}
	d.cfg = cfg
	d.configured = true

	st, err := d.Status()
	if err == nil && st&statusCalibrated != 0 {
		return nil
	}
	if err := d.bus.Tx(d.Address, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// Reset issues a soft reset. Give the device ~20ms afterwards before using.
func (d *Device) Reset() error {
	d.configured = false
	return d.bus.Tx(d.Address, []byte{cmdSoftReset}, nil)
}

// Status reads the status byte.
func (d *Device) Status() (byte, error) {
	data := []byte{0}
	if err := d.bus.Tx(d.Address, []byte{cmdStatus}, data); err != nil {
		return 0, err
	}
	return data[0], nil
}

// Trigger starts a measurement; conversion takes ~80 ms.
func (d *Device) Trigger() error {
	if !d.configured {
		if err := d.Configure(Config{}); err != nil {
			return err
		}
	}
	return d.bus.Tx(d.Address, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// Collect reads one finished measurement. ErrNotReady means the conversion
// is still running; bus errors are returned as-is.
func (d *Device) Collect(out *Sample) error {
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, data); err != nil {
		return err
	}
	if (data[0]&statusCalibrated) == 0 || (data[0]&statusBusy) != 0 {
		return ErrNotReady
	}
	if !d.cfg.SkipCRC && crc8(data[:6]) != data[6] {
		return ErrCRC
	}
	s := Sample{
		RawHumidity: (uint32(data[1]) << 12) | (uint32(data[2]) << 4) | (uint32(data[3]) >> 4),
		RawTemp:     (uint32(data[3]&0x0F) << 16) | (uint32(data[4]) << 8) | uint32(data[5]),
	}
	d.last = s
	if out != nil {
		*out = s
	}
	return nil
}

// Read performs Trigger followed by bounded polling until Collect succeeds
// or CollectTimeout elapses.
func (d *Device) Read() (Sample, error) {
	if err := d.Trigger(); err != nil {
		return Sample{}, err
	}
	deadline := time.Now().Add(d.cfg.CollectTimeout)
	for {
		var s Sample
		err := d.Collect(&s)
		switch {
		case err == nil:
			return s, nil
		case errors.Is(err, ErrNotReady):
			if time.Now().After(deadline) {
				return Sample{}, ErrTimeout
			}
			time.Sleep(d.cfg.PollInterval)
		default:
			return Sample{}, err
		}
	}
}

// ReadClimate returns temperature in °C and relative humidity in %.
func (d *Device) ReadClimate() (celsius, rh float64, err error) {
	s, err := d.Read()
	if err != nil {
		return 0, 0, err
	}
	return s.Celsius(), s.RelHumidity(), nil
}

// Last returns the most recently collected sample.
func (d *Device) Last() Sample { return d.last }

// Sample holds raw 20-bit readings.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

func (s Sample) RelHumidity() float64 {
	return float64(s.RawHumidity) * 100 / 0x100000
}

func (s Sample) Celsius() float64 {
	return float64(s.RawTemp)*200/0x100000 - 50
}

// crc8 is CRC-8/NRSC-5 style: poly 0x31, init 0xFF, no reflection.
func crc8(b []byte) byte {
	crc := byte(0xFF)
	for _, v := range b {
		crc ^= v
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
