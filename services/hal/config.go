package hal

// Params is the hardware section of the configuration file.
type Params struct {
	I2CBus    string          `yaml:"i2c_bus"` // periph bus name, "" = first
	Climate   ClimateParams   `yaml:"climate"`
	Gas       GasParams       `yaml:"gas"`
	Indicator IndicatorParams `yaml:"indicator"`
	Fan       FanParams       `yaml:"fan"`
	Sim       SimParams       `yaml:"sim"`
}

type ClimateParams struct {
	Sensor string `yaml:"sensor"` // "aht20" | "shtc3"
	Addr   uint16 `yaml:"addr"`   // 0 = driver default
}

type GasParams struct {
	ADC     string  `yaml:"adc"` // "ads1115"
	Addr    uint16  `yaml:"addr"`
	Channel int     `yaml:"channel"`
	LoadK   float64 `yaml:"load_kohm"`
	RoK     float64 `yaml:"ro_kohm"`
	SupplyV float64 `yaml:"supply_v"`
	RefV    float64 `yaml:"ref_v"`
	ADCMax  uint32  `yaml:"adc_max"`
	Raw     bool    `yaml:"raw_counts"` // report raw counts instead of ppm
	Curve   *Curve  `yaml:"curve,omitempty"`
}

// Curve overrides the built-in LPG curve.
type Curve struct {
	X1 float64 `yaml:"x1"`
	X2 float64 `yaml:"x2"`
	Y1 float64 `yaml:"y1"`
	Y2 float64 `yaml:"y2"`
	X  float64 `yaml:"x"`
	Y  float64 `yaml:"y"`
}

type IndicatorParams struct {
	Red       string `yaml:"red"`
	Green     string `yaml:"green"`
	Blue      string `yaml:"blue"`
	ActiveLow bool   `yaml:"active_low"`
}

type FanParams struct {
	Pin       string `yaml:"pin"`
	FreqHz    uint64 `yaml:"freq_hz"`
	Max       uint32 `yaml:"max"` // logical duty ceiling
	ActiveLow bool   `yaml:"active_low"`
}

// SimParams shapes the synthetic gas signal: a triangle wave from Base to Peak
// over Steps reads, with every FailEvery-th read failing.
type SimParams struct {
	Base      float64 `yaml:"base"`
	Peak      float64 `yaml:"peak"`
	Noise     float64 `yaml:"noise"`
	Steps     int     `yaml:"steps"`
	FailEvery int     `yaml:"fail_every"`
	Seed      uint64  `yaml:"seed"`
}
