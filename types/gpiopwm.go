package types

// ------------------------
// Alert level
// ------------------------

type AlertLevel uint8

const (
	Normal AlertLevel = iota
	Warning
	Critical
)

func (l AlertLevel) String() string {
	switch l {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "normal"
	}
}

// AlertState is published (retained) on alert/level whenever the level changes.
type AlertState struct {
	Level AlertLevel
	Gas   float64
	TSms  int64
}

// ------------------------
// Indicator (three discrete channels)
// ------------------------

type Channel uint8

const (
	ChannelRed Channel = iota
	ChannelGreen
	ChannelBlue
)

func (c Channel) String() string {
	switch c {
	case ChannelRed:
		return "red"
	case ChannelGreen:
		return "green"
	case ChannelBlue:
		return "blue"
	default:
		return "unknown"
	}
}

// IndicatorValue is the full on/off state of the indicator channels.
type IndicatorValue struct {
	Red   bool
	Green bool
	Blue  bool
}

// Active returns the number of channels that are on.
func (v IndicatorValue) Active() int {
	n := 0
	for _, on := range []bool{v.Red, v.Green, v.Blue} {
		if on {
			n++
		}
	}
	return n
}

// ------------------------
// Ventilation (PWM)
// ------------------------

// VentilationInfo describes the fan output; Max is the platform duty ceiling.
type VentilationInfo struct {
	Pin       string
	FreqHz    uint64
	Max       uint32
	ActiveLow bool
}

type VentilationValue struct {
	Duty uint32 // 0..Max (logical)
}
