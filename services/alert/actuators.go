package alert

import "failsafe-go/types"

// IndicatorFor: Normal is green, Warning is solid red, Critical is red
// following the blink phase. At most one channel is ever on.
func IndicatorFor(l types.AlertLevel, blink bool) types.IndicatorValue {
	switch l {
	case types.Critical:
		return types.IndicatorValue{Red: blink}
	case types.Warning:
		return types.IndicatorValue{Red: true}
	default:
		return types.IndicatorValue{Green: true}
	}
}

// VentilationFor is binary: off when Normal, full duty otherwise.
func VentilationFor(l types.AlertLevel, ceiling uint32) uint32 {
	if l == types.Normal {
		return 0
	}
	return ceiling
}
