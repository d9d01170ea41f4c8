//go:build !linux

package hal

import (
	"log/slog"

	"failsafe-go/errcode"
)

// OpenPeriph is only available on Linux hosts; use the simulator elsewhere.
func OpenPeriph(p Params, log *slog.Logger) (*Platform, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "hal", Msg: "periph platform requires linux"}
}
