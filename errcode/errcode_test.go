package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	if got := Of(nil); got != OK {
		t.Fatalf("Of(nil) = %q, want ok", got)
	}
	if got := Of(SensorTimeout); got != SensorTimeout {
		t.Fatalf("Of(code) = %q", got)
	}
	wrapped := fmt.Errorf("gas: %w", Wrap(ConnectFailed, "session.connect", errors.New("refused")))
	if got := Of(wrapped); got != ConnectFailed {
		t.Fatalf("Of(wrapped) = %q, want connect_failed", got)
	}
	if got := Of(errors.New("plain")); got != Error {
		t.Fatalf("Of(plain) = %q, want error", got)
	}
}

func TestEIsAndUnwrap(t *testing.T) {
	cause := errors.New("i2c nack")
	err := Wrap(SensorTimeout, "aht20.read", cause)

	if !errors.Is(err, SensorTimeout) {
		t.Fatal("errors.Is should match the code")
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the cause")
	}
	if got, want := err.Error(), "aht20.read: sensor_timeout: i2c nack"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
