// Command boardtest exercises a failsafe board without the network: it walks
// the indicator through every alert level, sweeps the fan, checks that both
// sensors produce valid readings and flashes the verdict on the indicator.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"failsafe-go/services/alert"
	"failsafe-go/services/config"
	"failsafe-go/services/hal"
	"failsafe-go/types"
	"failsafe-go/x/timex"
)

// ---------- Configuration ----------

const (
	// Sequencing timing
	defaultStep  = 300 * time.Millisecond
	defaultDwell = 2 * time.Second

	// Fan sweep resolution
	sweepSteps = 8

	// Sensor reads per cycle
	samplesPerCycle = 3
)

var levels = []types.AlertLevel{types.Normal, types.Warning, types.Critical}

// ---------- Output ----------

type out struct{ w io.Writer }

func (o out) println(a ...any) { fmt.Fprintln(o.w, a...) }

func (o out) printf(format string, a ...any) { fmt.Fprintf(o.w, format, a...) }

// ---------- Helpers ----------

type tester struct {
	plat  *hal.Platform
	o     out
	step  time.Duration
	dwell time.Duration
}

func (t *tester) showLevels(ctx context.Context) bool {
	for _, l := range levels {
		t.o.println("indicator:", l)
		blink := false
		for i := 0; i < 4; i++ {
			if l == types.Critical {
				blink = !blink
			}
			t.plat.Indicator.Apply(alert.IndicatorFor(l, blink))
			if !timex.Sleep(ctx, t.step) {
				return false
			}
		}
	}
	t.plat.Indicator.Apply(types.IndicatorValue{})
	return true
}

func (t *tester) sweepFan(ctx context.Context) bool {
	top := t.plat.Fan.Max()
	for i := 0; i <= sweepSteps; i++ {
		d := top * uint32(i) / sweepSteps
		t.plat.Fan.SetDuty(d)
		t.o.printf("fan duty: %d/%d\n", d, top)
		if !timex.Sleep(ctx, t.step) {
			return false
		}
	}
	if !timex.Sleep(ctx, t.dwell) {
		return false
	}
	t.plat.Fan.SetDuty(0)
	t.o.println("fan off")
	return true
}

// sample returns the names of sensors that never produced a valid reading.
func (t *tester) sample(ctx context.Context) []string {
	var gasOK, climOK bool
	for i := 0; i < samplesPerCycle; i++ {
		if g := t.plat.Gas.ReadGas(); g.Valid {
			gasOK = true
			t.o.printf("gas: %.2f\n", g.Value)
		} else {
			t.o.println("gas: invalid")
		}
		if c, h := t.plat.Climate.ReadClimate(); c.Valid && h.Valid {
			climOK = true
			t.o.printf("climate: %.2f C %.2f %%RH\n", c.Value, h.Value)
		} else {
			t.o.println("climate: invalid")
		}
		if !timex.Sleep(ctx, t.step) {
			break
		}
	}
	var miss []string
	if !gasOK {
		miss = append(miss, "gas")
	}
	if !climOK {
		miss = append(miss, "climate")
	}
	return miss
}

// flashVerdict: two short green flashes for pass, one long red for fail.
func (t *tester) flashVerdict(ctx context.Context, pass bool) {
	if pass {
		for i := 0; i < 2; i++ {
			t.plat.Indicator.Apply(types.IndicatorValue{Green: true})
			timex.Sleep(ctx, 120*time.Millisecond)
			t.plat.Indicator.Apply(types.IndicatorValue{})
			timex.Sleep(ctx, 200*time.Millisecond)
		}
		return
	}
	t.plat.Indicator.Apply(types.IndicatorValue{Red: true})
	timex.Sleep(ctx, 400*time.Millisecond)
	t.plat.Indicator.Apply(types.IndicatorValue{})
	timex.Sleep(ctx, 200*time.Millisecond)
}

// ---------- Main ----------

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	pass, err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "boardtest: %s\n", err)
		os.Exit(2)
	}
	if !pass {
		os.Exit(1)
	}
}

// run reports whether the last completed cycle passed.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) (bool, error) {
	fs := flag.NewFlagSet("boardtest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file")
	profile := fs.String("profile", "", "board profile")
	sim := fs.Bool("sim", false, "simulated board")
	cycles := fs.Int("cycles", 1, "cycles to run, 0 = until interrupted")
	step := fs.Duration("step", defaultStep, "delay between sequence steps")
	dwell := fs.Duration("dwell", defaultDwell, "fan dwell at full duty")
	if err := fs.Parse(args); err != nil {
		return false, err
	}

	path, err := config.FindConfig(*configPath)
	if err != nil {
		return false, err
	}
	cfg, err := config.Load(path, *profile)
	if err != nil {
		return false, err
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	log, err := cfg.NewLogger(stderr)
	if err != nil {
		return false, err
	}

	var plat *hal.Platform
	if *sim {
		plat = hal.OpenSim(cfg.HAL, log)
	} else if plat, err = hal.OpenPeriph(cfg.HAL, log); err != nil {
		return false, err
	}
	defer plat.Close()

	t := &tester{plat: plat, o: out{stdout}, step: *step, dwell: *dwell}
	pass := false
	for cycle := 1; *cycles == 0 || cycle <= *cycles; cycle++ {
		t.o.println("=== boardtest: cycle", cycle, "profile", cfg.Profile, "===")
		if !t.showLevels(ctx) || !t.sweepFan(ctx) {
			break
		}
		miss := t.sample(ctx)
		pass = len(miss) == 0
		if pass {
			t.o.println("[PASS] indicator and fan sequenced; gas and climate readings valid")
		} else {
			t.o.println("[FAIL] no valid reading from:", fmt.Sprintf("%v", miss))
		}
		t.flashVerdict(ctx, pass)
	}
	return pass, nil
}
