package netlink

import (
	"context"
	"net"
	"time"

	"failsafe-go/errcode"
	"failsafe-go/x/timex"
)

// Iface treats a host network interface as the link. It is associated once
// the interface is administratively up and holds a usable unicast address.
// Association itself belongs to the OS (wpa_supplicant, NetworkManager);
// Associate only waits for it.
type Iface struct {
	// Name of the interface; "" accepts any non-loopback interface.
	Name string
	// Timeout bounds one Associate call. Default 30 s.
	Timeout time.Duration
	// Interval between checks while waiting. Default 1 s.
	Interval time.Duration
	// Probe overrides the system check (tests).
	Probe func(name string) (bool, error)
}

func (l *Iface) String() string {
	if l.Name == "" {
		return "iface:any"
	}
	return "iface:" + l.Name
}

func (l *Iface) probe() (bool, error) {
	if l.Probe != nil {
		return l.Probe(l.Name)
	}
	return probeSystem(l.Name)
}

func (l *Iface) Up() bool {
	ok, _ := l.probe()
	return ok
}

func (l *Iface) Associate(ctx context.Context) error {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := l.Interval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	var last error
	for {
		ok, err := l.probe()
		if ok {
			return nil
		}
		if err != nil {
			last = err
		}
		if time.Now().Add(interval).After(deadline) {
			return &errcode.E{C: errcode.LinkDown, Op: "associate", Msg: l.String() + " not up", Err: last}
		}
		if !timex.Sleep(ctx, interval) {
			return errcode.Wrap(errcode.LinkDown, "associate", ctx.Err())
		}
	}
}

func probeSystem(name string) (bool, error) {
	var ifs []net.Interface
	if name != "" {
		ifc, err := net.InterfaceByName(name)
		if err != nil {
			return false, err
		}
		ifs = []net.Interface{*ifc}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return false, err
		}
		ifs = all
	}
	for _, ifc := range ifs {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if ok && ipn.IP.IsGlobalUnicast() {
				return true, nil
			}
		}
	}
	return false, nil
}

// Static is a link that is always up (wired hosts, the simulator).
type Static struct{}

func (Static) Associate(context.Context) error { return nil }
func (Static) Up() bool                        { return true }
func (Static) String() string                  { return "static" }
