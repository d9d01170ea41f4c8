package mqtt

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"failsafe-go/errcode"
)

func TestParseBroker(t *testing.T) {
	cases := []struct {
		in, host string
		ok       bool
	}{
		{"mqtt://broker.local", "broker.local:1883", true},
		{"tcp://10.0.0.2:1884", "10.0.0.2:1884", true},
		{"mqtts://example.hivemq.cloud", "example.hivemq.cloud:8883", true},
		{"ssl://example.hivemq.cloud:8883", "example.hivemq.cloud:8883", true},
		{"http://example.com", "", false},
		{"mqtt://", "", false},
	}
	for _, tc := range cases {
		u, err := ParseBroker(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err = %v", tc.in, err)
		}
		if !tc.ok {
			if !errors.Is(err, errcode.InvalidConfig) {
				t.Fatalf("%s: expected invalid_config, got %v", tc.in, err)
			}
			continue
		}
		if u.Host != tc.host {
			t.Fatalf("%s: host = %s, want %s", tc.in, u.Host, tc.host)
		}
	}
}

func TestIdleSessionIsDown(t *testing.T) {
	s, err := New(Config{Broker: "mqtt://127.0.0.1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Pump(); !errors.Is(err, errcode.SessionDown) {
		t.Fatalf("Pump = %v", err)
	}
	if err := s.Publish(context.Background(), "t", []byte("1"), true); !errors.Is(err, errcode.SessionDown) {
		t.Fatalf("Publish = %v", err)
	}
	s.Close() // no-op
}

func TestConnectDialFailure(t *testing.T) {
	s, _ := New(Config{Broker: "mqtt://127.0.0.1:1"}, nil)
	boom := errors.New("network unreachable")
	s.dial = func(context.Context) (net.Conn, error) { return nil, boom }
	err := s.Connect(context.Background(), "failsafe-test")
	if !errors.Is(err, errcode.ConnectFailed) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

// fakeBroker accepts one connection, answers CONNECT with a v5 CONNACK
// (success, no properties) and records everything received afterwards.
type fakeBroker struct {
	ln   net.Listener
	mu   sync.Mutex
	got  bytes.Buffer
	done chan struct{}
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	b := &fakeBroker{ln: ln, done: make(chan struct{})}
	go b.serve()
	return b
}

func (b *fakeBroker) serve() {
	defer close(b.done)
	c, err := b.ln.Accept()
	if err != nil {
		return
	}
	defer c.Close()
	buf := make([]byte, 512)
	n, err := c.Read(buf)
	if err != nil || n == 0 || buf[0]>>4 != 1 {
		return
	}
	b.record(buf[:n])
	if _, err := c.Write([]byte{0x20, 0x03, 0x00, 0x00, 0x00}); err != nil {
		return
	}
	for {
		n, err := c.Read(buf)
		if n > 0 {
			b.record(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (b *fakeBroker) record(p []byte) {
	b.mu.Lock()
	b.got.Write(p)
	b.mu.Unlock()
}

func (b *fakeBroker) received() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.got.Bytes()...)
}

func TestConnectPublishClose(t *testing.T) {
	fb := newFakeBroker(t)
	defer fb.ln.Close()

	s, err := New(Config{
		Broker:       "mqtt://" + fb.ln.Addr().String(),
		Username:     "failsafe",
		Password:     "secret",
		Availability: "failsafe/status",
		DialTimeout:  2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(context.Background(), "failsafe-abcd1234"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Pump(); err != nil {
		t.Fatalf("pump on live session: %v", err)
	}
	if err := s.Publish(context.Background(), "failsafe/mq2", []byte("412.50"), true); err != nil {
		t.Fatalf("publish: %v", err)
	}
	s.Close()

	select {
	case <-fb.done:
	case <-time.After(2 * time.Second):
		t.Fatal("broker never saw the connection close")
	}
	got := fb.received()
	for _, want := range []string{"failsafe-abcd1234", "failsafe", "secret", "failsafe/status", "online", "failsafe/mq2", "412.50", "offline"} {
		if !bytes.Contains(got, []byte(want)) {
			t.Fatalf("broker did not receive %q", want)
		}
	}
}
