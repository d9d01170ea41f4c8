// Package mqtt implements the publish session on top of the eclipse paho
// MQTT v5 client. Each Connect dials a fresh network connection; reconnect
// policy belongs to the caller (services/netlink).
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"failsafe-go/errcode"

	"github.com/eclipse/paho.golang/paho"
)

// Config is the broker section of the configuration file.
type Config struct {
	Broker       string        `yaml:"broker"` // mqtt://, tcp://, mqtts:// or ssl://
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	ClientPrefix string        `yaml:"client_prefix"`
	KeepAlive    uint16        `yaml:"keepalive_s"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	// Availability is a retained online/offline topic, with the broker
	// publishing "offline" as the last will. "" disables it.
	Availability string `yaml:"availability_topic"`
	// TLSInsecure skips server certificate verification.
	TLSInsecure bool   `yaml:"tls_insecure"`
	TLSServer   string `yaml:"tls_server_name"`
}

// Session is one MQTT connection at a time.
type Session struct {
	cfg    Config
	broker *url.URL
	log    *slog.Logger

	// dial is replaceable in tests.
	dial func(ctx context.Context) (net.Conn, error)

	mu     sync.Mutex
	client *paho.Client
}

// New validates the broker URL; nothing is dialled until Connect.
func New(cfg Config, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	u, err := ParseBroker(cfg.Broker)
	if err != nil {
		return nil, err
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	s := &Session{cfg: cfg, broker: u, log: log.With("component", "mqtt", "broker", u.Host)}
	s.dial = s.dialBroker
	return s, nil
}

// ParseBroker accepts mqtt/tcp (1883) and mqtts/ssl (8883) URLs.
func ParseBroker(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "broker url", err)
	}
	port := ""
	switch u.Scheme {
	case "mqtt", "tcp":
		port = "1883"
	case "mqtts", "ssl", "tls":
		port = "8883"
	default:
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "broker url", Msg: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Hostname() == "" {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "broker url", Msg: "missing host"}
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	return u, nil
}

func (s *Session) secure() bool {
	switch s.broker.Scheme {
	case "mqtts", "ssl", "tls":
		return true
	}
	return false
}

func (s *Session) dialBroker(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: s.cfg.DialTimeout}
	if !s.secure() {
		return d.DialContext(ctx, "tcp", s.broker.Host)
	}
	td := &tls.Dialer{
		NetDialer: d,
		Config: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ServerName:         s.cfg.TLSServer,
			InsecureSkipVerify: s.cfg.TLSInsecure,
		},
	}
	if td.Config.ServerName == "" {
		td.Config.ServerName = s.broker.Hostname()
	}
	return td.DialContext(ctx, "tcp", s.broker.Host)
}

// Connect dials the broker and performs the MQTT handshake with clientID.
// Any previous client is closed first.
func (s *Session) Connect(ctx context.Context, clientID string) error {
	s.Close()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	conn, err := s.dial(ctx)
	if err != nil {
		return errcode.Wrap(errcode.ConnectFailed, "dial", err)
	}

	c := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			s.log.Warn("client error", "err", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			s.log.Warn("server disconnect", "reason", d.ReasonCode)
		},
	})

	cp := &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  s.cfg.KeepAlive,
		CleanStart: true,
	}
	if s.cfg.Username != "" {
		cp.Username = s.cfg.Username
		cp.UsernameFlag = true
	}
	if s.cfg.Password != "" {
		cp.Password = []byte(s.cfg.Password)
		cp.PasswordFlag = true
	}
	if s.cfg.Availability != "" {
		cp.WillMessage = &paho.WillMessage{
			Topic:   s.cfg.Availability,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		}
	}

	ack, err := c.Connect(ctx, cp)
	if err != nil {
		_ = conn.Close()
		if ack != nil {
			return &errcode.E{C: errcode.ConnectFailed, Op: "connect", Msg: fmt.Sprintf("reason 0x%02x", ack.ReasonCode), Err: err}
		}
		return errcode.Wrap(errcode.ConnectFailed, "connect", err)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	if s.cfg.Availability != "" {
		if err := s.Publish(ctx, s.cfg.Availability, []byte("online"), true); err != nil {
			s.log.Warn("availability publish failed", "err", err)
		}
	}
	s.log.Info("connected", "client_id", clientID)
	return nil
}

// Pump reports a session whose client has shut down. Keep-alives are sent by
// the paho client's own pinger.
func (s *Session) Pump() error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return errcode.SessionDown
	}
	select {
	case <-c.Done():
		return errcode.SessionDown
	default:
		return nil
	}
}

// Publish sends one QoS 0 message.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return errcode.SessionDown
	}
	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
		Retain:  retained,
	}); err != nil {
		return errcode.Wrap(errcode.PublishFailed, topic, err)
	}
	return nil
}

// Close disconnects gracefully when possible. The will message is not sent
// on a clean disconnect, so "offline" is published first.
func (s *Session) Close() {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if s.cfg.Availability != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = c.Publish(ctx, &paho.Publish{Topic: s.cfg.Availability, Payload: []byte("offline"), QoS: 0, Retain: true})
		cancel()
	}
	_ = c.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
