package transport

import (
	"os"
	"sync"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MQTT parameters
const (
	qos    = 1
	retain = false

	connectTimeout = 5 * time.Second
	publishTimeout = 10 * time.Second

	inboundBuffer = 64
)

var (
	// ErrConnection means the broker could not be reached. Reported to the
	// operator, never fatal to the process.
	ErrConnection = errors.New("broker unreachable")
	// ErrNotConnected means a publish was attempted while the link is down.
	// The command is dropped; the operator retries manually.
	ErrNotConnected = errors.New("not connected to broker")
)

// Message is one raw inbound MQTT message.
type Message struct {
	Topic   string
	Payload []byte
}

// Options configure the broker connection. When PrivateKeyPath is set the
// password is a signed JWT with Audience, IoT-Core style; otherwise Username
// and Password are used as given.
type Options struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	PrivateKeyPath string
	Audience       string
	Topics         []string
}

// Session owns one long-lived MQTT connection. Inbound messages of the
// subscribed topics arrive in order on Inbound(). There is no automatic
// reconnect; callers watch Connected().
type Session struct {
	log     *logrus.Logger
	opts    Options
	inbound chan Message

	mu      sync.Mutex
	client  mqtt.Client
	closed  bool
	lastErr error
}

func New(opts Options, log *logrus.Logger) *Session {
	return &Session{
		log:     log,
		opts:    opts,
		inbound: make(chan Message, inboundBuffer),
	}
}

// Connect dials the broker and subscribes the configured topics. On failure
// the session stays usable in a disconnected state.
func (s *Session) Connect() error {
	copts := mqtt.NewClientOptions().
		AddBroker(s.opts.BrokerURL).
		SetClientID(s.opts.ClientID).
		SetAutoReconnect(false).
		SetOrderMatters(true).
		SetProtocolVersion(4) // MQTT 3.1.1

	if s.opts.Username != "" {
		copts.SetUsername(s.opts.Username)
	}
	password := s.opts.Password
	if s.opts.PrivateKeyPath != "" {
		pass, err := signedPassword(s.opts.PrivateKeyPath, s.opts.Audience)
		if err != nil {
			return s.fail(errors.Wrap(err, "broker auth"))
		}
		password = pass
	}
	if password != "" {
		copts.SetPassword(password)
	}

	client := mqtt.NewClient(copts)

	s.log.WithField("broker", s.opts.BrokerURL).Info("connecting MQTT")
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return s.fail(errors.Wrap(ErrConnection, "connect timeout"))
	}
	if err := tok.Error(); err != nil {
		return s.fail(errors.Wrap(ErrConnection, err.Error()))
	}

	for _, topic := range s.opts.Topics {
		sub := client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
			s.enqueue(m.Topic(), m.Payload())
		})
		if !sub.WaitTimeout(connectTimeout) {
			client.Disconnect(250)
			return s.fail(errors.Wrapf(ErrConnection, "subscribe %s timeout", topic))
		}
		if err := sub.Error(); err != nil {
			client.Disconnect(250)
			return s.fail(errors.Wrapf(ErrConnection, "subscribe %s: %v", topic, err))
		}
	}

	s.mu.Lock()
	s.client = client
	s.lastErr = nil
	s.mu.Unlock()

	s.log.Info("MQTT connected")
	return nil
}

// Publish sends one message. Disconnected sessions drop the command and
// return ErrNotConnected so the operator can retry.
func (s *Session) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return s.fail(ErrNotConnected)
	}

	tok := client.Publish(topic, qos, retain, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return s.fail(errors.Wrapf(ErrConnection, "publish %s timeout", topic))
	}
	if err := tok.Error(); err != nil {
		return s.fail(errors.Wrapf(ErrConnection, "publish %s: %v", topic, err))
	}
	return nil
}

// enqueue hands one raw message to the telemetry pump. Once the pump has
// stopped draining (shutdown) the buffer fills; further messages are dropped
// so paho's router is never stalled.
func (s *Session) enqueue(topic string, payload []byte) {
	select {
	case s.inbound <- Message{Topic: topic, Payload: payload}:
	default:
		s.log.WithField("topic", topic).Warn("inbound buffer full, dropping message")
	}
}

// Inbound delivers subscribed messages in arrival order.
func (s *Session) Inbound() <-chan Message {
	return s.inbound
}

// Connected reports the current link state.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.client != nil && s.client.IsConnected()
}

// LastError reports the most recent transport error, nil after a successful
// connect.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close releases the connection and its subscriptions. Safe to call on every
// exit path; repeated calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return
	}
	if client.IsConnected() {
		if len(s.opts.Topics) > 0 {
			client.Unsubscribe(s.opts.Topics...)
		}
	}
	client.Disconnect(250)
	s.log.Info("MQTT session closed")
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// signedPassword builds the JWT the broker expects when key-based auth is
// configured.
func signedPassword(keyPath, audience string) (string, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return "", errors.Wrap(err, "read private key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return "", errors.Wrap(err, "parse private key")
	}

	t := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &jwt.StandardClaims{
		IssuedAt:  t.Unix(),
		ExpiresAt: t.Add(24 * time.Hour).Unix(),
		Audience:  audience,
	})
	return token.SignedString(key)
}
