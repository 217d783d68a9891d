// Package mqtt publishes line queues to shop floor terminals over MQTT.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/foundry/core/dispatch"
	"github.com/kilianp07/foundry/core/monitoring"
	"github.com/kilianp07/foundry/infra/logger"
)

// ErrAckTimeout is returned when a terminal does not acknowledge a queue in time.
var ErrAckTimeout = errors.New("timeout waiting for queue ack")

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicPrefix roots queue topics: <prefix>/<process>/<line>.
	TopicPrefix string `json:"topic_prefix"`
	// AckTopic is subscribed for terminal acknowledgments when set.
	AckTopic     string      `json:"ack_topic"`
	AckTimeoutMS int         `json:"ack_timeout_ms"`
	QoS          byte        `json:"qos"`
	Retain       bool        `json:"retain"`
	UseTLS       bool        `json:"use_tls"`
	ClientCert   string      `json:"client_cert"`
	ClientKey    string      `json:"client_key"`
	CABundle     string      `json:"ca_bundle"`
	AuthMethod   string      `json:"auth_method"`
	LWTTopic     string      `json:"lwt_topic"`
	LWTPayload   string      `json:"lwt_payload"`
	LWTQoS       byte        `json:"lwt_qos"`
	LWTRetain    bool        `json:"lwt_retain"`
	MaxRetries   int         `json:"max_retries"`
	BackoffMS    int         `json:"backoff_ms"`
	TLSConfig    *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "foundry/queues"
	}
	if c.ClientID == "" {
		c.ClientID = "foundry-dispatch"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields when a broker is configured.
func (c Config) Validate() error {
	if c.Broker == "" {
		return nil
	}
	if c.QoS > 2 || c.LWTQoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	if c.AckTimeoutMS > 0 && c.AckTopic == "" {
		return fmt.Errorf("mqtt: ack_timeout_ms requires ack_topic")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// QueueMessage is the payload terminals receive for their line.
type QueueMessage struct {
	MessageID   string                `json:"message_id"`
	Process     string                `json:"process"`
	LineID      string                `json:"line_id"`
	Load        int                   `json:"load"`
	GeneratedAt int64                 `json:"generated_at"`
	Jobs        []dispatch.Assignment `json:"jobs"`
}

// QueuePublisher implements dispatch.QueuePublisher on top of Paho.
type QueuePublisher struct {
	cli        pahoClient
	cfg        Config
	logger     logger.Logger
	mu         sync.Mutex
	ackChans   map[string]chan struct{}
	maxRetries int
	backoff    time.Duration
}

// NewQueuePublisher connects to the broker and, when configured, subscribes
// to terminal acknowledgments.
func NewQueuePublisher(cfg Config) (*QueuePublisher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	p := &QueuePublisher{
		cfg:        cfg,
		logger:     log,
		ackChans:   make(map[string]chan struct{}),
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if cfg.AckTopic == "" {
			return
		}
		if token := c.Subscribe(cfg.AckTopic, cfg.QoS, p.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// Topic returns the topic a line's queue is published on.
func (p *QueuePublisher) Topic(process, line string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, process, line)
}

func (p *QueuePublisher) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.ackChans[m.MessageID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.logger.Debugf("received ack %s", m.MessageID)
	}
}

// PublishQueue sends the queue of one line, retrying with exponential backoff,
// and waits for the terminal ack when acknowledgments are enabled.
func (p *QueuePublisher) PublishQueue(ctx context.Context, q dispatch.Queue) error {
	msg := QueueMessage{
		MessageID:   uuid.NewString(),
		Process:     q.Process,
		LineID:      q.LineID,
		Load:        q.Load,
		GeneratedAt: time.Now().UnixMilli(),
		Jobs:        q.Assignments,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var ack chan struct{}
	if p.cfg.AckTimeoutMS > 0 {
		ack = make(chan struct{}, 1)
		p.mu.Lock()
		p.ackChans[msg.MessageID] = ack
		p.mu.Unlock()
		defer func() {
			p.mu.Lock()
			delete(p.ackChans, msg.MessageID)
			p.mu.Unlock()
		}()
	}

	topic := p.Topic(q.Process, q.LineID)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
		token.Wait()
		if publishErr = token.Error(); publishErr == nil {
			p.logger.Infof("published %d jobs to %s", len(q.Assignments), topic)
			break
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishErr = ctx.Err()
			attempt = p.maxRetries
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	if publishErr != nil {
		monitoring.CaptureException(publishErr, map[string]string{"module": "mqtt", "line_id": q.LineID})
		return fmt.Errorf("publish %s: %w", topic, publishErr)
	}
	if ack == nil {
		return nil
	}
	timer := time.NewTimer(time.Duration(p.cfg.AckTimeoutMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ack:
		return nil
	case <-timer.C:
		return fmt.Errorf("line %s: %w", q.LineID, ErrAckTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *QueuePublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
