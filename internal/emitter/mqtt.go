package emitter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/orrn/printconnect/internal/core"
)

const publishTimeout = 2 * time.Second

type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Event is the JSON body published for every kiosk event.
type Event struct {
	Event       string    `json:"event"`
	Timestamp   time.Time `json:"timestamp"`
	Reason      string    `json:"reason,omitempty"`
	Jobs        int       `json:"jobs,omitempty"`
	Primary     int       `json:"printed_primary,omitempty"`
	Fallback    int       `json:"printed_fallback,omitempty"`
	Failed      int       `json:"failed,omitempty"`
	FailedFiles []string  `json:"failed_files,omitempty"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes kiosk events under
// {prefix}/{client_id}/events/{event}. It implements core.EventSender.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	pub    publisher

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

var _ core.EventSender = (*MQTTEmitter)(nil)

func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect dials the broker. Reconnection afterwards is left to the client.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", e.cfg.Broker, "error", err)
	}

	e.client = mqtt.NewClient(opts)
	e.pub = e.client

	slog.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

func (e *MQTTEmitter) SendBatchEvent(event string, stats core.BatchStats, failedFiles []string) {
	e.publish(Event{
		Event:       event,
		Timestamp:   time.Now().UTC(),
		Jobs:        stats.Jobs,
		Primary:     stats.Primary,
		Fallback:    stats.Fallback,
		Failed:      stats.Failed,
		FailedFiles: failedFiles,
	})
}

func (e *MQTTEmitter) SendRotationEvent(reason string) {
	e.publish(Event{
		Event:     core.EventOTPRotated,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
}

func (e *MQTTEmitter) topic(event string) string {
	return fmt.Sprintf("%s/%s/events/%s", e.cfg.TopicPrefix, e.cfg.ClientID, event)
}

// publish does not wait for the broker; acknowledgement is awaited in the
// background so a slow broker never delays a print response.
func (e *MQTTEmitter) publish(ev Event) {
	if !e.isConnected() || e.pub == nil {
		e.countError()
		slog.Debug("mqtt not connected, dropping event", "event", ev.Event)
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		slog.Error("failed to marshal mqtt event", "event", ev.Event, "error", err)
		return
	}

	topic := e.topic(ev.Event)
	token := e.pub.Publish(topic, e.cfg.QoS, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			e.countError()
			slog.Warn("mqtt publish timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			e.countError()
			slog.Warn("mqtt publish failed", "topic", topic, "error", err)
			return
		}
		e.mu.Lock()
		e.published++
		e.mu.Unlock()
	}()
}

type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
