package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/orrn/printconnect/internal/core"
)

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

// BatchEventData never carries the access code.
type BatchEventData struct {
	Jobs        int      `json:"jobs"`
	Primary     int      `json:"printed_primary"`
	Fallback    int      `json:"printed_fallback"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failed_files,omitempty"`
}

type RotationEventData struct {
	Reason string `json:"reason"`
}

type Endpoint struct {
	Name   string
	URL    string
	Secret string
	// Events filters deliveries; empty means every event.
	Events []string
}

func (e Endpoint) wants(event string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, ev := range e.Events {
		if ev == event {
			return true
		}
	}
	return false
}

type WebhookConfig struct {
	Endpoints   []Endpoint
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type webhookTask struct {
	endpoint Endpoint
	payload  *WebhookPayload
	attempt  int
}

// WebhookSender delivers kiosk events to the configured endpoints from a
// small worker pool. It implements core.EventSender.
type WebhookSender struct {
	endpoints  []Endpoint
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	workers    int
	queue      chan *webhookTask
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

var _ core.EventSender = (*WebhookSender)(nil)

func NewWebhookSender(config WebhookConfig) *WebhookSender {
	if config.RetryCount <= 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}

	return &WebhookSender{
		endpoints: config.Endpoints,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retryCount: config.RetryCount,
		retryDelay: config.RetryDelay,
		workers:    config.WorkerCount,
		queue:      make(chan *webhookTask, config.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *WebhookSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *WebhookSender) SendBatchEvent(event string, stats core.BatchStats, failedFiles []string) {
	s.enqueue(event, &BatchEventData{
		Jobs:        stats.Jobs,
		Primary:     stats.Primary,
		Fallback:    stats.Fallback,
		Failed:      stats.Failed,
		FailedFiles: failedFiles,
	})
}

func (s *WebhookSender) SendRotationEvent(reason string) {
	s.enqueue(core.EventOTPRotated, &RotationEventData{Reason: reason})
}

func (s *WebhookSender) enqueue(event string, data interface{}) {
	for _, ep := range s.endpoints {
		if !ep.wants(event) {
			continue
		}

		task := &webhookTask{
			endpoint: ep,
			payload: &WebhookPayload{
				Event:     event,
				Timestamp: time.Now().UTC(),
				Data:      data,
			},
		}

		select {
		case <-s.stopCh:
			return
		case s.queue <- task:
		default:
			slog.Warn("webhook queue full, dropping event", "webhook", ep.Name, "event", event)
		}
	}
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				slog.Error("webhook delivery failed",
					"worker", id, "webhook", task.endpoint.Name, "event", task.payload.Event,
					"attempts", task.attempt, "error", err)
			}
		}
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(task.endpoint, task.payload)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			slog.Warn("webhook client error, not retrying", "webhook", task.endpoint.Name, "error", err)
			return err
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))
			slog.Info("retrying webhook",
				"attempt", task.attempt, "max", s.retryCount, "webhook", task.endpoint.Name, "backoff", backoff, "error", err)

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *WebhookSender) sendRequest(ep Endpoint, payload *WebhookPayload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	body := *payload
	if ep.Secret != "" {
		body.Signature = signPayload(dataBytes, ep.Secret)
	}

	fullPayload, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", body.Event)
	if body.Signature != "" {
		req.Header.Set("X-Webhook-Signature", body.Signature)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &httpError{StatusCode: resp.StatusCode}
	}

	return nil
}

type httpError struct {
	StatusCode int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http error: %d", e.StatusCode)
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
