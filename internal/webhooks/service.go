// Package webhooks delivers claim-service events to operator-registered
// HTTP endpoints, signed with a per-subscription HMAC secret.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Store is the persistence surface the service needs. *Repository
// implements it.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Subscription, error)
	ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error)
	RecordDelivery(ctx context.Context, d *Delivery) error
}

// Service manages webhook subscriptions and event dispatching.
type Service struct {
	repo       Store
	httpClient *http.Client
	backoff    []time.Duration // sleep before each retry; attempts = len+1
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// NewService creates a new webhook Service.
func NewService(repo Store, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    []time.Duration{1 * time.Second, 5 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// Subscribe creates a new subscription with a generated HMAC secret.
func (s *Service) Subscribe(ctx context.Context, createdBy string, req *CreateSubscriptionRequest) (*Subscription, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &Subscription{
		CreatedBy: createdBy,
		URL:       req.URL,
		Events:    req.Events,
		Secret:    secret,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deletes a subscription.
func (s *Service) Unsubscribe(ctx context.Context, subID uuid.UUID) error {
	return s.repo.Delete(ctx, subID)
}

// List returns all subscriptions.
func (s *Service) List(ctx context.Context) ([]*Subscription, error) {
	return s.repo.List(ctx)
}

// Dispatch fans out an event to all matching subscriptions. Delivery is
// asynchronous; Dispatch never blocks the claim path.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	subs, err := s.repo.ListByEvent(ctx, eventType)
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	for _, sub := range subs {
		go s.deliver(context.WithoutCancel(ctx), sub, event)
	}
}

// deliver sends the event to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	signature := signPayload(body, sub.Secret)

	// One initial attempt plus one retry per backoff entry.
	for attempt := 1; attempt <= len(s.backoff)+1; attempt++ {
		if attempt > 1 {
			time.Sleep(s.backoff[attempt-2])
		}

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, body, signature)

		delivery := &Delivery{
			SubscriptionID: sub.ID,
			EventType:      event.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if recordErr := s.repo.RecordDelivery(ctx, delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}

		if s.onMetrics != nil {
			s.onMetrics(success)
		}

		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merkledrop-Signature", signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
