// Package webhook delivers signed encoder status callbacks and verifies
// them on the receiving side.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/retry"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/google/uuid"
)

// Header names carried on every callback
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderSignature = "X-Webhook-Signature"

	// EventEncodeStatus reports a change in an encode job's external state
	EventEncodeStatus = "encode.status"
)

// ErrInvalidSignature is returned when a callback's signature does not match
var ErrInvalidSignature = errors.New("invalid webhook signature")

// StatusEvent is the callback payload
type StatusEvent struct {
	JobID     string                `json:"job_id"`
	Status    models.ExternalStatus `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
}

// Sign returns the HMAC-SHA256 signature of payload in "sha256=<hex>" form
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches payload
func Verify(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// Decode verifies and parses a callback body
func Decode(payload []byte, signature, secret string) (*StatusEvent, error) {
	if !Verify(payload, signature, secret) {
		return nil, ErrInvalidSignature
	}

	var event StatusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if event.JobID == "" {
		return nil, fmt.Errorf("webhook payload missing job_id")
	}
	return &event, nil
}

// Notifier posts status callbacks to the API
type Notifier struct {
	client   *http.Client
	url      string
	secret   string
	attempts int
	backoff  retry.Backoff
	logger   *logging.Logger
}

// NewNotifier creates a notifier for url
func NewNotifier(url, secret string, attempts int, backoff retry.Backoff, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Notifier{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		url:      url,
		secret:   secret,
		attempts: attempts,
		backoff:  backoff,
		logger:   logger.WithComponent("webhook"),
	}
}

// permanentError marks a response that retrying cannot fix
type permanentError struct {
	statusCode int
	body       string
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("webhook rejected with status %d: %s", e.statusCode, e.body)
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// NotifyStatus sends a status callback for jobID. Transport errors, 409 and
// 5xx responses are retried with backoff.
func (n *Notifier) NotifyStatus(ctx context.Context, jobID string, status models.ExternalStatus) error {
	payload, err := json.Marshal(StatusEvent{
		JobID:     jobID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	deliveryID := uuid.New().String()
	err = retry.Do(ctx, n.attempts, n.backoff, isPermanent, func(ctx context.Context, attempt int) error {
		return n.deliver(ctx, deliveryID, payload)
	})
	if err != nil {
		n.logger.WithJobID(jobID).WithError(err).Error("Failed to deliver status callback")
		return err
	}

	n.logger.LogJobEvent(jobID, "callback_delivered", string(status.State), map[string]interface{}{
		"delivery_id": deliveryID,
	})
	return nil
}

func (n *Notifier) deliver(ctx context.Context, deliveryID string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return &permanentError{body: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Flenix-Encoder/1.0")
	req.Header.Set(HeaderEvent, EventEncodeStatus)
	req.Header.Set(HeaderDelivery, deliveryID)
	if n.secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, body)
	default:
		return &permanentError{statusCode: resp.StatusCode, body: string(body)}
	}
}
