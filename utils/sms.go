package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type SMSStore interface {
	InsertSMS(ctx context.Context, r models.SMSRecord) error
}

type SMSConfig struct {
	URL    string
	User   string
	APIKey string
	Sender string
}

// SMSClient posts a message to the SMS provider and records successful
// sends in the sms collection. Failed sends leave no record.
type SMSClient struct {
	cfg    SMSConfig
	http   *http.Client
	store  SMSStore
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewSMSClient(cfg SMSConfig, store SMSStore, logger logrus.FieldLogger) *SMSClient {
	return &SMSClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (c *SMSClient) Enabled() bool {
	return c != nil && c.cfg.URL != ""
}

type smsRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
	From string `json:"from,omitempty"`
}

type smsResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
}

// Send delivers one message and returns the stored record.
func (c *SMSClient) Send(ctx context.Context, to, text string) (*models.SMSRecord, error) {
	body, err := json.Marshal(smsRequest{To: to, Text: text, From: c.cfg.Sender})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.User, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var parsed smsResponse
	if body := bytes.TrimSpace(raw); len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(body)}).
				WithError(err).Debug("unreadable sms provider response, using generated id")
		}
	}
	id := parsed.ID
	if id == "" {
		id = parsed.MessageID
	}
	if id == "" {
		id = uuid.NewString()
	}

	record := models.SMSRecord{ID: id, To: to, Text: text, SentAt: c.now().UTC()}
	if err := c.store.InsertSMS(ctx, record); err != nil {
		return nil, fmt.Errorf("record sms %s: %w", id, err)
	}
	return &record, nil
}

// Notify is Send for callers that must not fail on SMS errors.
func (c *SMSClient) Notify(ctx context.Context, to, text string) bool {
	if _, err := c.Send(ctx, to, text); err != nil {
		c.logger.WithFields(logrus.Fields{"to": to, "kind": models.Kind(err)}).
			WithError(err).Error("sms delivery failed")
		return false
	}
	return true
}
