package utils

import (
	"context"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
)

type MailStore interface {
	EnqueueMail(ctx context.Context, m models.Mail) error
}

// Mailer queues email requests for the external mailer; it never sends mail
// itself.
type Mailer struct {
	store MailStore
	now   func() time.Time
}

func NewMailer(store MailStore) *Mailer {
	return &Mailer{store: store, now: time.Now}
}

func (m *Mailer) Enqueue(ctx context.Context, to, template string, data map[string]any) error {
	return m.store.EnqueueMail(ctx, models.Mail{
		To:        to,
		Template:  models.MailTemplate{Name: template, Data: data},
		CreatedAt: m.now().UTC(),
	})
}
