package utils

import (
	"context"
	"fmt"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"github.com/sirupsen/logrus"
)

const OrderCancelledTemplate = "order_cancelled"

// CancellationNotifier tells customers that a stale unpaid order was removed.
type CancellationNotifier struct {
	mailer *Mailer
	sms    *SMSClient
	logger logrus.FieldLogger
}

func NewCancellationNotifier(mailer *Mailer, sms *SMSClient, logger logrus.FieldLogger) *CancellationNotifier {
	return &CancellationNotifier{mailer: mailer, sms: sms, logger: logger}
}

// OrderCancelled reports whether at least one notification went out.
func (n *CancellationNotifier) OrderCancelled(ctx context.Context, order models.Order, entry models.CleanupLog) bool {
	sent := false
	if order.Email != "" && n.mailer != nil {
		err := n.mailer.Enqueue(ctx, order.Email, OrderCancelledTemplate, map[string]any{
			"orderId": order.ID,
			"total":   entry.Total,
			"reason":  entry.Reason,
		})
		if err != nil {
			n.logger.WithField("orderId", order.ID).WithError(err).Error("failed to queue cancellation mail")
		} else {
			sent = true
		}
	}
	if order.Phone != "" && n.sms.Enabled() {
		text := fmt.Sprintf("Your order %s was cancelled because payment was not completed.", order.ID)
		if n.sms.Notify(ctx, order.Phone, text) {
			sent = true
		}
	}
	return sent
}
