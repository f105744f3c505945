package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/tiffinbox/api/internal/services"
)

// PaymentReceivedMessage is the Pub/Sub payload consumed by the operator mailer.
type PaymentReceivedMessage struct {
	Recipient  string    `json:"recipient,omitempty"`
	Subject    string    `json:"subject"`
	OrderID    string    `json:"orderId"`
	PaymentID  string    `json:"paymentId"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName,omitempty"`
	UserEmail  string    `json:"userEmail,omitempty"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

// PubSubOperatorNotifier publishes payment notifications for restaurant staff to a Pub/Sub topic.
type PubSubOperatorNotifier struct {
	topic     *pubsub.Topic
	recipient string
	marshal   func(any) ([]byte, error)
}

// NewPubSubOperatorNotifier constructs a notifier. recipient is the operator mailbox and may be empty
// when the subscriber routes messages itself.
func NewPubSubOperatorNotifier(topic *pubsub.Topic, recipient string) (*PubSubOperatorNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub operator notifier: topic is required")
	}
	return &PubSubOperatorNotifier{
		topic:     topic,
		recipient: strings.TrimSpace(recipient),
		marshal:   json.Marshal,
	}, nil
}

// NotifyPaymentReceived implements services.OperatorNotifier and waits for the publish to be acknowledged.
func (n *PubSubOperatorNotifier) NotifyPaymentReceived(ctx context.Context, notice services.PaymentNotice) error {
	if n == nil || n.topic == nil {
		return errors.New("pubsub operator notifier: not initialised")
	}

	data, err := n.marshal(PaymentReceivedMessage{
		Recipient:  n.recipient,
		Subject:    fmt.Sprintf("Payment received for order %s", notice.OrderID),
		OrderID:    notice.OrderID,
		PaymentID:  notice.PaymentID,
		UserID:     notice.UserID,
		UserName:   notice.UserName,
		UserEmail:  notice.UserEmail,
		Amount:     notice.Amount,
		Currency:   notice.Currency,
		VerifiedAt: notice.VerifiedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal payment notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", "payment.received")
	setAttr(attrs, "orderId", notice.OrderID)
	setAttr(attrs, "paymentId", notice.PaymentID)

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish payment notification: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
