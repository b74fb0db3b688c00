package lib

import (
	"context"
	"fmt"
	"log"
	"mmpay/src/config"
	"mmpay/src/types"
	"mmpay/src/utils"
)

const NotifyTopic = "payment-status-updates"

// Notifier is a fire-and-forget sink for user-facing status messages.
// Delivery failures are logged and never roll back a payment transition.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, accountReference string, kind types.NotifyEventKind, transactionID string) error
}

type KafkaNotifier struct{}

func (n *KafkaNotifier) Name() string { return "Kafka" }

func (n *KafkaNotifier) Notify(ctx context.Context, accountReference string, kind types.NotifyEventKind, transactionID string) error {
	return KafkaProduceMessage("PaymentNotifier", NotifyTopic, map[string]any{
		"account":     accountReference,
		"event":       string(kind),
		"transaction": transactionID,
	})
}

type SNSNotifier struct{}

func (n *SNSNotifier) Name() string { return "SNS" }

func (n *SNSNotifier) Notify(ctx context.Context, accountReference string, kind types.NotifyEventKind, transactionID string) error {
	return SNSPublishSMS(ctx, accountReference, smsText(kind, transactionID))
}

func smsText(kind types.NotifyEventKind, transactionID string) string {
	switch kind {
	case types.NOTIFY_COLLECTED:
		return fmt.Sprintf("Payment %s: funds received, transfer to recipient in progress.", transactionID)
	case types.NOTIFY_COLLECTION_FAILED:
		return fmt.Sprintf("Payment %s could not be completed. You have not been charged.", transactionID)
	case types.NOTIFY_SETTLED:
		return fmt.Sprintf("Payment %s completed.", transactionID)
	case types.NOTIFY_PAYMENT_RECEIVED:
		return fmt.Sprintf("You have received a payment (ref %s).", transactionID)
	case types.NOTIFY_REVERSAL_STARTED:
		return fmt.Sprintf("Payment %s failed to reach the recipient. A refund is on its way.", transactionID)
	case types.NOTIFY_REVERSED:
		return fmt.Sprintf("Payment %s has been refunded.", transactionID)
	}
	return fmt.Sprintf("Payment %s status update.", transactionID)
}

var notifier Notifier

// CreateNotifier returns the SNS notifier in production and the Kafka
// notifier everywhere else, behind the same interface.
func CreateNotifier() Notifier {
	if notifier != nil {
		return notifier
	}
	if utils.IsProd() || config.API_ENV == "test" {
		notifier = &SNSNotifier{}
	} else {
		notifier = &KafkaNotifier{}
	}
	log.Printf("Created notifier with name: %s\n", notifier.Name())
	return notifier
}

// NewNotifier replaces the notifier instance, used by tests.
func NewNotifier(n Notifier) Notifier {
	notifier = n
	return notifier
}

// Notify dispatches asynchronously; callers never wait on delivery.
func Notify(accountReference string, kind types.NotifyEventKind, transactionID string) {
	n := CreateNotifier()
	go func() {
		if err := n.Notify(context.Background(), accountReference, kind, transactionID); err != nil {
			log.Printf("[notify] Failed to deliver %s for transaction %s: %s\n", kind, transactionID, err.Error())
		}
	}()
}
