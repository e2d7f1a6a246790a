package intake

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
)

// Notification is one "object created" record from the storage notification
// source. Delivery is at least once, so the same record may arrive again.
type Notification struct {
	Bucket string
	Key    string
}

// DecodeObjectKey decodes an object key as sent in storage notifications:
// URL encoded with '+' standing for a space.
func DecodeObjectKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decode object key %q: %w", raw, err)
	}
	return key, nil
}

// HandleS3Event processes every record of an S3 event. A non-nil error means
// at least one record hit an infrastructure failure and the event should be
// delivered again; records already claimed are skipped on redelivery.
func (in *Ingestor) HandleS3Event(ctx context.Context, event events.S3Event) ([]Outcome, error) {
	notifications, err := NotificationsFromS3Event(event)
	if err != nil {
		return nil, err
	}
	outcomes, err := in.HandleBatch(ctx, notifications)
	in.logger.InfoContext(ctx, "handled storage event", "records", len(notifications), "failed", countFailed(outcomes))
	return outcomes, err
}

func countFailed(outcomes []Outcome) int {
	n := 0
	for _, out := range outcomes {
		if out.State == StateFailed {
			n++
		}
	}
	return n
}

// NotificationsFromS3Event converts an S3 event into notifications with
// decoded object keys.
func NotificationsFromS3Event(event events.S3Event) ([]Notification, error) {
	notifications := make([]Notification, 0, len(event.Records))
	for _, rec := range event.Records {
		key, err := DecodeObjectKey(rec.S3.Object.Key)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, Notification{
			Bucket: rec.S3.Bucket.Name,
			Key:    key,
		})
	}
	return notifications, nil
}
