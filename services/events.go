package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	awspkg "github.com/carloz138/catalogo-magico-mx-sub005/pkg/aws"
)

const EventIngestionCompleted = "ingestion.completed"

// IngestionEvent is published on the ingestion topic when a run ends.
type IngestionEvent struct {
	Type       string                  `json:"type"`
	JobID      string                  `json:"job_id,omitempty"`
	MerchantID string                  `json:"merchant_id"`
	Report     *models.IngestionReport `json:"report"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// EventPublisher sends ingestion events to SNS.
type EventPublisher struct {
	publisher awspkg.SNSPublisher
	topicArn  string
}

func NewEventPublisher(publisher awspkg.SNSPublisher, topicArn string) *EventPublisher {
	return &EventPublisher{publisher: publisher, topicArn: topicArn}
}

func (p *EventPublisher) IngestionCompleted(ctx context.Context, jobID, merchantID string, report *models.IngestionReport) error {
	if p == nil || p.publisher == nil || p.topicArn == "" {
		return nil
	}
	body, err := json.Marshal(IngestionEvent{
		Type:       EventIngestionCompleted,
		JobID:      jobID,
		MerchantID: merchantID,
		Report:     report,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, p.topicArn, body)
}
