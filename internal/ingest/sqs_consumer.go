package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"parking_enforcement/internal/config"
	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
	"parking_enforcement/internal/service"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// anprMessage is the queue payload published by the camera fleet.
type anprMessage struct {
	SiteID    int      `json:"site_id"`
	VRM       string   `json:"vrm"`
	Timestamp string   `json:"timestamp"`
	CameraIDs []string `json:"camera_ids"`
	Direction string   `json:"direction"`
	ImageRefs []string `json:"image_refs"`
}

// SQSConsumer long-polls the movement queue and feeds each read into the
// correlator. Malformed messages are deleted; transient failures leave the
// message for redelivery after the visibility timeout.
type SQSConsumer struct {
	sqsClient  *sqs.Client
	queueURL   string
	correlator *service.CorrelationService
}

func NewSQSConsumer(client *sqs.Client, cfg *config.Config, correlator *service.CorrelationService) *SQSConsumer {
	return &SQSConsumer{
		sqsClient:  client,
		queueURL:   cfg.SQSMovementQueueURL,
		correlator: correlator,
	}
}

func (c *SQSConsumer) Start(ctx context.Context) {
	log.Printf("SQS consumer listening on queue: %s", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			log.Println("SQS consumer: context cancelled, stopping.")
			return
		default:
			receiveInput := &sqs.ReceiveMessageInput{
				QueueUrl:            &c.queueURL,
				MaxNumberOfMessages: 10,
				WaitTimeSeconds:     20,
				VisibilityTimeout:   60,
			}

			result, err := c.sqsClient.ReceiveMessage(ctx, receiveInput)
			if err != nil {
				log.Printf("SQS consumer: receive failed: %v", err)
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					log.Println("SQS consumer: context cancelled while waiting for retry.")
					return
				}
				continue
			}

			if len(result.Messages) == 0 {
				continue
			}
			log.Printf("SQS consumer: received %d message(s)", len(result.Messages))

			for _, message := range result.Messages {
				if message.Body == nil {
					log.Println("SQS consumer: empty message body, deleting.")
					c.deleteMessage(ctx, message.ReceiptHandle)
					continue
				}

				if err := c.handleMessage(ctx, *message.Body); err != nil {
					if isPermanent(err) {
						log.Printf("SQS consumer: dropping unprocessable message ID %s: %v", *message.MessageId, err)
						c.deleteMessage(ctx, message.ReceiptHandle)
						continue
					}
					log.Printf("SQS consumer: processing message ID %s failed: %v. Redelivery after visibility timeout.", *message.MessageId, err)
					continue
				}
				c.deleteMessage(ctx, message.ReceiptHandle)
			}
		}
	}
}

func (c *SQSConsumer) handleMessage(ctx context.Context, body string) error {
	var msg anprMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return errPermanent{err}
	}

	dto := domain.CreateMovementDTO{
		SiteID:     msg.SiteID,
		VRM:        msg.VRM,
		Timestamp:  msg.Timestamp,
		CameraIDs:  msg.CameraIDs,
		Direction:  msg.Direction,
		ImageRefs:  msg.ImageRefs,
		RawPayload: json.RawMessage(body),
	}
	_, err := c.correlator.IngestMovement(ctx, dto)
	if err != nil {
		// Validation failures will never succeed on redelivery.
		if errors.Is(err, service.ErrInvalidVRM) ||
			errors.Is(err, service.ErrInvalidTimestamp) ||
			errors.Is(err, service.ErrInvalidDirection) ||
			errors.Is(err, repository.ErrNotFound) {
			return errPermanent{err}
		}
		return err
	}
	return nil
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		log.Println("SQS consumer: nil receipt handle, cannot delete message.")
		return
	}
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		log.Printf("SQS consumer: delete failed: %v", err)
	}
}

type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var p errPermanent
	return errors.As(err, &p)
}
