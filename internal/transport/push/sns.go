// Package push delivers weekly drop notifications over AWS SNS.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/events"
)

// Publisher sends drop notifications to an SNS topic. Downstream fan-out
// to device push tokens happens behind the topic, not here.
type Publisher struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// New creates an SNS publisher using the default AWS credential chain.
func New(ctx context.Context, region, topicARN string, logger *zap.Logger) (*Publisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Publisher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

// notification is the topic message payload.
type notification struct {
	UserID     string `json:"userId"`
	DropNumber int    `json:"dropNumber"`
	MatchCount int    `json:"matchCount"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// Handle publishes a drop_delivered event. Wired behind the event sink,
// so a publish failure is logged by the sink and never reaches the batch.
func (p *Publisher) Handle(ctx context.Context, ev events.Event) error {
	dropNumber, _ := ev.Payload["dropNumber"].(int)
	matchCount, _ := ev.Payload["matchCount"].(int)

	msg := notification{
		UserID:     ev.UserID,
		DropNumber: dropNumber,
		MatchCount: matchCount,
		Title:      "Your weekly drop is here",
		Body:       fmt.Sprintf("%d new matches are waiting for you.", matchCount),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish drop notification for %s: %w", ev.UserID, err)
	}

	p.logger.Debug("drop notification published",
		zap.String("user_id", ev.UserID),
		zap.Int("drop_number", dropNumber),
		zap.Stringp("message_id", out.MessageId))
	return nil
}
