// Package sqs bridges region alert messages onto an SQS queue.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/couchcryptid/disaster-alert-service/internal/alert"
)

// Config locates the queue. Endpoint is set for local emulators such as
// ElasticMQ or LocalStack, which also get static dummy credentials.
type Config struct {
	QueueURL string
	Region   string
	Endpoint string
}

type sendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher sends one SQS message per region alert.
// It implements alert.Publisher.
type Publisher struct {
	client   sendMessageAPI
	queueURL string
	fifo     bool
	now      func() time.Time
	logger   *slog.Logger
}

// NewPublisher loads AWS configuration and creates the publisher.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("SQS queue URL is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	var clientOpts []func(*sqs.Options)
	if cfg.Endpoint != "" {
		logger.Info("using custom SQS endpoint", "endpoint", cfg.Endpoint)
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	logger.Info("sqs publisher created", "region", cfg.Region, "queue_url", cfg.QueueURL)
	return newPublisher(sqs.NewFromConfig(awsCfg, clientOpts...), cfg.QueueURL, logger), nil
}

func newPublisher(client sendMessageAPI, queueURL string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		now:      time.Now,
		logger:   logger,
	}
}

type body struct {
	RegionKey   string          `json:"regionKey"`
	Summaries   []alert.Summary `json:"summaries"`
	PublishedAt time.Time       `json:"publishedAt"`
}

func (p *Publisher) Publish(ctx context.Context, regionKey string, summaries []alert.Summary) error {
	data, err := json.Marshal(body{RegionKey: regionKey, Summaries: summaries, PublishedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("serialize region alert: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"RegionKey": {
				DataType:    aws.String("String"),
				StringValue: aws.String(regionKey),
			},
		},
	}
	if p.fifo {
		// Orders per region; content-based dedup must be enabled on the queue.
		input.MessageGroupId = aws.String(regionKey)
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs publish %s: %w", regionKey, err)
	}
	p.logger.Debug("alert published", "transport", "sqs", "region_key", regionKey,
		"message_id", aws.ToString(out.MessageId), "events", len(summaries))
	return nil
}
