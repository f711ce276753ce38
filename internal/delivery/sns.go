// internal/delivery/sns.go
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the part of the SNS client used here, for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSDisplayer publishes notifications to a topic the clinic desktops subscribe to.
type SNSDisplayer struct {
	client   SNSService
	topicARN string
}

var ErrMissingTopic = errors.New("sns topic arn is required")

func NewSNSDisplayer(client SNSService, topicARN string) (*SNSDisplayer, error) {
	if topicARN == "" {
		return nil, ErrMissingTopic
	}
	return &SNSDisplayer{client: client, topicARN: topicARN}, nil
}

func (d *SNSDisplayer) Name() string { return "sns" }

func (d *SNSDisplayer) Show(ctx context.Context, msg Message) error {
	attrs := map[string]types.MessageAttributeValue{
		"notification_type": stringAttr(msg.Type.String()),
		"priority":          stringAttr(msg.Priority.String()),
	}
	if msg.Sound != "" {
		attrs["sound"] = stringAttr(msg.Sound)
	}

	_, err := d.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(d.topicARN),
		Subject:           aws.String(msg.Title),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
