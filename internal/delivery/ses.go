// internal/delivery/ses.go
package delivery

import (
	"context"
	"errors"
	"fmt"

	"clinic-worker/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESDisplayer emails notifications to the clinic inbox. Low priority
// notifications other than the daily summary are not emailed.
type SESDisplayer struct {
	client SESService
	from   string
	to     []string
}

var ErrMissingRecipients = errors.New("ses sender and recipients are required")

func NewSESDisplayer(client SESService, from string, to []string) (*SESDisplayer, error) {
	if from == "" || len(to) == 0 {
		return nil, ErrMissingRecipients
	}
	return &SESDisplayer{client: client, from: from, to: to}, nil
}

func (d *SESDisplayer) Name() string { return "ses" }

func (d *SESDisplayer) Show(ctx context.Context, msg Message) error {
	if msg.Priority == models.PriorityLow && msg.Type != models.NotificationTypeDailySummary {
		return nil
	}

	_, err := d.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(d.from),
		Destination: &types.Destination{ToAddresses: d.to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Title), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
