package notifications

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// EmailChannel delivers a notification by email.
type EmailChannel interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSChannel delivers a notification by text message.
type SMSChannel interface {
	Send(ctx context.Context, phone, message string) error
}

type sesEmailChannel struct {
	client *sesv2.Client
	from   string
}

// NewSESEmailChannel builds an email channel backed by Amazon SES.
func NewSESEmailChannel(ctx context.Context, region, from string) (EmailChannel, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &sesEmailChannel{client: sesv2.NewFromConfig(cfg), from: from}, nil
}

func (c *sesEmailChannel) Send(ctx context.Context, to, subject, body string) error {
	_, err := c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(body)},
				},
			},
		},
	})
	return err
}

type snsSMSChannel struct {
	client   *sns.Client
	senderID string
}

// NewSNSSMSChannel builds an SMS channel backed by Amazon SNS.
func NewSNSSMSChannel(ctx context.Context, region, senderID string) (SMSChannel, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &snsSMSChannel{client: sns.NewFromConfig(cfg), senderID: senderID}, nil
}

func (c *snsSMSChannel) Send(ctx context.Context, phone, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String("+91" + phone),
		Message:     aws.String(message),
	}
	if c.senderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(c.senderID),
			},
		}
	}
	_, err := c.client.Publish(ctx, input)
	return err
}

// NoopEmailChannel is used when email delivery is disabled.
type NoopEmailChannel struct{}

func (NoopEmailChannel) Send(context.Context, string, string, string) error { return nil }

// NoopSMSChannel is used when SMS delivery is disabled.
type NoopSMSChannel struct{}

func (NoopSMSChannel) Send(context.Context, string, string) error { return nil }
