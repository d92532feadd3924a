// Package ses adapts AWS SES (SDK v2) as a dispatch transport for
// senders configured with the ses transport.
package ses

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/pkg/logger"
)

// Sender sends emails through SESv2 with static credentials.
type Sender struct {
	client *sesv2.Client
	region string
}

// NewSender initializes the SDK client. Missing credentials are not an
// error here; they surface on the first Send.
func NewSender(accessKey, secretKey, region string) *Sender {
	if region == "" {
		region = "us-east-1"
	}
	s := &Sender{region: region}

	if accessKey != "" && secretKey != "" {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			logger.Warn("ses client init failed", "region", region, "error", err.Error())
		} else {
			s.client = sesv2.NewFromConfig(cfg)
		}
	}
	return s
}

// Send delivers one message and returns the SES message id.
func (s *Sender) Send(ctx context.Context, msg *dispatch.Message) (string, error) {
	if s.client == nil {
		return "", &dispatch.TransportError{Provider: "ses", Message: "client not initialized, check credentials"}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.PlainText != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.PlainText), Charset: aws.String("UTF-8")}
	}
	for name, value := range msg.Tags {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name: aws.String(name), Value: aws.String(value),
		})
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", &dispatch.TransportError{Provider: "ses", Message: err.Error()}
	}
	if out.MessageId == nil || *out.MessageId == "" {
		return "", &dispatch.TransportError{Provider: "ses", Message: "response missing message id"}
	}
	return *out.MessageId, nil
}
