package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESChannel emails events via AWS SES. Used for the closure notifications
// that need a human to actually see them.
type SESChannel struct {
	from   string
	to     string
	client *sesv2.Client
}

// NewSESChannel creates an SES-backed channel. Returns an error when the AWS
// config chain cannot be resolved.
func NewSESChannel(ctx context.Context, region, from, to string) (*SESChannel, error) {
	if region == "" {
		region = "us-west-2"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &SESChannel{
		from:   from,
		to:     to,
		client: sesv2.NewFromConfig(cfg),
	}, nil
}

func (s *SESChannel) Name() string { return "ses" }

func (s *SESChannel) Send(ctx context.Context, ev Event) error {
	subject := fmt.Sprintf("[adpilot/%s] %s", ev.Severity, ev.Subject)
	body := ev.Body
	if ev.BusinessID != "" {
		body += "\n\nBusiness: " + ev.BusinessID
	}
	for k, v := range ev.Fields {
		body += fmt.Sprintf("\n%s: %s", k, v)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{s.to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("sending via SES: %w", err)
	}
	if result.MessageId != nil {
		log.Printf("[Notify] SES sent %s (id: %s)", ev.Subject, *result.MessageId)
	}
	return nil
}
