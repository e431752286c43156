package deadletter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	json "github.com/goccy/go-json"

	"github.com/shineum/smtp2webhook/internal/email"
)

// SESConfig holds the configuration for creating a SESSink.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Sender is the verified SES identity the alert is sent from.
	Sender string

	// Recipient is the operator mailbox that receives alerts.
	Recipient string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSink alerts an operator through AWS SES v2 whenever an email could not
// be delivered to the webhook. The alert carries the full record as JSON.
type SESSink struct {
	sender    string
	recipient string
	client    SendEmailAPI
}

// NewSES creates a SESSink. Static credentials are used when both keys are
// set; otherwise the default AWS credential chain applies.
func NewSES(ctx context.Context, cfg SESConfig) (*SESSink, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESWithClient(cfg.Sender, cfg.Recipient, sesv2.NewFromConfig(awsCfg)), nil
}

// NewSESWithClient creates a SESSink with a custom client, used for testing.
func NewSESWithClient(sender, recipient string, client SendEmailAPI) *SESSink {
	return &SESSink{
		sender:    sender,
		recipient: recipient,
		client:    client,
	}
}

// Store sends the alert email.
func (s *SESSink) Store(ctx context.Context, msg *email.Email, reason error) error {
	input, err := buildAlertInput(s.sender, s.recipient, NewRecord(msg, reason))
	if err != nil {
		return err
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES alert failed: %w", err)
	}
	return nil
}

// Name returns the sink name.
func (s *SESSink) Name() string {
	return "ses"
}

// buildAlertInput creates the SES request for one dead-letter record.
func buildAlertInput(sender, recipient string, rec Record) (*sesv2.SendEmailInput, error) {
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	var b strings.Builder
	b.WriteString("An inbound email could not be delivered to the webhook and was dropped.\n\n")
	fmt.Fprintf(&b, "Reason: %s\n", rec.Reason)
	fmt.Fprintf(&b, "Failed at: %s\n\n", rec.FailedAt.Format(time.RFC3339))
	b.Write(payload)
	b.WriteString("\n")

	subject := "Undeliverable webhook message"
	if rec.Email != nil && rec.Email.Subject != "" {
		subject += ": " + rec.Email.Subject
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(b.String()),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}, nil
}
