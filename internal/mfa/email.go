package mfa

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/models"
	pkglogger "github.com/wardenhq/warden/pkg/logger"
)

const emailCodeDigits = 6

// EmailChannel delivers passcodes over AWS SES.
type EmailChannel struct {
	sesClient *ses.Client
	config    config.EmailConfig
	timeout   time.Duration
	logger    *slog.Logger
}

// NewEmailChannel creates the email channel. The SES client is only built
// when the channel is configured.
func NewEmailChannel(cfg config.EmailConfig, timeout time.Duration, logger *slog.Logger) (*EmailChannel, error) {
	ch := &EmailChannel{config: cfg, timeout: timeout, logger: logger}
	if !ch.Configured() {
		return ch, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	ch.sesClient = ses.NewFromConfig(awsCfg)
	return ch, nil
}

func (ch *EmailChannel) Name() models.MFAChannel {
	return models.ChannelEmail
}

func (ch *EmailChannel) Configured() bool {
	return ch.config.AWSRegion != "" && ch.config.FromAddress != ""
}

func (ch *EmailChannel) Issue() (string, error) {
	return generateDigits(emailCodeDigits)
}

// Dispatch sends the passcode to the configured recipient.
func (ch *EmailChannel) Dispatch(ctx context.Context, code string) error {
	recipient := ch.config.Recipient
	if recipient == "" {
		recipient = ch.config.FromAddress
	}

	subject := fmt.Sprintf("Warden MFA - %s", time.Now().Format(time.RFC1123))
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>One-time passcode</h2>
    <p>Your passcode is:</p>
    <p style="font-size: 24px; letter-spacing: 4px;"><code>%s</code></p>
    <p>It expires in %s. If you did not request this code, someone else may
    be probing your server.</p>
</body>
</html>
`, code, formatDuration(ch.timeout))
	textBody := fmt.Sprintf("Your one-time passcode is: %s\n\nIt expires in %s.\n", code, formatDuration(ch.timeout))

	input := &ses.SendEmailInput{
		Source: aws.String(ch.config.FromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := ch.sesClient.SendEmail(ctx, input)
	if err != nil {
		ch.logger.Error("failed to send passcode via SES", slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	ch.logger.Info("passcode sent via email",
		slog.String("message_id", *result.MessageId),
		slog.String("to", pkglogger.SanitizedEmail(recipient)))
	return nil
}

// formatDuration renders a duration like "5 minutes" for user-facing text.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
