// Package notify sends operator e-mail for account lockouts and critical alerts.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/hostpanel/internal/models"
	pkglogger "github.com/BradenHooton/hostpanel/pkg/logger"
)

// Notifier delivers operator notifications. Delivery failures are returned
// but callers treat them as non-fatal.
type Notifier interface {
	AccountLocked(ctx context.Context, admin *models.AdminUser, until time.Time) error
	CriticalAlert(ctx context.Context, alert *models.SystemAlert) error
}

// sesAPI is the subset of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends plain-text mail through AWS SES.
type SESNotifier struct {
	client      sesAPI
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

func NewSESNotifier(ctx context.Context, region, fromAddress string, recipients []string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESNotifier(ses.NewFromConfig(cfg), fromAddress, recipients, logger), nil
}

func newSESNotifier(client sesAPI, fromAddress string, recipients []string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{client: client, fromAddress: fromAddress, recipients: recipients, logger: logger}
}

// AccountLocked mails the operators and the locked admin.
func (n *SESNotifier) AccountLocked(ctx context.Context, admin *models.AdminUser, until time.Time) error {
	subject := "hostpanel: admin account locked"
	body := fmt.Sprintf(`The hostpanel admin account %q was locked after repeated failed sign-in attempts.

Locked until: %s

If these attempts were not yours, review the audit log and consider resetting the password.
`, admin.Username, until.UTC().Format(time.RFC1123))

	to := append([]string{}, n.recipients...)
	if admin.Email != "" {
		to = append(to, admin.Email)
	}
	return n.send(ctx, to, subject, body)
}

func (n *SESNotifier) CriticalAlert(ctx context.Context, alert *models.SystemAlert) error {
	subject := fmt.Sprintf("hostpanel: [%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", alert.Message)
	fmt.Fprintf(&b, "Type: %s\n", alert.AlertType)
	if alert.ResourceName != nil {
		fmt.Fprintf(&b, "Resource: %s\n", *alert.ResourceName)
	}
	if alert.CurrentValue != nil && alert.ThresholdValue != nil {
		fmt.Fprintf(&b, "Value: %.1f (threshold %.1f)\n", *alert.CurrentValue, *alert.ThresholdValue)
	}
	fmt.Fprintf(&b, "Raised: %s\n", alert.CreatedAt.UTC().Format(time.RFC1123))

	return n.send(ctx, n.recipients, subject, b.String())
}

func (n *SESNotifier) send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(n.fromAddress),
		Destination: &types.Destination{ToAddresses: to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to send notification via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.InfoContext(ctx, "notification sent",
		slog.String("subject", subject),
		slog.Int("recipients", len(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogNotifier writes notifications to the log. Used when SES is not configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) AccountLocked(ctx context.Context, admin *models.AdminUser, until time.Time) error {
	n.logger.WarnContext(ctx, "admin account locked",
		slog.String("username", pkglogger.SanitizedUsername(admin.Username)),
		slog.Time("locked_until", until))
	return nil
}

func (n *LogNotifier) CriticalAlert(ctx context.Context, alert *models.SystemAlert) error {
	n.logger.WarnContext(ctx, "critical alert raised",
		slog.String("alert_type", alert.AlertType),
		slog.String("title", alert.Title))
	return nil
}
