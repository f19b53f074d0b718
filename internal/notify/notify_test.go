package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/hostpanel/internal/models"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

func TestSESNotifier_AccountLocked(t *testing.T) {
	client := &fakeSES{}
	n := newSESNotifier(client, "panel@example.com", []string{"ops@example.com"}, discard())

	admin := &models.AdminUser{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, n.AccountLocked(context.Background(), admin, time.Now().Add(15*time.Minute)))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "panel@example.com", aws.ToString(in.Source))
	assert.ElementsMatch(t, []string{"ops@example.com", "alice@example.com"}, in.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), `"alice"`)
}

func TestSESNotifier_CriticalAlert(t *testing.T) {
	client := &fakeSES{}
	n := newSESNotifier(client, "panel@example.com", []string{"ops@example.com"}, discard())

	current, threshold := 98.0, 90.0
	alert := &models.SystemAlert{
		AlertType: "disk_full", Severity: models.SeverityCritical,
		Title: "Disk almost full", Message: "Root filesystem at 98%",
		CurrentValue: &current, ThresholdValue: &threshold, CreatedAt: time.Now(),
	}
	require.NoError(t, n.CriticalAlert(context.Background(), alert))

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "hostpanel: [CRITICAL] Disk almost full", aws.ToString(client.inputs[0].Message.Subject.Data))
	assert.Contains(t, aws.ToString(client.inputs[0].Message.Body.Text.Data), "98.0 (threshold 90.0)")
}

func TestSESNotifier_SendFailure(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	n := newSESNotifier(client, "panel@example.com", []string{"ops@example.com"}, discard())

	err := n.CriticalAlert(context.Background(), &models.SystemAlert{Title: "x", Severity: models.SeverityCritical})
	assert.ErrorContains(t, err, "throttled")
}

func TestSESNotifier_NoRecipients(t *testing.T) {
	client := &fakeSES{}
	n := newSESNotifier(client, "panel@example.com", nil, discard())

	require.NoError(t, n.CriticalAlert(context.Background(), &models.SystemAlert{Title: "x"}))
	assert.Empty(t, client.inputs)
}
