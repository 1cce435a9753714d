package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/adclassify/internal/config"
	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/logger"
	"github.com/ignite/adclassify/internal/pkg/awsutil"
	"github.com/ignite/adclassify/internal/pkg/retry"
)

// SESAPI is the subset of the SESv2 client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier emails alert digests through AWS SES.
type SESNotifier struct {
	client      SESAPI
	renderer    *Renderer
	fromName    string
	fromEmail   string
	recipients  []string
	minSeverity domain.Severity
	policy      retry.Policy
}

// NewSESNotifier builds an SES client with the same credentials as the
// storage clients, in the notify region.
func NewSESNotifier(ctx context.Context, cfg config.NotifyConfig, store config.StorageConfig) (*SESNotifier, error) {
	awsCfg, err := awsutil.LoadConfig(ctx, store, cfg.SESRegion)
	if err != nil {
		return nil, err
	}
	return NewSESNotifierWithClient(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESNotifierWithClient wires a notifier over an existing client.
func NewSESNotifierWithClient(client SESAPI, cfg config.NotifyConfig) (*SESNotifier, error) {
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("notify: from_email is required for SES")
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("notify: at least one recipient is required for SES")
	}
	return &SESNotifier{
		client:      client,
		renderer:    NewRenderer(),
		fromName:    cfg.FromName,
		fromEmail:   cfg.FromEmail,
		recipients:  cfg.Recipients,
		minSeverity: ParseSeverity(cfg.MinSeverity),
		policy:      retry.DefaultPolicy(),
	}, nil
}

// Notify sends one digest email. Runs with no alerts at or above the
// configured severity send nothing.
func (n *SESNotifier) Notify(ctx context.Context, d Digest) error {
	d.Alerts = filterSeverity(d.Alerts, n.minSeverity)
	if len(d.Alerts) == 0 {
		return nil
	}

	msg, err := n.renderer.Render(d)
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail)),
		Destination:      &types.Destination{ToAddresses: n.recipients},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("client_id"), Value: aws.String(d.ClientID)},
			{Name: aws.String("run_id"), Value: aws.String(d.RunID)},
		},
	}

	var messageID string
	err = retry.Do(ctx, n.policy, "ses.SendEmail", func(ctx context.Context) error {
		out, err := n.client.SendEmail(ctx, input)
		if err != nil {
			return err
		}
		messageID = aws.ToString(out.MessageId)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sending alert digest: %w", err)
	}

	logger.Info("alert digest sent",
		"client_id", d.ClientID, "run_id", d.RunID, "alerts", len(d.Alerts), "message_id", messageID,
		"recipients", logger.RedactEmails(n.recipients))
	return nil
}
