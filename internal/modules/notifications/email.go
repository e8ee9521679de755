package notifications

import (
	"context"
	"fmt"

	"delivery-dispatch/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Recipients resolves the destination address for an audience. Party contact
// data lives with the identity platform, not this service, so the lookup is
// pluggable.
type Recipients interface {
	EmailFor(audience models.Audience, event models.NotificationEvent) (string, error)
}

// RelayRecipients routes each audience class to a fixed relay mailbox, which
// forwards on the platform side.
type RelayRecipients struct {
	Customer   string
	Restaurant string
	Driver     string
}

func (r RelayRecipients) EmailFor(audience models.Audience, _ models.NotificationEvent) (string, error) {
	switch audience {
	case models.AudienceCustomer:
		return r.Customer, nil
	case models.AudienceRestaurant:
		return r.Restaurant, nil
	case models.AudienceDriver:
		return r.Driver, nil
	}
	return "", fmt.Errorf("no relay mailbox for audience %q", audience)
}

// SESEmailSender delivers notifications as email through Amazon SES.
type SESEmailSender struct {
	client     *sesv2.Client
	sender     string
	recipients Recipients
}

// NewSESEmailSender builds an SES sender using the default AWS credential chain.
func NewSESEmailSender(ctx context.Context, region, sender string, recipients Recipients) (*SESEmailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("notifications.NewSESEmailSender: %w", err)
	}
	return &SESEmailSender{
		client:     sesv2.NewFromConfig(cfg),
		sender:     sender,
		recipients: recipients,
	}, nil
}

func (s *SESEmailSender) Name() string { return "ses" }

func (s *SESEmailSender) Send(ctx context.Context, audience models.Audience, event models.NotificationEvent) error {
	to, err := s.recipients.EmailFor(audience, event)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Order %s is now %s", event.OrderID, event.Status)
	body := fmt.Sprintf(
		"Order %s changed to %s at %s.\nActor: %s\n",
		event.OrderID, event.Status, event.OccurredAt.Format("2006-01-02 15:04:05 MST"), event.Actor,
	)
	if event.Note != "" {
		body += "Note: " + event.Note + "\n"
	}

	_, err = s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notifications.SESEmailSender.Send: %w", err)
	}
	return nil
}
