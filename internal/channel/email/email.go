// Package email delivers reminders through Amazon SES.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"reminderd/internal/channel"
)

// SESAPI is the subset of *ses.Client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	GetSendQuota(ctx context.Context, in *ses.GetSendQuotaInput, optFns ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error)
}

const subject = "💧 Time to Drink Water!"

var htmlBody = template.Must(template.New("reminder").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
<h1>💧 Hydration Reminder</h1>
<p>Hi {{.Name}}! 👋</p>
<p>It's time to take a water break! This is your <strong>reminder #{{.Count}}</strong> today.</p>
<ul>
<li>Aim for 8 glasses of water daily</li>
<li>Drink water before you feel thirsty</li>
<li>Keep a water bottle nearby</li>
</ul>
</div>`))

type Adapter struct {
	client SESAPI
	from   string
}

// New returns an SES adapter. A nil client or empty sender leaves it unconfigured.
func New(client SESAPI, from string) *Adapter {
	return &Adapter{client: client, from: strings.TrimSpace(from)}
}

func (a *Adapter) Name() string { return channel.Email }

func (a *Adapter) Configured() bool { return a != nil && a.client != nil && a.from != "" }

func (a *Adapter) Send(ctx context.Context, to channel.Recipient, msg channel.Message) error {
	if !a.Configured() {
		return channel.ErrNotConfigured
	}
	addr := strings.TrimSpace(to.Email)
	if addr == "" {
		return channel.ErrNoContact
	}

	var html bytes.Buffer
	if err := htmlBody.Execute(&html, struct {
		Name  string
		Count int
	}{channel.Greeting(to), msg.ReminderCount}); err != nil {
		return err
	}

	_, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{addr}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html.String())},
				Text: &types.Content{Data: aws.String(channel.ShortText(to, msg))},
			},
		},
		Source: aws.String(a.from),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// Verify checks that the SES credentials work. It sends nothing.
func (a *Adapter) Verify(ctx context.Context) error {
	if !a.Configured() {
		return channel.ErrNotConfigured
	}
	if _, err := a.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{}); err != nil {
		return fmt.Errorf("ses quota: %w", err)
	}
	return nil
}
