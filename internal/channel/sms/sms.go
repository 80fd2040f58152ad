// Package sms delivers reminders as text messages through Amazon SNS.
package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"reminderd/internal/channel"
)

// Publisher is the subset of *sns.Client used here.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Adapter struct {
	client   Publisher
	senderID string
}

func New(client Publisher, senderID string) *Adapter {
	return &Adapter{client: client, senderID: strings.TrimSpace(senderID)}
}

func (a *Adapter) Name() string { return channel.SMS }

func (a *Adapter) Configured() bool { return a != nil && a.client != nil }

func (a *Adapter) Send(ctx context.Context, to channel.Recipient, msg channel.Message) error {
	if !a.Configured() {
		return channel.ErrNotConfigured
	}
	phone := strings.TrimSpace(to.Phone)
	if phone == "" {
		return channel.ErrNoContact
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if a.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(a.senderID)}
	}

	_, err := a.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(channel.ShortText(to, msg)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns sms: %w", err)
	}
	return nil
}
