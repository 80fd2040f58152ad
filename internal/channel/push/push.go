// Package push delivers reminders as mobile push notifications through
// Amazon SNS platform endpoints.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"reminderd/internal/channel"
)

// SNSAPI is the subset of *sns.Client used here.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	CreatePlatformEndpoint(ctx context.Context, in *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	DeleteEndpoint(ctx context.Context, in *sns.DeleteEndpointInput, optFns ...func(*sns.Options)) (*sns.DeleteEndpointOutput, error)
}

type Adapter struct {
	client      SNSAPI
	platformARN string
}

// New returns a push adapter. A nil client or empty platform ARN leaves it unconfigured.
func New(client SNSAPI, platformARN string) *Adapter {
	return &Adapter{client: client, platformARN: strings.TrimSpace(platformARN)}
}

func (a *Adapter) Name() string { return channel.Push }

func (a *Adapter) Configured() bool { return a != nil && a.client != nil && a.platformARN != "" }

// Send publishes to the recipient's endpoint ARN.
func (a *Adapter) Send(ctx context.Context, to channel.Recipient, msg channel.Message) error {
	if !a.Configured() {
		return channel.ErrNotConfigured
	}
	if strings.TrimSpace(to.PushEndpoint) == "" {
		return channel.ErrNoContact
	}
	raw, err := payload(msg)
	if err != nil {
		return err
	}
	_, err = a.client.Publish(ctx, &sns.PublishInput{
		MessageStructure: aws.String("json"),
		Message:          aws.String(raw),
		TargetArn:        aws.String(to.PushEndpoint),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// payload renders the SNS "json" message structure: one default body plus
// per-platform documents, each itself a JSON string.
func payload(msg channel.Message) (string, error) {
	data := map[string]string{
		"type":          msg.Type,
		"reminderCount": fmt.Sprint(msg.ReminderCount),
		"timestamp":     msg.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": msg.Title, "body": msg.Body},
		"data":         data,
	})
	if err != nil {
		return "", err
	}
	apns, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert": map[string]string{"title": msg.Title, "body": msg.Body},
			"sound": "default",
		},
		"data": data,
	})
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(map[string]string{
		"default":      msg.Body,
		"GCM":          string(gcm),
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// RegisterDevice creates (or returns the existing) SNS endpoint for a device token.
func (a *Adapter) RegisterDevice(ctx context.Context, token string) (string, error) {
	if !a.Configured() {
		return "", channel.ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("device token is required")
	}
	out, err := a.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(a.platformARN),
		Token:                  aws.String(token),
	})
	if err != nil {
		return "", fmt.Errorf("sns create endpoint: %w", err)
	}
	return aws.ToString(out.EndpointArn), nil
}

// UnregisterDevice deletes an endpoint. Unconfigured adapters treat it as done.
func (a *Adapter) UnregisterDevice(ctx context.Context, endpointARN string) error {
	if !a.Configured() || strings.TrimSpace(endpointARN) == "" {
		return nil
	}
	if _, err := a.client.DeleteEndpoint(ctx, &sns.DeleteEndpointInput{EndpointArn: aws.String(endpointARN)}); err != nil {
		return fmt.Errorf("sns delete endpoint: %w", err)
	}
	return nil
}
