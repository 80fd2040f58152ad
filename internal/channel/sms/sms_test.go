package sms

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"reminderd/internal/channel"
)

type fakePublisher struct{ got []*sns.PublishInput }

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.got = append(f.got, in)
	return &sns.PublishOutput{}, nil
}

func TestSMS(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := channel.Message{ReminderCount: 7}

	if err := New(nil, "").Send(ctx, channel.Recipient{Phone: "+1"}, m); !errors.Is(err, channel.ErrNotConfigured) {
		t.Fatalf("unconfigured: %v", err)
	}
	f := &fakePublisher{}
	a := New(f, "WATER")
	if err := a.Send(ctx, channel.Recipient{}, m); !errors.Is(err, channel.ErrNoContact) {
		t.Fatalf("no phone: %v", err)
	}
	if err := a.Send(ctx, channel.Recipient{Phone: "+15551234", Username: "Bo"}, m); err != nil {
		t.Fatalf("send: %v", err)
	}
	in := f.got[0]
	if aws.ToString(in.PhoneNumber) != "+15551234" || !strings.Contains(aws.ToString(in.Message), "#7") {
		t.Fatalf("input = %+v", in)
	}
	if aws.ToString(in.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue) != "WATER" {
		t.Fatalf("sender id missing")
	}
}
