package app

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"reminderd/internal/channel"
	"reminderd/internal/channel/email"
	"reminderd/internal/channel/push"
	"reminderd/internal/channel/sms"
	"reminderd/internal/channel/socket"
	"reminderd/internal/channel/telegram"
	"reminderd/internal/config"
	logx "reminderd/pkg/logx"
)

type adapters struct {
	hub   *socket.Hub
	push  *push.Adapter
	email *email.Adapter
	tg    *telegram.Adapter
	all   []channel.Adapter
}

// buildAdapters creates every channel. Providers without credentials are
// still registered so the dispatcher reports them as not configured.
func buildAdapters(ctx context.Context, cfg *config.Config, sec config.Secrets, log logx.Logger) (*adapters, error) {
	rt, err := mapRealtime(cfg)
	if err != nil {
		return nil, err
	}
	out := &adapters{hub: socket.NewHub(rt, log.With(logx.String("comp", "socket")))}

	var (
		snsClient *sns.Client
		sesClient *ses.Client
	)
	if region := strings.TrimSpace(cfg.AWS.Region); region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		snsClient = sns.NewFromConfig(awsCfg)
		sesClient = ses.NewFromConfig(awsCfg)
	} else {
		log.Info("aws.region not set; push, email and sms disabled")
	}

	// Typed nils must not leak into the adapter interfaces.
	var (
		snsAPI   push.SNSAPI
		smsAPI   sms.Publisher
		sesAPI   email.SESAPI
		teleSend telegram.Sender
	)
	if snsClient != nil {
		snsAPI, smsAPI = snsClient, snsClient
	}
	if sesClient != nil {
		sesAPI = sesClient
	}
	bot, err := telegram.NewBot(sec.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	if bot != nil {
		teleSend = bot
	}

	out.push = push.New(snsAPI, cfg.Push.PlatformApplicationARN)
	out.email = email.New(sesAPI, cfg.Email.From)
	out.tg = telegram.New(teleSend, cfg.Telegram.ParseMode)
	out.all = []channel.Adapter{
		out.hub,
		out.push,
		out.email,
		sms.New(smsAPI, cfg.SMS.SenderID),
		out.tg,
	}
	for _, a := range out.all {
		log.Debug("channel adapter", logx.String("channel", a.Name()), logx.Bool("configured", a.Configured()))
	}
	return out, nil
}
