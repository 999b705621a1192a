package logsink

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"dentsync/internal/config"
)

// Notifier delivers best-effort alerts for critical failure classes. A
// notifier error is only ever logged, never raised.
type Notifier interface {
	Notify(subject, body string) error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(string, string) error { return nil }

type GmailNotifier struct {
	service *gmail.Service
	from    string
	to      string
}

func NewGmailNotifier(ctx context.Context, cfg config.Config) (*GmailNotifier, error) {
	if err := cfg.Require("NOTIFY_EMAIL", cfg.NotifyEmail); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_CLIENT_ID", cfg.GoogleClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_REFRESH_TOKEN", cfg.GoogleRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       []string{gmail.GmailSendScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GoogleRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &GmailNotifier{service: svc, from: cfg.NotifyFrom, to: cfg.NotifyEmail}, nil
}

func (n *GmailNotifier) Notify(subject, body string) error {
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", n.from, n.to, subject, body)
	msg := &gmail.Message{Raw: base64.RawURLEncoding.EncodeToString([]byte(raw))}
	_, err := n.service.Users.Messages.Send("me", msg).Do()
	return err
}
