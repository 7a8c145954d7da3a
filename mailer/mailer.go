// Package mailer sends transactional and contact email through Resend.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("mailer: no recipient")

type Message struct {
	To      []string
	Subject string
	HTML    string
	ReplyTo string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Resend struct {
	client *resend.Client
	from   string
	log    *zap.Logger
}

func NewResend(apiKey, from string, timeout time.Duration, log *zap.Logger) *Resend {
	hc := &http.Client{Timeout: timeout}
	return &Resend{
		client: resend.NewCustomClient(hc, apiKey),
		from:   from,
		log:    log,
	}
}

func (r *Resend) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	sent, err := r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		r.log.Error("resend send failed", zap.Strings("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
		return fmt.Errorf("mailer: send %q: %w", msg.Subject, err)
	}
	r.log.Info("email sent", zap.String("id", sent.Id), zap.Strings("to", msg.To))
	return nil
}

// Nop logs instead of sending. Used when Resend is not configured.
type Nop struct {
	Log *zap.Logger
}

func (n Nop) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	n.Log.Warn("email not sent: resend is not configured", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
