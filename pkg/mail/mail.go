// Package mail 发送事务性邮件。
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ErrNotConfigured 表示没有配置邮件服务的 API key。
var ErrNotConfigured = errors.New("mail: email service is not configured")

// Email 是一封待发送的邮件。
type Email struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Sender 发送一封邮件并返回服务商的消息 ID。
type Sender interface {
	Send(ctx context.Context, e Email) (string, error)
}

// ResendSender 通过 Resend API 发送邮件。
type ResendSender struct {
	client *resend.Client
}

// NewResendSender creates a Resend-backed sender. An empty key yields a sender
// that fails every call with ErrNotConfigured without touching the network.
func NewResendSender(apiKey string) *ResendSender {
	if apiKey == "" {
		return &ResendSender{}
	}
	return &ResendSender{client: resend.NewClient(apiKey)}
}

// Configured 报告是否配置了 API key。
func (s *ResendSender) Configured() bool {
	return s != nil && s.client != nil
}

func (s *ResendSender) Send(ctx context.Context, e Email) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	resp, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    e.From,
		To:      e.To,
		ReplyTo: e.ReplyTo,
		Subject: e.Subject,
		Html:    e.HTML,
		Text:    e.Text,
	})
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	return resp.Id, nil
}
