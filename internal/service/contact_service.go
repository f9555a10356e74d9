package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"portfolio-go/internal/config"
	"portfolio-go/internal/model"
	"portfolio-go/internal/repository"
	"portfolio-go/pkg/log"
	"portfolio-go/pkg/mail"
)

const (
	msgFieldsRequired    = "All fields are required"
	msgInvalidEmail      = "Please enter a valid email address"
	msgMailNotConfigured = "Email service is not configured. Please try again later."
	msgSendFailed        = "Failed to send email. Please try again later."
)

var (
	notificationTmpl = template.Must(template.New("notification").Parse(`<h2>New message from your portfolio</h2>
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> <a href="mailto:{{.Email}}">{{.Email}}</a></p>
<p><strong>Message:</strong></p>
<p style="white-space: pre-wrap">{{.Message}}</p>`))

	confirmationTmpl = template.Must(template.New("confirmation").Parse(`<h2>Thanks for reaching out, {{.Name}}!</h2>
<p>I received your message and will get back to you as soon as I can.</p>
<p>{{.Owner}}{{if .Site}}<br><a href="{{.Site}}">{{.Site}}</a>{{end}}</p>`))
)

// ContactService 处理联系表单提交。
type ContactService interface {
	Submit(ctx context.Context, form model.ContactForm) model.ContactResult
}

type contactService struct {
	cfg         config.ContactConfig
	mailCfg     config.MailConfig
	sender      mail.Sender
	contactRepo repository.ContactRepository
}

// NewContactService 创建一个新的 ContactService 实例。contactRepo 可以为 nil。
func NewContactService(cfg config.ContactConfig, mailCfg config.MailConfig, sender mail.Sender, contactRepo repository.ContactRepository) ContactService {
	return &contactService{cfg: cfg, mailCfg: mailCfg, sender: sender, contactRepo: contactRepo}
}

// Submit 校验表单并发送通知邮件；确认邮件失败不影响结果。
func (s *contactService) Submit(ctx context.Context, form model.ContactForm) model.ContactResult {
	name := strings.TrimSpace(form.Name)
	email := strings.TrimSpace(form.Email)
	message := strings.TrimSpace(form.Message)

	if name == "" || email == "" || message == "" {
		return model.ContactResult{Error: msgFieldsRequired, Kind: model.ContactInvalid}
	}
	if !strings.Contains(email, "@") {
		return model.ContactResult{Error: msgInvalidEmail, Kind: model.ContactInvalid}
	}

	body, err := render(notificationTmpl, map[string]string{"Name": name, "Email": email, "Message": message})
	if err != nil {
		log.Errorf("Contact Form: failed to render notification: %v", err)
		return model.ContactResult{Error: msgSendFailed, Kind: model.ContactUnavailable}
	}
	id, err := s.sender.Send(ctx, mail.Email{
		From:    s.mailCfg.From,
		To:      []string{s.cfg.OwnerEmail},
		ReplyTo: email,
		Subject: "New Portfolio Contact: " + name,
		HTML:    body,
		Text:    fmt.Sprintf("Name: %s\nEmail: %s\n\n%s", name, email, message),
	})
	if errors.Is(err, mail.ErrNotConfigured) {
		log.Warnf("Contact Form: email api key not configured")
		return model.ContactResult{Error: msgMailNotConfigured, Kind: model.ContactUnavailable}
	}
	if err != nil {
		log.Errorf("Contact Form: notification email error: %v", err)
		return model.ContactResult{Error: msgSendFailed, Kind: model.ContactUnavailable}
	}
	log.Infow("Contact Form: notification sent", "id", id, "from", email)

	submission := &model.ContactSubmission{Name: name, Email: email, Message: message, NotificationSent: true}
	if s.cfg.SendConfirmation {
		submission.ConfirmationSent = s.confirm(ctx, name, email)
	}
	if s.contactRepo != nil {
		if err := s.contactRepo.Create(ctx, submission); err != nil {
			log.Warnf("Contact Form: failed to persist submission: %v", err)
		}
	}

	return model.ContactResult{
		Success: true,
		Message: fmt.Sprintf("Thanks %s! Your message has been sent to %s. He'll get back to you soon!", name, s.ownerFirstName()),
	}
}

// confirm 发送给提交者的确认邮件，只记录失败。
func (s *contactService) confirm(ctx context.Context, name, email string) bool {
	body, err := render(confirmationTmpl, map[string]string{"Name": name, "Owner": s.cfg.OwnerName, "Site": s.cfg.SiteURL})
	if err != nil {
		log.Warnf("Contact Form: failed to render confirmation: %v", err)
		return false
	}
	from := s.mailCfg.ConfirmationFrom
	if from == "" {
		from = s.mailCfg.From
	}
	if _, err := s.sender.Send(ctx, mail.Email{
		From:    from,
		To:      []string{email},
		Subject: "Thanks for reaching out!",
		HTML:    body,
	}); err != nil {
		log.Warnf("Contact Form: confirmation email failed (but notification sent): %v", err)
		return false
	}
	return true
}

func (s *contactService) ownerFirstName() string {
	if f := strings.Fields(s.cfg.OwnerName); len(f) > 0 {
		return f[0]
	}
	return "me"
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
