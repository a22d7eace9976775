package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/queue"
	"github.com/thatlq1812/user-agreement/internal/repository"
)

// LogSubscriber writes one line per decision.
type LogSubscriber struct {
	log *zap.Logger
}

func NewLogSubscriber(log *zap.Logger) *LogSubscriber {
	return &LogSubscriber{log: log}
}

func (s *LogSubscriber) Name() string { return "log" }

func (s *LogSubscriber) Handle(ctx context.Context, ev Event) error {
	msg := fmt.Sprintf("You have agreed with %s", ev.Agreement.Title)
	if ev.Kind == EventRejected {
		msg = fmt.Sprintf("You have not agreed with %s", ev.Agreement.Title)
	}
	s.log.Info(msg,
		zap.String("user_id", ev.Submission.UserID),
		zap.Int64("agreement_id", ev.Agreement.ID),
		zap.Int64("revision_id", ev.Submission.RevisionID),
	)
	return nil
}

// RejectionSubscriber remembers rejected revisions and schedules the expiry check.
// An acceptance clears the memo.
type RejectionSubscriber struct {
	userData repository.UserDataRepository
	queue    queue.Queue
	now      func() time.Time
}

func NewRejectionSubscriber(userData repository.UserDataRepository, q queue.Queue, now func() time.Time) *RejectionSubscriber {
	if now == nil {
		now = time.Now
	}
	return &RejectionSubscriber{userData: userData, queue: q, now: now}
}

func (s *RejectionSubscriber) Name() string { return "rejection" }

func (s *RejectionSubscriber) Handle(ctx context.Context, ev Event) error {
	sub := ev.Submission
	if ev.Kind == EventAccepted {
		return s.userData.ForgetRejection(ctx, sub.UserID, sub.AgreementID)
	}

	if err := s.userData.RememberRejection(ctx, sub.UserID, sub.AgreementID, sub.RevisionID); err != nil {
		return err
	}

	task := domain.ExpiryTask{
		AgreementID: sub.AgreementID,
		RevisionID:  sub.RevisionID,
		UserID:      sub.UserID,
		EnqueuedAt:  s.now(),
	}
	if err := s.queue.Enqueue(ctx, domain.QueueExpiry, task); err != nil {
		return fmt.Errorf("failed to schedule expiry: %w", err)
	}
	return nil
}

// Sender delivers a plain-text message.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPConfig holds the outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	SSL      bool
}

// SMTPSender sends through an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
	d.SSL = s.cfg.SSL

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// MailSubscriber emails the account about its decision.
type MailSubscriber struct {
	sender Sender
	log    *zap.Logger
}

func NewMailSubscriber(sender Sender, log *zap.Logger) *MailSubscriber {
	return &MailSubscriber{sender: sender, log: log}
}

func (s *MailSubscriber) Name() string { return "mail" }

func (s *MailSubscriber) Handle(ctx context.Context, ev Event) error {
	if ev.Account == nil || ev.Account.Email == "" {
		s.log.Debug("no address for decision mail", zap.String("user_id", ev.Submission.UserID))
		return nil
	}

	subject := fmt.Sprintf("You accepted: %s", ev.Agreement.Title)
	body := fmt.Sprintf("You have agreed with %s (revision %d).", ev.Agreement.Title, ev.Submission.RevisionID)
	if ev.Kind == EventRejected {
		subject = fmt.Sprintf("You declined: %s", ev.Agreement.Title)
		body = fmt.Sprintf("You have not agreed with %s. Your account will be blocked unless you accept it.",
			ev.Agreement.Title)
	}
	return s.sender.Send(ev.Account.Email, subject, body)
}
