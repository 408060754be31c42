package services

import (
	"context"
	"fmt"
	"html"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"ballouchi/internal/logger"
)

type EmailService interface {
	SendVerificationEmail(ctx context.Context, to, username, code string) error
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailService struct {
	dialer mailDialer
	from   string
	dryRun bool
	log    *zap.Logger
}

// NewEmailService sends through SMTP. With dryRun the message is only
// logged, code included, which is meant for local development.
func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string, dryRun bool, log *zap.Logger) EmailService {
	if log == nil {
		log = zap.NewNop()
	}
	return &emailService{
		dialer: gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword),
		from:   fromEmail,
		dryRun: dryRun,
		log:    log,
	}
}

func (s *emailService) SendVerificationEmail(ctx context.Context, to, username, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Verify Your Email")
	m.SetBody("text/html", verificationBody(username, code))

	if s.dryRun {
		logger.WithContext(ctx, s.log).Info("verification email (dry run)",
			zap.String("to", logger.MaskEmail(to)),
			zap.String("code", code),
		)
		return nil
	}

	// gomail has no context support; give up waiting once ctx is done
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send verification email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send verification email: %w", ctx.Err())
	}
}

func verificationBody(username, code string) string {
	greeting := "Welcome to Ballouchi!"
	if username != "" {
		greeting = fmt.Sprintf("Welcome to Ballouchi, %s!", html.EscapeString(username))
	}
	return fmt.Sprintf(`
		<h2>%s</h2>
		<p>Your verification code is: <strong>%s</strong></p>
		<p>Enter this code in the app to verify your email address.</p>
	`, greeting, html.EscapeString(code))
}
