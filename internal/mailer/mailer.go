// Package mailer delivers one-time codes by email.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/carbon-tracker/internal/circuitbreaker"
	"github.com/carbon-tracker/internal/config"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/types"
)

const sendTimeout = 15 * time.Second

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends mail through an authenticated SMTP relay
type SMTPMailer struct {
	client   sender
	from     string
	fromName string
	breaker  *circuitbreaker.CircuitBreaker
}

// NewSMTPMailer creates a mailer for cfg. Sends fail fast while the
// breaker is open.
func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	client, err := mail.NewClient(cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithTimeout(sendTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return newSMTPMailer(client, cfg.User, cfg.FromName), nil
}

func newSMTPMailer(client sender, from, fromName string) *SMTPMailer {
	return &SMTPMailer{
		client:   client,
		from:     from,
		fromName: fromName,
		breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("smtp")),
	}
}

// Breaker exposes the delivery circuit breaker for health reporting
func (m *SMTPMailer) Breaker() *circuitbreaker.CircuitBreaker {
	return m.breaker
}

// SendOTP emails code to the given address
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string, purpose types.OTPPurpose) error {
	subject, body := otpContent(code, purpose)

	msg := mail.NewMsg()
	if err := msg.FromFormat(m.fromName, m.from); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return m.breaker.Execute(ctx, func(ctx context.Context) error {
		return m.client.DialAndSendWithContext(ctx, msg)
	})
}

// LogMailer records codes in the log instead of sending them. It is used
// when no SMTP credentials are configured.
type LogMailer struct{}

// SendOTP logs the recipient and code
func (LogMailer) SendOTP(ctx context.Context, to, code string, purpose types.OTPPurpose) error {
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"to":      to,
		"purpose": purpose,
		"otp":     code,
	}).Warn("Email delivery disabled, OTP not sent")
	return nil
}

func otpContent(code string, purpose types.OTPPurpose) (subject, body string) {
	if purpose == types.OTPReset {
		return "Password Reset OTP",
			fmt.Sprintf("Your password reset code is: %s\n\nIt expires shortly. If you did not request a reset, ignore this email.", code)
	}
	return "Your OTP Code",
		fmt.Sprintf("Your verification code is: %s\n\nEnter it to finish creating your Carbon Tracker account.", code)
}
