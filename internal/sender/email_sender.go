// Package sender delivers payment-confirmation email over SMTP.
package sender

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMTPEmailSender struct {
	host string
	port string
	user string
	pass string
	from string
}

func NewSMTPEmailSender(host, port, user, pass, from string) *SMTPEmailSender {
	return &SMTPEmailSender{host: host, port: port, user: user, pass: pass, from: from}
}

func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.user, s.pass, s.host)

	e := email.NewEmail()
	e.From = s.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	return e.Send(addr, auth)
}

// NoopSender is used when SMTP is not configured; every send is logged and
// dropped.
type NoopSender struct{}

func (NoopSender) SendEmail(ctx context.Context, to, subject, body string) error {
	log.WithField("to", to).Warn("SMTP not configured, confirmation email dropped")
	return nil
}

const ConfirmationSubject = "Payment received"

// ConfirmationBody renders the plain-text confirmation for a settled
// transaction.
func ConfirmationBody(tx domain.Transaction) string {
	switch tx.ProductType {
	case domain.ProductMembershipNew:
		return fmt.Sprintf(
			"Hi!\n\nWe have received your membership contribution of EUR %s.\nYour member account is being set up and you will receive your credentials shortly.\n\nTransaction: %s\n\nSee you soon!",
			tx.Amount.StringFixed(2), tx.ID,
		)
	case domain.ProductMembershipRenewal:
		return fmt.Sprintf(
			"Hi!\n\nWe have received your membership contribution of EUR %s.\nYour membership has been extended.\n\nTransaction: %s\n\nSee you soon!",
			tx.Amount.StringFixed(2), tx.ID,
		)
	default:
		return fmt.Sprintf(
			"Hi!\n\nWe have received your payment of EUR %s for: %s.\n\nTransaction: %s\n\nSee you soon!",
			tx.Amount.StringFixed(2), tx.Description, tx.ID,
		)
	}
}
