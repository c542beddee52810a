// Package effects fans out the side effects of a settled payment. Each
// effect runs on its own; one failing effect is logged and recorded but
// never blocks the others, and never rolls back the ledger transition that
// triggered it.
package effects

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
	"payment-service/internal/events"
	"payment-service/internal/sender"
)

// Outcome is the per-effect result of a dispatch.
type Outcome struct {
	Effect string
	Err    error
}

type RegistrationMarker interface {
	MarkPaid(ctx context.Context, id string, regType domain.RegistrationType, deposit bool) error
}

type Provisioner interface {
	CreateAccount(ctx context.Context, contact domain.Contact) (string, error)
	ExtendMembership(ctx context.Context, userID string) error
	Resync(ctx context.Context, userID string) error
}

type UserBackfiller interface {
	SetUser(ctx context.Context, id, userID string) error
}

type EmailLogSaver interface {
	SaveLog(ctx context.Context, l domain.EmailLog) error
}

type Dispatcher struct {
	registrations RegistrationMarker
	identity      Provisioner
	transactions  UserBackfiller
	emailSender   sender.EmailSender
	emailLogs     EmailLogSaver
	publisher     events.Publisher

	emailRetryDelay time.Duration
}

func NewDispatcher(
	registrations RegistrationMarker,
	identity Provisioner,
	transactions UserBackfiller,
	emailSender sender.EmailSender,
	emailLogs EmailLogSaver,
	publisher events.Publisher,
) *Dispatcher {
	return &Dispatcher{
		registrations:   registrations,
		identity:        identity,
		transactions:    transactions,
		emailSender:     emailSender,
		emailLogs:       emailLogs,
		publisher:       publisher,
		emailRetryDelay: 1 * time.Second,
	}
}

// Dispatch runs every post-payment effect for a settled transaction. The
// deposit flag selects which trip payment milestone is marked paid. The
// returned outcomes are for logging and diagnostics only; callers must not
// fail the reconciliation on them.
func (d *Dispatcher) Dispatch(ctx context.Context, tx domain.Transaction, deposit bool) []Outcome {
	var outcomes []Outcome

	if tx.RegistrationID.Valid && tx.RegistrationType.Valid {
		err := d.registrations.MarkPaid(ctx, tx.RegistrationID.String, domain.RegistrationType(tx.RegistrationType.String), deposit)
		if err != nil {
			log.WithError(err).WithField("registration_id", tx.RegistrationID.String).
				Error("Failed to mark registration paid")
		}
		outcomes = append(outcomes, Outcome{Effect: "registration_update", Err: err})
	}

	if tx.ProductType.IsMembership() {
		err := d.provision(ctx, tx)
		if err != nil {
			log.WithError(err).WithField("transaction_id", tx.ID).
				Error("Membership provisioning failed")
		}
		outcomes = append(outcomes, Outcome{Effect: "provisioning", Err: err})
	}

	if tx.ContactEmail.Valid {
		err := d.sendConfirmation(ctx, tx)
		outcomes = append(outcomes, Outcome{Effect: "confirmation_email", Err: err})
	}

	if err := d.publisher.PublishPaid(ctx, tx); err != nil {
		log.WithError(err).WithField("transaction_id", tx.ID).
			Error("Failed to publish payment event")
		outcomes = append(outcomes, Outcome{Effect: "event_publish", Err: err})
	} else {
		outcomes = append(outcomes, Outcome{Effect: "event_publish"})
	}

	return outcomes
}

// provision extends an existing member or creates a brand-new account for a
// guest payer. For guests the order matters: account creation, then resync,
// then backfilling the ledger's user id.
func (d *Dispatcher) provision(ctx context.Context, tx domain.Transaction) error {
	if tx.UserID.Valid {
		if err := d.identity.ExtendMembership(ctx, tx.UserID.String); err != nil {
			return err
		}
		return d.identity.Resync(ctx, tx.UserID.String)
	}

	if !tx.ContactEmail.Valid {
		return fmt.Errorf("guest transaction %s has no contact email", tx.ID)
	}
	contact := domain.Contact{
		Email:     tx.ContactEmail.String,
		FirstName: tx.ContactFirstName.String,
		LastName:  tx.ContactLastName.String,
	}
	userID, err := d.identity.CreateAccount(ctx, contact)
	if err != nil {
		return err
	}
	if err := d.identity.Resync(ctx, userID); err != nil {
		return err
	}
	return d.transactions.SetUser(ctx, tx.ID, userID)
}

func (d *Dispatcher) sendConfirmation(ctx context.Context, tx domain.Transaction) error {
	to := tx.ContactEmail.String
	subject := sender.ConfirmationSubject
	body := sender.ConfirmationBody(tx)

	// Retry sending email up to 3 times with exponential backoff
	maxAttempts := 3
	delay := d.emailRetryDelay
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = d.emailSender.SendEmail(ctx, to, subject, body)
		if err == nil {
			if attempt > 1 {
				log.WithFields(log.Fields{
					"attempt": attempt,
					"email":   to,
				}).Info("Email sent successfully after retry")
			}
			break
		}
		if attempt < maxAttempts {
			log.WithFields(log.Fields{
				"attempt": attempt,
				"error":   err,
				"email":   to,
			}).Warn("Failed to send email, retrying...")
			time.Sleep(delay)
			delay *= 2
		}
	}

	logEntry := domain.EmailLog{
		TransactionID:  tx.ID,
		RecipientEmail: to,
		Subject:        subject,
	}
	if err != nil {
		log.WithError(err).Error("Failed to send confirmation email via SMTP")
		logEntry.Status = domain.EmailFailed
		logEntry.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	} else {
		log.WithField("email", to).Info("Confirmation email sent successfully via SMTP")
		logEntry.Status = domain.EmailSent
	}

	if logErr := d.emailLogs.SaveLog(ctx, logEntry); logErr != nil {
		log.WithError(logErr).Error("Failed to save email log to database")
	}
	return err
}
