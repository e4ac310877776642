// Package services – BillingService
//
// BillingService issues invoices, records payments and keeps invoice status
// in step with them. Issuing an invoice with a due date schedules a
// reminder to the tutor a few days ahead.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/export"
	"github.com/tbourn/go-tutor-backend/internal/notify"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// ReminderLead is how long before the due date an invoice reminder fires.
const ReminderLead = 3 * 24 * time.Hour

// Scheduler runs a callback at a given time. jobs.Scheduler satisfies it.
type Scheduler interface {
	At(when time.Time, name string, fn func(ctx context.Context) error)
}

// InvoiceInput is the payload of CreateInvoice.
type InvoiceInput struct {
	StudentID string
	Amount    decimal.Decimal
	DueDate   *time.Time
	Notes     string
}

// PaymentInput is the payload of CreatePayment.
type PaymentInput struct {
	StudentID string
	Amount    decimal.Decimal
	Method    string
	InvoiceID *string
}

// BillingFilter narrows invoice and payment listings.
type BillingFilter struct {
	StudentID string
	Status    string
}

// BillingService implements invoices and payments.
type BillingService struct {
	DB        *gorm.DB
	Scheduler Scheduler
	Notifier  notify.Notifier

	now func() time.Time
}

func (s *BillingService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func validAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return invalid("amount must be > 0")
	}
	if !a.Equal(a.Round(2)) {
		return invalid("amount must have at most 2 decimal places")
	}
	return nil
}

// CreateInvoice issues an invoice for one of the tutor's students.
func (s *BillingService) CreateInvoice(ctx context.Context, tutorID string, in InvoiceInput) (*domain.Invoice, error) {
	if err := validAmount(in.Amount); err != nil {
		return nil, err
	}
	if _, err := ownedStudent(ctx, s.DB, tutorID, in.StudentID); err != nil {
		return nil, err
	}
	inv := &domain.Invoice{
		StudentID: in.StudentID,
		Amount:    in.Amount.Round(2),
		Status:    domain.InvoiceIssued,
		DueDate:   utcPtr(in.DueDate),
		Notes:     strings.TrimSpace(in.Notes),
	}
	if err := repo.CreateInvoice(ctx, s.DB, inv); err != nil {
		return nil, err
	}
	audit(ctx, "invoice.create", tutorID, inv.ID)
	s.scheduleReminder(tutorID, inv)
	return inv, nil
}

// scheduleReminder arranges an invoice-due notification ReminderLead before
// the due date, or right away when that moment already passed.
func (s *BillingService) scheduleReminder(tutorID string, inv *domain.Invoice) {
	if s.Scheduler == nil || inv.DueDate == nil {
		return
	}
	when := inv.DueDate.Add(-ReminderLead)
	if now := s.clock(); when.Before(now) {
		when = now
	}
	id := inv.ID
	s.Scheduler.At(when, "invoice_due_reminder", func(ctx context.Context) error {
		return s.remind(ctx, tutorID, id)
	})
}

// remind notifies the tutor about an invoice that is still unpaid.
func (s *BillingService) remind(ctx context.Context, tutorID, invoiceID string) error {
	inv, err := repo.GetInvoice(ctx, s.DB, invoiceID, tutorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !domain.InvoicePayable(inv.Status) {
		return nil
	}
	tutor, err := repo.GetUser(ctx, s.DB, tutorID)
	if err != nil {
		return err
	}
	st, err := repo.GetStudent(ctx, s.DB, inv.StudentID, tutorID)
	if err != nil {
		return err
	}
	if s.Notifier == nil {
		return nil
	}
	return s.Notifier.Send(ctx, notify.Message{
		To:      tutor.Email,
		Subject: fmt.Sprintf("Invoice for %s is due %s", st.Name, inv.DueDate.Format("2006-01-02")),
		Body: fmt.Sprintf("Invoice %s for %s (%s) is due on %s and is still %s.",
			inv.ID, st.Name, inv.Amount.StringFixed(2), inv.DueDate.Format("2006-01-02"), inv.Status),
	})
}

// GetInvoice returns an invoice visible to the tutor.
func (s *BillingService) GetInvoice(ctx context.Context, tutorID, id string) (*domain.Invoice, error) {
	inv, err := repo.GetInvoice(ctx, s.DB, id, tutorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	return inv, err
}

func (s *BillingService) repoFilter(ctx context.Context, tutorID string, f BillingFilter) (repo.BillingFilter, error) {
	if f.Status != "" {
		switch f.Status {
		case domain.InvoiceIssued, domain.InvoicePaid, domain.InvoiceOverdue, domain.InvoiceCancelled:
		default:
			return repo.BillingFilter{}, invalid("unknown status %q", f.Status)
		}
	}
	if f.StudentID != "" {
		if _, err := ownedStudent(ctx, s.DB, tutorID, f.StudentID); err != nil {
			return repo.BillingFilter{}, err
		}
	}
	return repo.BillingFilter{TutorID: tutorID, StudentID: f.StudentID, Status: f.Status}, nil
}

// ListInvoices returns a page of the tutor's invoices.
func (s *BillingService) ListInvoices(ctx context.Context, tutorID string, f BillingFilter, page, pageSize int) ([]domain.Invoice, int64, error) {
	rf, err := s.repoFilter(ctx, tutorID, f)
	if err != nil {
		return nil, 0, err
	}
	_, pageSize, offset := pageWindow(page, pageSize)
	total, err := repo.CountInvoices(ctx, s.DB, rf)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Invoice{}, 0, nil
	}
	items, err := repo.ListInvoicesPage(ctx, s.DB, rf, offset, pageSize)
	return items, total, err
}

// CancelInvoice cancels an issued or overdue invoice.
func (s *BillingService) CancelInvoice(ctx context.Context, tutorID, id string) (*domain.Invoice, error) {
	if _, err := s.GetInvoice(ctx, tutorID, id); err != nil {
		return nil, err
	}
	err := repo.TransitionInvoice(ctx, s.DB, id,
		[]string{domain.InvoiceIssued, domain.InvoiceOverdue}, domain.InvoiceCancelled)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	audit(ctx, "invoice.cancel", tutorID, id)
	return s.GetInvoice(ctx, tutorID, id)
}

// ExportInvoices renders every invoice matching f as an xlsx workbook.
func (s *BillingService) ExportInvoices(ctx context.Context, tutorID string, f BillingFilter) ([]byte, error) {
	ctx, span := otel.Tracer("services/BillingService").Start(ctx, "ExportInvoices",
		trace.WithAttributes(attribute.String("user.id", tutorID)),
	)
	defer span.End()

	rf, err := s.repoFilter(ctx, tutorID, f)
	if err != nil {
		return nil, err
	}
	items, err := repo.ListInvoicesPage(ctx, s.DB, rf, 0, 0)
	if err != nil {
		return nil, err
	}
	students, err := repo.ListStudentsPage(ctx, s.DB, tutorID, 0, -1)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(students))
	for _, st := range students {
		names[st.ID] = st.Name
	}
	span.SetAttributes(attribute.Int("rows", len(items)))
	return export.InvoicesXLSX(items, names)
}

// ListPayments returns a page of the tutor's payments.
func (s *BillingService) ListPayments(ctx context.Context, tutorID, studentID string, page, pageSize int) ([]domain.Payment, int64, error) {
	rf, err := s.repoFilter(ctx, tutorID, BillingFilter{StudentID: studentID})
	if err != nil {
		return nil, 0, err
	}
	_, pageSize, offset := pageWindow(page, pageSize)
	total, err := repo.CountPayments(ctx, s.DB, rf)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Payment{}, 0, nil
	}
	items, err := repo.ListPaymentsPage(ctx, s.DB, rf, offset, pageSize)
	return items, total, err
}

// CreatePayment records a payment. When it references an invoice, that
// invoice must belong to the same student and still be payable; it is
// marked paid in the same transaction.
func (s *BillingService) CreatePayment(ctx context.Context, tutorID string, in PaymentInput) (*domain.Payment, error) {
	ctx, span := otel.Tracer("services/BillingService").Start(ctx, "CreatePayment",
		trace.WithAttributes(attribute.String("student.id", in.StudentID)),
	)
	defer span.End()

	if err := validAmount(in.Amount); err != nil {
		return nil, err
	}
	if !domain.ValidPaymentMethod(in.Method) {
		return nil, invalid("method must be one of cash, card, transfer, online")
	}
	if in.InvoiceID != nil && *in.InvoiceID == "" {
		in.InvoiceID = nil
	}
	if _, err := ownedStudent(ctx, s.DB, tutorID, in.StudentID); err != nil {
		return nil, err
	}

	p := &domain.Payment{
		StudentID: in.StudentID,
		InvoiceID: in.InvoiceID,
		Amount:    in.Amount.Round(2),
		Method:    in.Method,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.InvoiceID != nil {
			inv, err := repo.GetInvoice(ctx, tx, *in.InvoiceID, tutorID)
			if errors.Is(err, repo.ErrNotFound) {
				return ErrInvoiceNotFound
			}
			if err != nil {
				return err
			}
			if inv.StudentID != in.StudentID {
				return invalid("invoice belongs to another student")
			}
			if !domain.InvoicePayable(inv.Status) {
				return ErrInvoiceSettled
			}
			err = repo.TransitionInvoice(ctx, tx, inv.ID,
				[]string{domain.InvoiceIssued, domain.InvoiceOverdue}, domain.InvoicePaid)
			if errors.Is(err, repo.ErrNotFound) {
				return ErrInvoiceSettled
			}
			if err != nil {
				return err
			}
		}
		return repo.CreatePayment(ctx, tx, p)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	audit(ctx, "payment.create", tutorID, p.ID)
	return p, nil
}

// MarkOverdue flips issued invoices past their due date and returns how many changed.
func (s *BillingService) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	n, err := repo.MarkOverdueInvoices(ctx, s.DB, now.UTC())
	if n > 0 {
		log.Info().Int64("count", n).Msg("invoices marked overdue")
	}
	return n, err
}
