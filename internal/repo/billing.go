package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// BillingFilter narrows invoice and payment listings. TutorID is mandatory.
type BillingFilter struct {
	TutorID   string
	StudentID string
	Status    string // invoices only
}

func (f BillingFilter) apply(db *gorm.DB) *gorm.DB {
	q := db.Where("student_id IN (?)", ownedStudentIDs(db, f.TutorID))
	if f.StudentID != "" {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// CreateInvoice inserts an issued invoice.
func CreateInvoice(ctx context.Context, db *gorm.DB, in *domain.Invoice) error {
	now := time.Now().UTC()
	in.ID = uuid.NewString()
	if in.Status == "" {
		in.Status = domain.InvoiceIssued
	}
	in.CreatedAt, in.UpdatedAt = now, now
	return db.WithContext(ctx).Create(in).Error
}

// GetInvoice fetches an invoice visible to tutorID.
func GetInvoice(ctx context.Context, db *gorm.DB, id, tutorID string) (*domain.Invoice, error) {
	var in domain.Invoice
	q := db.WithContext(ctx)
	err := q.Where("id = ?", id).
		Where("student_id IN (?)", ownedStudentIDs(q, tutorID)).
		First(&in).Error
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// CountInvoices counts invoices matching f.
func CountInvoices(ctx context.Context, db *gorm.DB, f BillingFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Invoice{})).Count(&n).Error
	return n, err
}

// ListInvoicesPage returns invoices matching f, newest first. A limit <= 0
// returns every match (used by exports).
func ListInvoicesPage(ctx context.Context, db *gorm.DB, f BillingFilter, offset, limit int) ([]domain.Invoice, error) {
	var out []domain.Invoice
	q := f.apply(db.WithContext(ctx).Model(&domain.Invoice{})).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// TransitionInvoice moves an invoice to status `to` only when it currently
// sits in one of `from`. ErrNotFound means the guard did not match.
func TransitionInvoice(ctx context.Context, db *gorm.DB, id string, from []string, to string) error {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOverdueInvoices flips issued invoices past their due date to overdue.
func MarkOverdueInvoices(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", domain.InvoiceIssued, now).
		Updates(map[string]any{"status": domain.InvoiceOverdue, "updated_at": now})
	return res.RowsAffected, res.Error
}

// CreatePayment inserts a payment.
func CreatePayment(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	p.CreatedAt = now
	return db.WithContext(ctx).Create(p).Error
}

// CountPayments counts payments matching f.
func CountPayments(ctx context.Context, db *gorm.DB, f BillingFilter) (int64, error) {
	var n int64
	f.Status = ""
	err := f.apply(db.WithContext(ctx).Model(&domain.Payment{})).Count(&n).Error
	return n, err
}

// ListPaymentsPage returns payments matching f, most recent first.
func ListPaymentsPage(ctx context.Context, db *gorm.DB, f BillingFilter, offset, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	f.Status = ""
	err := f.apply(db.WithContext(ctx).Model(&domain.Payment{})).
		Order("paid_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
