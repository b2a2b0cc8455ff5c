package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"apexpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// CreditLimitError reports a rejected credit sale. AttemptedCents is the
// balance the sale would have produced, not the sale amount.
type CreditLimitError struct {
	CurrentCents   int64
	LimitCents     int64
	AttemptedCents int64
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("credit limit exceeded: current=%d limit=%d would_be=%d", e.CurrentCents, e.LimitCents, e.AttemptedCents)
}

type Repository interface {
	ListItems(ctx context.Context, includeInactive bool) ([]domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItemByID(ctx context.Context, id string) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	DeleteItem(ctx context.Context, id string) error
	CreateContractor(ctx context.Context, contractor domain.Contractor) (*domain.Contractor, error)
	ListContractors(ctx context.Context) ([]domain.Contractor, error)
	GetContractorByID(ctx context.Context, id string) (*domain.Contractor, error)
	UpdateContractor(ctx context.Context, contractor domain.Contractor) (*domain.Contractor, error)
	ListCreditTransactions(ctx context.Context, contractorID string, limit int) ([]domain.CreditTransaction, error)
	CreateCreditSale(ctx context.Context, sale domain.Sale, description string) (*domain.CreditSaleResponse, error)
	CreateCreditPayment(ctx context.Context, entry domain.CreditTransaction) (*domain.CreditPaymentResponse, error)
	GetCreditReport(ctx context.Context, contractorID string) (domain.CreditReport, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByNumber(ctx context.Context, saleNumber string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error)
	GetRefundByNumber(ctx context.Context, refundNumber string) (*domain.Refund, error)
	ListRefunds(ctx context.Context, limit int) ([]domain.Refund, error)
	GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, action string, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
