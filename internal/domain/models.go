package domain

import "time"

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentCheque = "cheque"
	PaymentCredit = "credit"
)

// PaymentMethods lists every accepted payment method in report order.
var PaymentMethods = []string{PaymentCash, PaymentCard, PaymentCheque, PaymentCredit}

const (
	SaleStatusCompleted = "completed"
	SaleStatusRefunded  = "refunded"
	SaleStatusCancelled = "cancelled"
)

const (
	ContractorStatusActive   = "active"
	ContractorStatusInactive = "inactive"
)

const (
	CreditTxSale       = "credit_sale"
	CreditTxPayment    = "payment"
	CreditTxAdjustment = "adjustment"
)

// DefaultCreditLimitCents applies when a contractor is created without an
// explicit limit (10,000.00 in cents).
const DefaultCreditLimitCents int64 = 1_000_000

type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	NameAlt    string    `json:"name_alt,omitempty"`
	PriceCents int64     `json:"price_cents"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type ItemCreateRequest struct {
	Name       string `json:"name"`
	NameAlt    string `json:"name_alt"`
	PriceCents int64  `json:"price_cents"`
}

type ItemUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	NameAlt    *string `json:"name_alt,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type Contractor struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone,omitempty"`
	Email             string    `json:"email,omitempty"`
	Address           string    `json:"address,omitempty"`
	Company           string    `json:"company,omitempty"`
	CreditLimitCents  int64     `json:"credit_limit_cents"`
	TotalCreditsCents int64     `json:"total_credits_cents"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

type ContractorCreateRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	Address          string `json:"address"`
	Company          string `json:"company"`
	CreditLimitCents *int64 `json:"credit_limit_cents,omitempty"`
}

type ContractorUpdateRequest struct {
	Name             *string `json:"name,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	Email            *string `json:"email,omitempty"`
	Address          *string `json:"address,omitempty"`
	Company          *string `json:"company,omitempty"`
	CreditLimitCents *int64  `json:"credit_limit_cents,omitempty"`
	Status           *string `json:"status,omitempty"`
}

// ContractorDetail pairs a contractor with its most recent ledger entries,
// newest first.
type ContractorDetail struct {
	Contractor Contractor          `json:"contractor"`
	History    []CreditTransaction `json:"history"`
}

// CreditTransaction is one row of the append-only contractor ledger. Rows are
// never updated or deleted; BalanceAfterCents snapshots the contractor balance
// at the moment the row was written.
type CreditTransaction struct {
	ID                string    `json:"id"`
	ContractorID      string    `json:"contractor_id"`
	SaleID            string    `json:"sale_id,omitempty"`
	Type              string    `json:"type"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	Description       string    `json:"description,omitempty"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

type SaleLine struct {
	ItemID         string `json:"item_id,omitempty"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Sale struct {
	ID              string     `json:"id"`
	SaleNumber      string     `json:"sale_number"`
	SubtotalCents   int64      `json:"subtotal_cents"`
	DiscountCents   int64      `json:"discount_cents"`
	DiscountPercent float64    `json:"discount_percentage"`
	TotalCents      int64      `json:"total_cents"`
	PaymentMethod   string     `json:"payment_method"`
	CardReference   string     `json:"card_reference,omitempty"`
	ChequeNumber    string     `json:"cheque_number,omitempty"`
	ContractorID    string     `json:"contractor_id,omitempty"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	Items           []SaleLine `json:"items"`
}

type SaleLineInput struct {
	ItemID         string `json:"item_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type SaleCreateRequest struct {
	Items           []SaleLineInput `json:"items"`
	DiscountCents   int64           `json:"discount_cents"`
	DiscountPercent float64         `json:"discount_percentage"`
	PaymentMethod   string          `json:"payment_method"`
	CardReference   string          `json:"card_reference"`
	ChequeNumber    string          `json:"cheque_number"`
	Notes           string          `json:"notes"`
}

type CreditSaleRequest struct {
	ContractorID    string          `json:"contractor_id"`
	Items           []SaleLineInput `json:"items"`
	DiscountCents   int64           `json:"discount_cents"`
	DiscountPercent float64         `json:"discount_percentage"`
	Notes           string          `json:"notes"`
}

type CreditSaleResponse struct {
	Sale                   Sale              `json:"sale"`
	Transaction            CreditTransaction `json:"transaction"`
	ContractorBalanceCents int64             `json:"contractor_balance_cents"`
}

type CreditPaymentRequest struct {
	ContractorID  string `json:"contractor_id"`
	AmountCents   int64  `json:"amount_cents"`
	PaymentMethod string `json:"payment_method"`
	Description   string `json:"description"`
}

type CreditPaymentResponse struct {
	Transaction            CreditTransaction `json:"transaction"`
	ContractorBalanceCents int64             `json:"contractor_balance_cents"`
}

// CreditReport is derived entirely from the ledger; the totals are sums over
// the contractor's credit_sale and payment rows.
type CreditReport struct {
	Contractor            Contractor `json:"contractor"`
	TransactionCount      int64      `json:"transaction_count"`
	TotalCreditSalesCents int64      `json:"total_credit_sales_cents"`
	TotalPaymentsCents    int64      `json:"total_payments_cents"`
}

type Refund struct {
	ID           string    `json:"id"`
	RefundNumber string    `json:"refund_number"`
	SaleID       string    `json:"sale_id"`
	SaleNumber   string    `json:"sale_number"`
	AmountCents  int64     `json:"amount_cents"`
	Reason       string    `json:"reason"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type RefundCreateRequest struct {
	SaleNumber  string `json:"sale_number"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

type PaymentBreakdown struct {
	PaymentMethod string `json:"payment_method"`
	SaleCount     int64  `json:"sale_count"`
	TotalCents    int64  `json:"total_cents"`
}

type TopItem struct {
	Name       string `json:"name"`
	Qty        int64  `json:"qty"`
	TotalCents int64  `json:"total_cents"`
}

type DailyReport struct {
	Date              string             `json:"date"`
	TotalRevenueCents int64              `json:"total_revenue_cents"`
	SaleCount         int64              `json:"sale_count"`
	ByPayment         []PaymentBreakdown `json:"sales_by_payment"`
	TopItems          []TopItem          `json:"top_items"`
}

type AuditLog struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Action       string    `json:"action"`
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	ContractorID string    `json:"contractor_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// PublicUser is the API view of an account, without the password hash.
type PublicUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}
