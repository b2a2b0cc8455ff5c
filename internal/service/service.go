package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"apexpos/backend/internal/cache"
	"apexpos/backend/internal/domain"
	"apexpos/backend/internal/store"
)

type actorContextKey struct{}

// WithActor stashes the authenticated actor on the request context. Handlers
// pull it back out and pass it to service operations explicitly; the context
// value exists only to carry it across the middleware boundary.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
	}
}

func (s *Service) ListItems(ctx context.Context, includeInactive bool) ([]domain.Item, error) {
	return s.repo.ListItems(ctx, includeInactive)
}

func (s *Service) CreateItem(ctx context.Context, actor domain.Actor, req domain.ItemCreateRequest) (domain.Item, error) {
	if actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.NameAlt = strings.TrimSpace(req.NameAlt)
	if req.Name == "" || req.PriceCents < 0 {
		return domain.Item{}, store.ErrInvalidTransaction
	}

	created, err := s.repo.CreateItem(ctx, domain.Item{
		Name:       req.Name,
		NameAlt:    req.NameAlt,
		PriceCents: req.PriceCents,
	})
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, actor, "item_create", "item", created.ID, "", fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, actor domain.Actor, id string, req domain.ItemUpdateRequest) (domain.Item, error) {
	if actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Item{}, store.ErrInvalidTransaction
	}

	existing, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Item{}, store.ErrInvalidTransaction
		}
		updated.Name = name
	}
	if req.NameAlt != nil {
		updated.NameAlt = strings.TrimSpace(*req.NameAlt)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Item{}, store.ErrInvalidTransaction
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, actor, "item_update", "item", saved.ID, "", fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) DeleteItem(ctx context.Context, actor domain.Actor, id string) error {
	if actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidTransaction
	}

	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, actor, "item_delete", "item", id, "", "")
	return nil
}

func (s *Service) CreateContractor(ctx context.Context, actor domain.Actor, req domain.ContractorCreateRequest) (domain.Contractor, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Contractor{}, store.ErrInvalidTransaction
	}

	limit := domain.DefaultCreditLimitCents
	if req.CreditLimitCents != nil {
		if *req.CreditLimitCents < 0 {
			return domain.Contractor{}, store.ErrInvalidTransaction
		}
		limit = *req.CreditLimitCents
	}

	created, err := s.repo.CreateContractor(ctx, domain.Contractor{
		Name:             req.Name,
		Phone:            strings.TrimSpace(req.Phone),
		Email:            strings.TrimSpace(req.Email),
		Address:          strings.TrimSpace(req.Address),
		Company:          strings.TrimSpace(req.Company),
		CreditLimitCents: limit,
		Status:           domain.ContractorStatusActive,
	})
	if err != nil {
		return domain.Contractor{}, err
	}

	s.logAudit(ctx, actor, "contractor_create", "contractor", created.ID, created.ID, fmt.Sprintf("name=%s,limit=%d", created.Name, created.CreditLimitCents))
	return *created, nil
}

func (s *Service) ListContractors(ctx context.Context) ([]domain.Contractor, error) {
	return s.repo.ListContractors(ctx)
}

// GetContractor returns the contractor together with its 50 most recent
// ledger entries, newest first.
func (s *Service) GetContractor(ctx context.Context, id string) (domain.ContractorDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ContractorDetail{}, store.ErrInvalidTransaction
	}

	contractor, err := s.repo.GetContractorByID(ctx, id)
	if err != nil {
		return domain.ContractorDetail{}, err
	}

	history, err := s.repo.ListCreditTransactions(ctx, id, 50)
	if err != nil {
		return domain.ContractorDetail{}, err
	}

	return domain.ContractorDetail{
		Contractor: *contractor,
		History:    history,
	}, nil
}

func (s *Service) UpdateContractor(ctx context.Context, actor domain.Actor, id string, req domain.ContractorUpdateRequest) (domain.Contractor, error) {
	if actor.Role != "admin" {
		return domain.Contractor{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Contractor{}, store.ErrInvalidTransaction
	}

	existing, err := s.repo.GetContractorByID(ctx, id)
	if err != nil {
		return domain.Contractor{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Contractor{}, store.ErrInvalidTransaction
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Company != nil {
		updated.Company = strings.TrimSpace(*req.Company)
	}
	if req.CreditLimitCents != nil {
		if *req.CreditLimitCents < 0 {
			return domain.Contractor{}, store.ErrInvalidTransaction
		}
		updated.CreditLimitCents = *req.CreditLimitCents
	}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		if status != domain.ContractorStatusActive && status != domain.ContractorStatusInactive {
			return domain.Contractor{}, store.ErrInvalidTransaction
		}
		updated.Status = status
	}

	saved, err := s.repo.UpdateContractor(ctx, updated)
	if err != nil {
		return domain.Contractor{}, err
	}

	s.logAudit(ctx, actor, "contractor_update", "contractor", saved.ID, saved.ID, fmt.Sprintf("status=%s,limit=%d", saved.Status, saved.CreditLimitCents))
	return *saved, nil
}

// RecordSale records a completed sale paid by cash, card, or cheque. Credit
// sales go through RecordCreditSale so the balance and ledger move with the
// sale.
func (s *Service) RecordSale(ctx context.Context, actor domain.Actor, req domain.SaleCreateRequest) (domain.Sale, error) {
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	switch method {
	case domain.PaymentCash:
	case domain.PaymentCard:
		if strings.TrimSpace(req.CardReference) == "" {
			return domain.Sale{}, fmt.Errorf("card reference required for card payment: %w", store.ErrInvalidTransaction)
		}
	case domain.PaymentCheque:
		if strings.TrimSpace(req.ChequeNumber) == "" {
			return domain.Sale{}, fmt.Errorf("cheque number required for cheque payment: %w", store.ErrInvalidTransaction)
		}
	case domain.PaymentCredit:
		return domain.Sale{}, fmt.Errorf("credit sales must include a contractor: %w", store.ErrInvalidTransaction)
	default:
		return domain.Sale{}, fmt.Errorf("unknown payment method %q: %w", method, store.ErrInvalidTransaction)
	}

	subtotal, total, lines, err := buildSaleLines(req.Items, req.DiscountCents, req.DiscountPercent)
	if err != nil {
		return domain.Sale{}, err
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		SubtotalCents:   subtotal,
		DiscountCents:   req.DiscountCents,
		DiscountPercent: req.DiscountPercent,
		TotalCents:      total,
		PaymentMethod:   method,
		CardReference:   strings.TrimSpace(req.CardReference),
		ChequeNumber:    strings.TrimSpace(req.ChequeNumber),
		Notes:           strings.TrimSpace(req.Notes),
		CreatedBy:       actor.Username,
		Items:           lines,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, actor, "sale_create", "sale", created.SaleNumber, "", fmt.Sprintf("method=%s,total=%d", created.PaymentMethod, created.TotalCents))
	return *created, nil
}

func (s *Service) GetSaleByNumber(ctx context.Context, saleNumber string) (domain.Sale, error) {
	saleNumber = strings.TrimSpace(saleNumber)
	if saleNumber == "" {
		return domain.Sale{}, store.ErrInvalidTransaction
	}

	sale, err := s.repo.GetSaleByNumber(ctx, saleNumber)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, date string, limit int) ([]domain.Sale, error) {
	from, to, err := dayRangeUTC(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

// RecordRefund refunds a completed sale in full or in part and flips it to
// refunded. A sale can be refunded once; further attempts are rejected.
func (s *Service) RecordRefund(ctx context.Context, actor domain.Actor, req domain.RefundCreateRequest) (domain.Refund, error) {
	req.SaleNumber = strings.TrimSpace(req.SaleNumber)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.SaleNumber == "" {
		return domain.Refund{}, fmt.Errorf("sale number required: %w", store.ErrInvalidTransaction)
	}
	if req.Reason == "" {
		return domain.Refund{}, fmt.Errorf("refund reason required: %w", store.ErrInvalidTransaction)
	}
	if req.AmountCents < 0 {
		return domain.Refund{}, store.ErrInvalidTransaction
	}

	created, err := s.repo.CreateRefund(ctx, domain.Refund{
		SaleNumber:  req.SaleNumber,
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
		CreatedBy:   actor.Username,
	})
	if err != nil {
		return domain.Refund{}, err
	}

	s.logAudit(ctx, actor, "refund_create", "refund", created.RefundNumber, "", fmt.Sprintf("sale=%s,amount=%d", created.SaleNumber, created.AmountCents))
	return *created, nil
}

func (s *Service) ListRefunds(ctx context.Context, limit int) ([]domain.Refund, error) {
	return s.repo.ListRefunds(ctx, limit)
}

func (s *Service) GetRefundByNumber(ctx context.Context, refundNumber string) (domain.Refund, error) {
	refundNumber = strings.TrimSpace(refundNumber)
	if refundNumber == "" {
		return domain.Refund{}, store.ErrInvalidTransaction
	}

	refund, err := s.repo.GetRefundByNumber(ctx, refundNumber)
	if err != nil {
		return domain.Refund{}, err
	}
	return *refund, nil
}

// RecordCreditSale writes the sale, the contractor balance update, and the
// ledger row as one atomic unit in the repository. The repository rejects the
// sale with a CreditLimitError when the new balance would exceed the limit,
// leaving every record untouched.
func (s *Service) RecordCreditSale(ctx context.Context, actor domain.Actor, req domain.CreditSaleRequest) (domain.CreditSaleResponse, error) {
	req.ContractorID = strings.TrimSpace(req.ContractorID)
	if req.ContractorID == "" {
		return domain.CreditSaleResponse{}, fmt.Errorf("contractor id required: %w", store.ErrInvalidTransaction)
	}

	subtotal, total, lines, err := buildSaleLines(req.Items, req.DiscountCents, req.DiscountPercent)
	if err != nil {
		return domain.CreditSaleResponse{}, err
	}

	resp, err := s.repo.CreateCreditSale(ctx, domain.Sale{
		ContractorID:    req.ContractorID,
		SubtotalCents:   subtotal,
		DiscountCents:   req.DiscountCents,
		DiscountPercent: req.DiscountPercent,
		TotalCents:      total,
		Notes:           strings.TrimSpace(req.Notes),
		CreatedBy:       actor.Username,
		Items:           lines,
	}, strings.TrimSpace(req.Notes))
	if err != nil {
		return domain.CreditSaleResponse{}, err
	}

	s.logAudit(ctx, actor, "credit_sale", "sale", resp.Sale.SaleNumber, req.ContractorID, fmt.Sprintf("total=%d,balance=%d", resp.Sale.TotalCents, resp.ContractorBalanceCents))
	return *resp, nil
}

// RecordCreditPayment reduces the contractor balance by the paid amount,
// flooring at zero, and appends the payment to the ledger.
func (s *Service) RecordCreditPayment(ctx context.Context, actor domain.Actor, req domain.CreditPaymentRequest) (domain.CreditPaymentResponse, error) {
	req.ContractorID = strings.TrimSpace(req.ContractorID)
	if req.ContractorID == "" {
		return domain.CreditPaymentResponse{}, fmt.Errorf("contractor id required: %w", store.ErrInvalidTransaction)
	}
	if req.AmountCents < 1 {
		return domain.CreditPaymentResponse{}, fmt.Errorf("payment amount must be positive: %w", store.ErrInvalidTransaction)
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.PaymentCash
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = method + " payment"
	}

	resp, err := s.repo.CreateCreditPayment(ctx, domain.CreditTransaction{
		ContractorID: req.ContractorID,
		AmountCents:  req.AmountCents,
		Description:  description,
		CreatedBy:    actor.Username,
	})
	if err != nil {
		return domain.CreditPaymentResponse{}, err
	}

	s.logAudit(ctx, actor, "credit_payment", "credit_transaction", resp.Transaction.ID, req.ContractorID, fmt.Sprintf("amount=%d,balance=%d", req.AmountCents, resp.ContractorBalanceCents))
	return *resp, nil
}

func (s *Service) GetCreditReport(ctx context.Context, contractorID string) (domain.CreditReport, error) {
	contractorID = strings.TrimSpace(contractorID)
	if contractorID == "" {
		return domain.CreditReport{}, store.ErrInvalidTransaction
	}
	return s.repo.GetCreditReport(ctx, contractorID)
}

// DailyReport aggregates the day's completed sales. Results are cached for a
// short TTL since the report is read far more often than it changes.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	from, to, err := dayRangeUTC(date)
	if err != nil {
		return domain.DailyReport{}, err
	}

	key := "report:daily:" + from.Format("2006-01-02")
	if cached, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: report cache get failed key=%s: %v", key, err)
	}

	report, err := s.repo.GetDailyReport(ctx, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}

	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache set failed key=%s: %v", key, err)
	}
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, actor domain.Actor, action string, limit int) ([]domain.AuditLog, error) {
	if actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListAuditLogs(ctx, strings.TrimSpace(action), limit)
}

func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, contractorID string, detail string) {
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		Username:     actor.Username,
		Action:       action,
		EntityType:   entityType,
		EntityID:     entityID,
		ContractorID: contractorID,
		Detail:       detail,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s entity=%s: %v", action, entityID, err)
	}
}

// Upper bounds on a single line; anything past these is treated as a bad
// request rather than risking int64 wraparound in the totals.
const (
	maxLineQty        = 1_000_000
	maxUnitPriceCents = int64(1_000_000_00)
	maxSubtotalCents  = int64(1_000_000_000_00)
)

// buildSaleLines validates line inputs and computes the clamped totals: the
// total never drops below zero no matter the discount. The percentage discount
// is applied to the subtotal and added to the flat amount.
func buildSaleLines(items []domain.SaleLineInput, discountCents int64, discountPercent float64) (int64, int64, []domain.SaleLine, error) {
	if len(items) == 0 {
		return 0, 0, nil, fmt.Errorf("at least one item required: %w", store.ErrInvalidTransaction)
	}
	if discountCents < 0 {
		return 0, 0, nil, fmt.Errorf("discount must not be negative: %w", store.ErrInvalidTransaction)
	}
	if discountPercent < 0 || discountPercent > 100 {
		return 0, 0, nil, fmt.Errorf("discount percentage must be between 0 and 100: %w", store.ErrInvalidTransaction)
	}

	subtotal := int64(0)
	lines := make([]domain.SaleLine, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return 0, 0, nil, fmt.Errorf("item name required: %w", store.ErrInvalidTransaction)
		}
		if item.Qty < 1 || item.Qty > maxLineQty {
			return 0, 0, nil, fmt.Errorf("item qty out of range: %w", store.ErrInvalidTransaction)
		}
		if item.UnitPriceCents < 0 || item.UnitPriceCents > maxUnitPriceCents {
			return 0, 0, nil, fmt.Errorf("item price out of range: %w", store.ErrInvalidTransaction)
		}

		lineTotal := item.UnitPriceCents * int64(item.Qty)
		lines = append(lines, domain.SaleLine{
			ItemID:         strings.TrimSpace(item.ItemID),
			Name:           name,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: lineTotal,
		})
		subtotal += lineTotal
		if subtotal > maxSubtotalCents {
			return 0, 0, nil, fmt.Errorf("sale subtotal out of range: %w", store.ErrInvalidTransaction)
		}
	}

	percentCents := int64(float64(subtotal) * discountPercent / 100)
	total := subtotal - discountCents - percentCents
	if total < 0 {
		total = 0
	}
	return subtotal, total, lines, nil
}

// dayRangeUTC returns the UTC half-open interval [from, to) for the given
// YYYY-MM-DD date; an empty date means today.
func dayRangeUTC(date string) (time.Time, time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		now := time.Now().UTC()
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return from, from.Add(24 * time.Hour), nil
	}

	from, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, store.ErrInvalidTransaction)
	}
	return from, from.Add(24 * time.Hour), nil
}
