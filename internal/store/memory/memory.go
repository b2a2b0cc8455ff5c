package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"apexpos/backend/internal/domain"
	"apexpos/backend/internal/store"
	"apexpos/backend/internal/xid"
)

// Store is the in-memory repository used for tests and local runs. A single
// mutex guards all state, so every mutating operation is atomic and credit
// sales for the same contractor serialize the same way the postgres row lock
// serializes them.
type Store struct {
	mu              sync.RWMutex
	itemsByID       map[string]domain.Item
	contractorsByID map[string]domain.Contractor
	creditLedger    []domain.CreditTransaction
	salesByID       map[string]*domain.Sale
	salesByNumber   map[string]*domain.Sale
	refundsByID     map[string]domain.Refund
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	saleSeqByYear   map[int]int64
	refundSeqByYear map[int]int64
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; when
// unset, hardcoded dev defaults are used with a warning. These credentials are
// never used in production (the backend uses PostgreSQL when DATABASE_URL is
// set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	items := []domain.Item{
		{ID: "item-cement-50", Name: "Cement 50kg", NameAlt: "اسمنت 50 كجم", PriceCents: 275_00, Active: true, CreatedAt: now},
		{ID: "item-rebar-12", Name: "Rebar 12mm", NameAlt: "حديد تسليح 12 مم", PriceCents: 850_00, Active: true, CreatedAt: now},
		{ID: "item-sand-m3", Name: "Washed Sand m3", NameAlt: "رمل مغسول", PriceCents: 1200_00, Active: true, CreatedAt: now},
		{ID: "item-block-20", Name: "Concrete Block 20cm", NameAlt: "طابوق 20 سم", PriceCents: 45_00, Active: true, CreatedAt: now},
		{ID: "item-paint-w", Name: "Wall Paint 18L", NameAlt: "دهان جدران 18 لتر", PriceCents: 1450_00, Active: true, CreatedAt: now},
		{ID: "item-gypsum", Name: "Gypsum Board", NameAlt: "لوح جبس", PriceCents: 320_00, Active: true, CreatedAt: now},
	}

	contractors := []domain.Contractor{
		{
			ID:               "ctr-seed-1",
			Name:             "Al Manar Contracting",
			Phone:            "+965-5550-0101",
			Company:          "Al Manar Co.",
			CreditLimitCents: domain.DefaultCreditLimitCents,
			Status:           domain.ContractorStatusActive,
			CreatedAt:        now,
		},
	}

	itemMap := make(map[string]domain.Item, len(items))
	for _, item := range items {
		itemMap[item.ID] = item
	}
	contractorMap := make(map[string]domain.Contractor, len(contractors))
	for _, contractor := range contractors {
		contractorMap[contractor.ID] = contractor
	}

	return &Store{
		itemsByID:       itemMap,
		contractorsByID: contractorMap,
		creditLedger:    make([]domain.CreditTransaction, 0, 128),
		salesByID:       make(map[string]*domain.Sale),
		salesByNumber:   make(map[string]*domain.Sale),
		refundsByID:     make(map[string]domain.Refund),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
		saleSeqByYear:   make(map[int]int64),
		refundSeqByYear: make(map[int]int64),
	}
}

func (s *Store) ListItems(_ context.Context, includeInactive bool) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.itemsByID))
	for _, item := range s.itemsByID {
		if !includeInactive && !item.Active {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.Name == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.itemsByID[item.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.itemsByID[item.ID] = item

	created := item
	return &created, nil
}

func (s *Store) GetItemByID(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.itemsByID[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	s.itemsByID[item.ID] = item

	updated := item
	return &updated, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.itemsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.itemsByID, id)
	return nil
}

func (s *Store) CreateContractor(_ context.Context, contractor domain.Contractor) (*domain.Contractor, error) {
	if contractor.Name == "" || contractor.CreditLimitCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if contractor.ID == "" {
		contractor.ID = xid.New("ctr")
	}
	if contractor.Status == "" {
		contractor.Status = domain.ContractorStatusActive
	}
	if contractor.CreatedAt.IsZero() {
		contractor.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contractorsByID[contractor.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.contractorsByID[contractor.ID] = contractor

	created := contractor
	return &created, nil
}

func (s *Store) ListContractors(_ context.Context) ([]domain.Contractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contractors := make([]domain.Contractor, 0, len(s.contractorsByID))
	for _, contractor := range s.contractorsByID {
		if contractor.Status != domain.ContractorStatusActive {
			continue
		}
		contractors = append(contractors, contractor)
	}
	sort.Slice(contractors, func(i, j int) bool { return contractors[i].Name < contractors[j].Name })
	return contractors, nil
}

func (s *Store) GetContractorByID(_ context.Context, id string) (*domain.Contractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contractor, ok := s.contractorsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := contractor
	return &found, nil
}

func (s *Store) UpdateContractor(_ context.Context, contractor domain.Contractor) (*domain.Contractor, error) {
	if contractor.ID == "" || contractor.Name == "" || contractor.CreditLimitCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contractorsByID[contractor.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// The balance is only ever moved by credit sales, payments, and
	// adjustments, never by a profile update.
	contractor.TotalCreditsCents = existing.TotalCreditsCents
	contractor.CreatedAt = existing.CreatedAt
	s.contractorsByID[contractor.ID] = contractor

	updated := contractor
	return &updated, nil
}

func (s *Store) ListCreditTransactions(_ context.Context, contractorID string, limit int) ([]domain.CreditTransaction, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.CreditTransaction, 0, limit)
	for _, entry := range s.creditLedger {
		if entry.ContractorID == contractorID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) CreateCreditSale(_ context.Context, sale domain.Sale, description string) (*domain.CreditSaleResponse, error) {
	if sale.ContractorID == "" || len(sale.Items) == 0 || sale.TotalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contractor, ok := s.contractorsByID[sale.ContractorID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if contractor.Status != domain.ContractorStatusActive {
		return nil, store.ErrInvalidTransaction
	}

	newBalance := contractor.TotalCreditsCents + sale.TotalCents
	if newBalance > contractor.CreditLimitCents {
		return nil, &store.CreditLimitError{
			CurrentCents:   contractor.TotalCreditsCents,
			LimitCents:     contractor.CreditLimitCents,
			AttemptedCents: newBalance,
		}
	}

	now := time.Now().UTC()
	if sale.SaleNumber == "" {
		sale.SaleNumber = s.nextSaleNumberLocked(now.Year())
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.PaymentMethod = domain.PaymentCredit
	sale.Status = domain.SaleStatusCompleted

	contractor.TotalCreditsCents = newBalance
	s.contractorsByID[sale.ContractorID] = contractor

	stored := sale
	s.salesByID[sale.ID] = &stored
	s.salesByNumber[sale.SaleNumber] = &stored

	if description == "" {
		description = "Sale " + sale.SaleNumber
	}
	entry := domain.CreditTransaction{
		ID:                xid.New("crtx"),
		ContractorID:      sale.ContractorID,
		SaleID:            sale.ID,
		Type:              domain.CreditTxSale,
		AmountCents:       sale.TotalCents,
		BalanceAfterCents: newBalance,
		Description:       description,
		CreatedBy:         sale.CreatedBy,
		CreatedAt:         sale.CreatedAt,
	}
	s.creditLedger = append(s.creditLedger, entry)

	return &domain.CreditSaleResponse{
		Sale:                   sale,
		Transaction:            entry,
		ContractorBalanceCents: newBalance,
	}, nil
}

func (s *Store) CreateCreditPayment(_ context.Context, entry domain.CreditTransaction) (*domain.CreditPaymentResponse, error) {
	if entry.ContractorID == "" || entry.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contractor, ok := s.contractorsByID[entry.ContractorID]
	if !ok {
		return nil, store.ErrNotFound
	}

	newBalance := contractor.TotalCreditsCents - entry.AmountCents
	if newBalance < 0 {
		newBalance = 0
	}
	contractor.TotalCreditsCents = newBalance
	s.contractorsByID[entry.ContractorID] = contractor

	if entry.ID == "" {
		entry.ID = xid.New("crtx")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Type = domain.CreditTxPayment
	entry.BalanceAfterCents = newBalance
	s.creditLedger = append(s.creditLedger, entry)

	return &domain.CreditPaymentResponse{
		Transaction:            entry,
		ContractorBalanceCents: newBalance,
	}, nil
}

func (s *Store) GetCreditReport(_ context.Context, contractorID string) (domain.CreditReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contractor, ok := s.contractorsByID[contractorID]
	if !ok {
		return domain.CreditReport{}, store.ErrNotFound
	}

	report := domain.CreditReport{Contractor: contractor}
	for _, entry := range s.creditLedger {
		if entry.ContractorID != contractorID {
			continue
		}
		report.TransactionCount++
		switch entry.Type {
		case domain.CreditTxSale:
			report.TotalCreditSalesCents += entry.AmountCents
		case domain.CreditTxPayment:
			report.TotalPaymentsCents += entry.AmountCents
		}
	}
	return report, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 || sale.TotalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if sale.SaleNumber == "" {
		sale.SaleNumber = s.nextSaleNumberLocked(now.Year())
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	stored := sale
	s.salesByID[sale.ID] = &stored
	s.salesByNumber[sale.SaleNumber] = &stored

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByNumber(_ context.Context, saleNumber string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByNumber[saleNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *sale
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, *sale)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.After(sales[j].CreatedAt) })
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) CreateRefund(_ context.Context, refund domain.Refund) (*domain.Refund, error) {
	if refund.SaleNumber == "" || refund.Reason == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByNumber[refund.SaleNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidTransaction
	}

	if refund.AmountCents == 0 {
		refund.AmountCents = sale.TotalCents
	}
	if refund.AmountCents < 1 || refund.AmountCents > sale.TotalCents {
		return nil, store.ErrInvalidTransaction
	}

	now := time.Now().UTC()
	if refund.RefundNumber == "" {
		s.refundSeqByYear[now.Year()]++
		refund.RefundNumber = xid.Numbered("REFUND", now.Year(), s.refundSeqByYear[now.Year()])
	}
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = now
	}
	refund.SaleID = sale.ID

	sale.Status = domain.SaleStatusRefunded
	s.refundsByID[refund.ID] = refund

	created := refund
	return &created, nil
}

func (s *Store) GetRefundByNumber(_ context.Context, refundNumber string) (*domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, refund := range s.refundsByID {
		if refund.RefundNumber == refundNumber {
			found := refund
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListRefunds(_ context.Context, limit int) ([]domain.Refund, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	refunds := make([]domain.Refund, 0, len(s.refundsByID))
	for _, refund := range s.refundsByID {
		refunds = append(refunds, refund)
	}
	sort.Slice(refunds, func(i, j int) bool { return refunds[i].CreatedAt.After(refunds[j].CreatedAt) })
	if len(refunds) > limit {
		refunds = refunds[:limit]
	}
	return refunds, nil
}

func (s *Store) GetDailyReport(_ context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		Date:      from.Format("2006-01-02"),
		ByPayment: make([]domain.PaymentBreakdown, 0, len(domain.PaymentMethods)),
		TopItems:  make([]domain.TopItem, 0, 5),
	}

	byMethod := make(map[string]domain.PaymentBreakdown, len(domain.PaymentMethods))
	type itemAgg struct {
		qty   int64
		total int64
	}
	byItem := make(map[string]itemAgg)

	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		report.SaleCount++
		report.TotalRevenueCents += sale.TotalCents

		row := byMethod[sale.PaymentMethod]
		row.PaymentMethod = sale.PaymentMethod
		row.SaleCount++
		row.TotalCents += sale.TotalCents
		byMethod[sale.PaymentMethod] = row

		for _, line := range sale.Items {
			agg := byItem[line.Name]
			agg.qty += int64(line.Qty)
			agg.total += line.LineTotalCents
			byItem[line.Name] = agg
		}
	}

	for _, method := range domain.PaymentMethods {
		row, ok := byMethod[method]
		if !ok {
			row = domain.PaymentBreakdown{PaymentMethod: method}
		}
		report.ByPayment = append(report.ByPayment, row)
	}

	top := make([]domain.TopItem, 0, len(byItem))
	for name, agg := range byItem {
		top = append(top, domain.TopItem{Name: name, Qty: agg.qty, TotalCents: agg.total})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Qty != top[j].Qty {
			return top[i].Qty > top[j].Qty
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > 5 {
		top = top[:5]
	}
	report.TopItems = top

	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, action string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if action != "" && entry.Action != action {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidTransaction
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// nextSaleNumberLocked must be called with s.mu held. The per-year counter is
// kept alongside a scan of existing numbers so seeded or imported sales cannot
// collide with generated ones.
func (s *Store) nextSaleNumberLocked(year int) string {
	seq := s.saleSeqByYear[year]
	prefix := fmt.Sprintf("SALE-%d-", year)
	for number := range s.salesByNumber {
		if !strings.HasPrefix(number, prefix) {
			continue
		}
		if parsed, err := strconv.ParseInt(number[len(prefix):], 10, 64); err == nil && parsed > seq {
			seq = parsed
		}
	}
	seq++
	s.saleSeqByYear[year] = seq
	return xid.Numbered("SALE", year, seq)
}
