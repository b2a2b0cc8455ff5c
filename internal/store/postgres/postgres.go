package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"apexpos/backend/internal/domain"
	"apexpos/backend/internal/store"
	"apexpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListItems(ctx context.Context, includeInactive bool) ([]domain.Item, error) {
	query := `
		SELECT id, name, name_alt, price_cents, active, created_at
		FROM items
		WHERE active = true
		ORDER BY name
	`
	if includeInactive {
		query = `
			SELECT id, name, name_alt, price_cents, active, created_at
			FROM items
			ORDER BY name
		`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		var item domain.Item
		var nameAlt sql.NullString
		if err := rows.Scan(&item.ID, &item.Name, &nameAlt, &item.PriceCents, &item.Active, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.NameAlt = nameAlt.String
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, name_alt, price_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, item.ID, item.Name, nullIfEmpty(item.NameAlt), item.PriceCents, item.Active, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	var nameAlt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, name_alt, price_cents, active, created_at
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &nameAlt, &item.PriceCents, &item.Active, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.NameAlt = nameAlt.String
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $2, name_alt = $3, price_cents = $4, active = $5, updated_at = now()
		WHERE id = $1
	`, item.ID, item.Name, nullIfEmpty(item.NameAlt), item.PriceCents, item.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := item
	return &updated, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateContractor(ctx context.Context, contractor domain.Contractor) (*domain.Contractor, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contractors (id, name, phone, email, address, company, credit_limit_cents, total_credits_cents, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, contractor.ID, contractor.Name, nullIfEmpty(contractor.Phone), nullIfEmpty(contractor.Email),
		nullIfEmpty(contractor.Address), nullIfEmpty(contractor.Company),
		contractor.CreditLimitCents, contractor.TotalCreditsCents, contractor.Status, contractor.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := contractor
	return &created, nil
}

func (s *Store) ListContractors(ctx context.Context) ([]domain.Contractor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, company, credit_limit_cents, total_credits_cents, status, created_at
		FROM contractors
		WHERE status = $1
		ORDER BY name
	`, domain.ContractorStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contractors := make([]domain.Contractor, 0, 64)
	for rows.Next() {
		contractor, err := scanContractor(rows)
		if err != nil {
			return nil, err
		}
		contractors = append(contractors, contractor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return contractors, nil
}

func (s *Store) GetContractorByID(ctx context.Context, id string) (*domain.Contractor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, company, credit_limit_cents, total_credits_cents, status, created_at
		FROM contractors
		WHERE id = $1
	`, id)
	contractor, err := scanContractor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &contractor, nil
}

func (s *Store) UpdateContractor(ctx context.Context, contractor domain.Contractor) (*domain.Contractor, error) {
	if contractor.ID == "" || contractor.Name == "" || contractor.CreditLimitCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE contractors
		SET name = $2, phone = $3, email = $4, address = $5, company = $6, credit_limit_cents = $7, status = $8, updated_at = now()
		WHERE id = $1
	`, contractor.ID, contractor.Name, nullIfEmpty(contractor.Phone), nullIfEmpty(contractor.Email),
		nullIfEmpty(contractor.Address), nullIfEmpty(contractor.Company),
		contractor.CreditLimitCents, contractor.Status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetContractorByID(ctx, contractor.ID)
}

func (s *Store) ListCreditTransactions(ctx context.Context, contractorID string, limit int) ([]domain.CreditTransaction, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contractor_id, sale_id, type, amount_cents, balance_after_cents, description, created_by, created_at
		FROM credit_transactions
		WHERE contractor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, contractorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CreditTransaction, 0, limit)
	for rows.Next() {
		var entry domain.CreditTransaction
		var saleID, description sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ContractorID, &saleID, &entry.Type, &entry.AmountCents,
			&entry.BalanceAfterCents, &description, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.SaleID = saleID.String
		entry.Description = description.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateCreditSale runs the whole credit-sale write as one serializable
// transaction: the contractor row is locked, the limit is checked against the
// locked balance, and the sale, line items, balance update, and ledger row
// either all commit or none do. Concurrent credit sales for the same
// contractor serialize on the row lock, so the limit check cannot act on a
// stale balance.
func (s *Store) CreateCreditSale(ctx context.Context, sale domain.Sale, description string) (*domain.CreditSaleResponse, error) {
	if sale.ContractorID == "" || len(sale.Items) == 0 || sale.TotalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var limitCents, balanceCents int64
	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT credit_limit_cents, total_credits_cents, status
		FROM contractors
		WHERE id = $1
		FOR UPDATE
	`, sale.ContractorID).Scan(&limitCents, &balanceCents, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.ContractorStatusActive {
		return nil, store.ErrInvalidTransaction
	}

	newBalance := balanceCents + sale.TotalCents
	if newBalance > limitCents {
		return nil, &store.CreditLimitError{
			CurrentCents:   balanceCents,
			LimitCents:     limitCents,
			AttemptedCents: newBalance,
		}
	}

	now := time.Now().UTC()
	if sale.SaleNumber == "" {
		seq, err := nextSaleSeq(ctx, pgTx, now.Year())
		if err != nil {
			return nil, err
		}
		sale.SaleNumber = xid.Numbered("SALE", now.Year(), seq)
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.PaymentMethod = domain.PaymentCredit
	sale.Status = domain.SaleStatusCompleted

	if err := insertSale(ctx, pgTx, sale); err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE contractors
		SET total_credits_cents = $2, updated_at = now()
		WHERE id = $1
	`, sale.ContractorID, newBalance)
	if err != nil {
		return nil, err
	}

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
	if err := insertCreditTransaction(ctx, pgTx, entry); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &domain.CreditSaleResponse{
		Sale:                   sale,
		Transaction:            entry,
		ContractorBalanceCents: newBalance,
	}, nil
}

// CreateCreditPayment locks the contractor row, floors the new balance at
// zero, and appends the payment ledger row in the same transaction.
func (s *Store) CreateCreditPayment(ctx context.Context, entry domain.CreditTransaction) (*domain.CreditPaymentResponse, error) {
	if entry.ContractorID == "" || entry.AmountCents < 1 {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var balanceCents int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT total_credits_cents
		FROM contractors
		WHERE id = $1
		FOR UPDATE
	`, entry.ContractorID).Scan(&balanceCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	newBalance := maxInt64(0, balanceCents-entry.AmountCents)

	_, err = pgTx.ExecContext(ctx, `
		UPDATE contractors
		SET total_credits_cents = $2, updated_at = now()
		WHERE id = $1
	`, entry.ContractorID, newBalance)
	if err != nil {
		return nil, err
	}

	if entry.ID == "" {
		entry.ID = xid.New("crtx")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Type = domain.CreditTxPayment
	entry.BalanceAfterCents = newBalance

	if err := insertCreditTransaction(ctx, pgTx, entry); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &domain.CreditPaymentResponse{
		Transaction:            entry,
		ContractorBalanceCents: newBalance,
	}, nil
}

func (s *Store) GetCreditReport(ctx context.Context, contractorID string) (domain.CreditReport, error) {
	contractor, err := s.GetContractorByID(ctx, contractorID)
	if err != nil {
		return domain.CreditReport{}, err
	}

	report := domain.CreditReport{Contractor: *contractor}
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(CASE WHEN type = $2 THEN amount_cents ELSE 0 END),0)::bigint,
			COALESCE(SUM(CASE WHEN type = $3 THEN amount_cents ELSE 0 END),0)::bigint
		FROM credit_transactions
		WHERE contractor_id = $1
	`, contractorID, domain.CreditTxSale, domain.CreditTxPayment).Scan(
		&report.TransactionCount,
		&report.TotalCreditSalesCents,
		&report.TotalPaymentsCents,
	)
	if err != nil {
		return domain.CreditReport{}, err
	}

	return report, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 || sale.TotalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	now := time.Now().UTC()
	if sale.SaleNumber == "" {
		seq, err := nextSaleSeq(ctx, pgTx, now.Year())
		if err != nil {
			return nil, err
		}
		sale.SaleNumber = xid.Numbered("SALE", now.Year(), seq)
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

	if err := insertSale(ctx, pgTx, sale); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByNumber(ctx context.Context, saleNumber string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sale_number, subtotal_cents, discount_cents, discount_percent, total_cents, payment_method,
			card_reference, cheque_number, contractor_id, status, notes, created_by, created_at
		FROM sales
		WHERE sale_number = $1
	`, saleNumber)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadSaleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_number, subtotal_cents, discount_cents, discount_percent, total_cents, payment_method,
			card_reference, cheque_number, contractor_id, status, notes, created_by, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	saleIDs := make([]string, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.loadSaleItems(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

// CreateRefund locks the sale row, enforces the single-refund policy, and
// flips the sale status inside the same transaction as the refund insert.
func (s *Store) CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
	if refund.SaleNumber == "" || refund.Reason == "" {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleID, saleStatus string
	var saleTotal int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, total_cents, status
		FROM sales
		WHERE sale_number = $1
		FOR UPDATE
	`, refund.SaleNumber).Scan(&saleID, &saleTotal, &saleStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if saleStatus != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidTransaction
	}

	if refund.AmountCents == 0 {
		refund.AmountCents = saleTotal
	}
	if refund.AmountCents < 1 || refund.AmountCents > saleTotal {
		return nil, store.ErrInvalidTransaction
	}

	now := time.Now().UTC()
	if refund.RefundNumber == "" {
		seq, err := nextRefundSeq(ctx, pgTx, now.Year())
		if err != nil {
			return nil, err
		}
		refund.RefundNumber = xid.Numbered("REFUND", now.Year(), seq)
	}
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = now
	}
	refund.SaleID = saleID

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO refunds (id, refund_number, sale_id, sale_number, amount_cents, reason, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, refund.ID, refund.RefundNumber, refund.SaleID, refund.SaleNumber, refund.AmountCents,
		refund.Reason, refund.CreatedBy, refund.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2
		WHERE id = $1
	`, saleID, domain.SaleStatusRefunded)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &refund, nil
}

func (s *Store) GetRefundByNumber(ctx context.Context, refundNumber string) (*domain.Refund, error) {
	var refund domain.Refund
	err := s.db.QueryRowContext(ctx, `
		SELECT id, refund_number, sale_id, sale_number, amount_cents, reason, created_by, created_at
		FROM refunds
		WHERE refund_number = $1
	`, refundNumber).Scan(&refund.ID, &refund.RefundNumber, &refund.SaleID, &refund.SaleNumber,
		&refund.AmountCents, &refund.Reason, &refund.CreatedBy, &refund.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	refund.CreatedAt = refund.CreatedAt.UTC()
	return &refund, nil
}

func (s *Store) ListRefunds(ctx context.Context, limit int) ([]domain.Refund, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, refund_number, sale_id, sale_number, amount_cents, reason, created_by, created_at
		FROM refunds
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]domain.Refund, 0, limit)
	for rows.Next() {
		var refund domain.Refund
		if err := rows.Scan(&refund.ID, &refund.RefundNumber, &refund.SaleID, &refund.SaleNumber,
			&refund.AmountCents, &refund.Reason, &refund.CreatedBy, &refund.CreatedAt); err != nil {
			return nil, err
		}
		refund.CreatedAt = refund.CreatedAt.UTC()
		refunds = append(refunds, refund)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refunds, nil
}

func (s *Store) GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		Date:      from.Format("2006-01-02"),
		ByPayment: make([]domain.PaymentBreakdown, 0, len(domain.PaymentMethods)),
		TopItems:  make([]domain.TopItem, 0, 5),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1 AND created_at < $2 AND status = $3
	`, from, to, domain.SaleStatusCompleted).Scan(&report.SaleCount, &report.TotalRevenueCents)
	if err != nil {
		return report, err
	}

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1 AND created_at < $2 AND status = $3
		GROUP BY payment_method
	`, from, to, domain.SaleStatusCompleted)
	if err != nil {
		return report, err
	}
	byMethod := make(map[string]domain.PaymentBreakdown, len(domain.PaymentMethods))
	for paymentRows.Next() {
		var row domain.PaymentBreakdown
		if err := paymentRows.Scan(&row.PaymentMethod, &row.SaleCount, &row.TotalCents); err != nil {
			_ = paymentRows.Close()
			return report, err
		}
		byMethod[row.PaymentMethod] = row
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return report, err
	}
	_ = paymentRows.Close()

	// Every payment category appears in the report, zero-filled when absent.
	for _, method := range domain.PaymentMethods {
		row, ok := byMethod[method]
		if !ok {
			row = domain.PaymentBreakdown{PaymentMethod: method}
		}
		report.ByPayment = append(report.ByPayment, row)
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT si.name, COALESCE(SUM(si.qty),0)::bigint, COALESCE(SUM(si.line_total_cents),0)::bigint
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1 AND s.created_at < $2 AND s.status = $3
		GROUP BY si.name
		ORDER BY SUM(si.qty) DESC, si.name
		LIMIT 5
	`, from, to, domain.SaleStatusCompleted)
	if err != nil {
		return report, err
	}
	for itemRows.Next() {
		var item domain.TopItem
		if err := itemRows.Scan(&item.Name, &item.Qty, &item.TotalCents); err != nil {
			_ = itemRows.Close()
			return report, err
		}
		report.TopItems = append(report.TopItems, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return report, err
	}
	_ = itemRows.Close()

	return report, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, username, action, entity_type, entity_id, contractor_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Username, entry.Action, entry.EntityType, entry.EntityID,
		nullIfEmpty(entry.ContractorID), entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, action string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, username, action, entity_type, entity_id, contractor_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`
	args := []any{limit}
	if action != "" {
		query = `
			SELECT id, username, action, entity_type, entity_id, contractor_id, detail, created_at
			FROM audit_logs
			WHERE action = $2
			ORDER BY created_at DESC
			LIMIT $1
		`
		args = append(args, action)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var contractorID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.Action, &entry.EntityType,
			&entry.EntityID, &contractorID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ContractorID = contractorID.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// insertSale writes the sale row and its line items inside the given
// transaction.
func insertSale(ctx context.Context, pgTx *sql.Tx, sale domain.Sale) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, sale_number, subtotal_cents, discount_cents, discount_percent, total_cents, payment_method,
			card_reference, cheque_number, contractor_id, status, notes, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.SaleNumber, sale.SubtotalCents, sale.DiscountCents, sale.DiscountPercent, sale.TotalCents,
		sale.PaymentMethod, nullIfEmpty(sale.CardReference), nullIfEmpty(sale.ChequeNumber),
		nullIfEmpty(sale.ContractorID), sale.Status, nullIfEmpty(sale.Notes), sale.CreatedBy, sale.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, item_id, name, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, nullIfEmpty(item.ItemID), item.Name, item.Qty, item.UnitPriceCents, item.LineTotalCents)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
	}
	return nil
}

func insertCreditTransaction(ctx context.Context, pgTx *sql.Tx, entry domain.CreditTransaction) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO credit_transactions (
			id, contractor_id, sale_id, type, amount_cents, balance_after_cents, description, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ContractorID, nullIfEmpty(entry.SaleID), entry.Type, entry.AmountCents,
		entry.BalanceAfterCents, nullIfEmpty(entry.Description), entry.CreatedBy, entry.CreatedAt)
	return err
}

// nextSaleSeq returns the next sequence value for the given year's sale
// numbers. Must run inside the caller's transaction so that concurrent sales
// serialize on the serializable isolation level.
func nextSaleSeq(ctx context.Context, pgTx *sql.Tx, year int) (int64, error) {
	prefix := xid.Numbered("SALE", year, 0)
	prefix = prefix[:len(prefix)-6]

	var max int64
	err := pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(sale_number FROM $2) AS BIGINT)), 0)
		FROM sales
		WHERE sale_number LIKE $1
	`, prefix+"%", len(prefix)+1).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func nextRefundSeq(ctx context.Context, pgTx *sql.Tx, year int) (int64, error) {
	prefix := xid.Numbered("REFUND", year, 0)
	prefix = prefix[:len(prefix)-6]

	var max int64
	err := pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(refund_number FROM $2) AS BIGINT)), 0)
		FROM refunds
		WHERE refund_number LIKE $1
	`, prefix+"%", len(prefix)+1).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleLine, error) {
	result := make(map[string][]domain.SaleLine, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, item_id, name, qty, unit_price_cents, line_total_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, name
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var line domain.SaleLine
		var itemID sql.NullString
		if err := rows.Scan(&saleID, &itemID, &line.Name, &line.Qty, &line.UnitPriceCents, &line.LineTotalCents); err != nil {
			return nil, err
		}
		line.ItemID = itemID.String
		result[saleID] = append(result[saleID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContractor(row rowScanner) (domain.Contractor, error) {
	var contractor domain.Contractor
	var phone, email, address, company sql.NullString
	err := row.Scan(&contractor.ID, &contractor.Name, &phone, &email, &address, &company,
		&contractor.CreditLimitCents, &contractor.TotalCreditsCents, &contractor.Status, &contractor.CreatedAt)
	if err != nil {
		return domain.Contractor{}, err
	}
	contractor.Phone = phone.String
	contractor.Email = email.String
	contractor.Address = address.String
	contractor.Company = company.String
	contractor.CreatedAt = contractor.CreatedAt.UTC()
	return contractor, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var cardRef, chequeNo, contractorID, notes sql.NullString
	err := row.Scan(&sale.ID, &sale.SaleNumber, &sale.SubtotalCents, &sale.DiscountCents,
		&sale.DiscountPercent, &sale.TotalCents, &sale.PaymentMethod, &cardRef, &chequeNo, &contractorID,
		&sale.Status, &notes, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CardReference = cardRef.String
	sale.ChequeNumber = chequeNo.String
	sale.ContractorID = contractorID.String
	sale.Notes = notes.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func maxInt64(a int64, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
