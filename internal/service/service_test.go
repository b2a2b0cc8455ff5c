package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"apexpos/backend/internal/cache"
	"apexpos/backend/internal/domain"
	"apexpos/backend/internal/store"
	"apexpos/backend/internal/store/memory"
)

const seedContractorID = "ctr-seed-1"

var (
	adminActor   = domain.Actor{Username: "admin", Role: "admin"}
	cashierActor = domain.Actor{Username: "cashier", Role: "cashier"}
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopReportCache{}, time.Second)
}

func setCreditLimit(t *testing.T, svc *Service, contractorID string, limitCents int64) {
	t.Helper()
	_, err := svc.UpdateContractor(context.Background(), adminActor, contractorID, domain.ContractorUpdateRequest{
		CreditLimitCents: &limitCents,
	})
	if err != nil {
		t.Fatalf("set credit limit failed: %v", err)
	}
}

func recordCreditSale(t *testing.T, svc *Service, contractorID string, amountCents int64) domain.CreditSaleResponse {
	t.Helper()
	resp, err := svc.RecordCreditSale(context.Background(), cashierActor, domain.CreditSaleRequest{
		ContractorID: contractorID,
		Items: []domain.SaleLineInput{
			{Name: "Cement 50kg", Qty: 1, UnitPriceCents: amountCents},
		},
	})
	if err != nil {
		t.Fatalf("credit sale of %d failed: %v", amountCents, err)
	}
	return resp
}

func TestRecordCreditSaleUpdatesBalanceAndLedger(t *testing.T) {
	svc := newTestService()
	setCreditLimit(t, svc, seedContractorID, 100_000)

	recordCreditSale(t, svc, seedContractorID, 80_000)
	resp := recordCreditSale(t, svc, seedContractorID, 15_000)

	if resp.ContractorBalanceCents != 95_000 {
		t.Fatalf("expected balance 95000 after both sales, got %d", resp.ContractorBalanceCents)
	}
	if resp.Transaction.Type != domain.CreditTxSale {
		t.Fatalf("expected credit_sale transaction, got %s", resp.Transaction.Type)
	}
	if resp.Transaction.BalanceAfterCents != 95_000 {
		t.Fatalf("expected balance_after snapshot 95000, got %d", resp.Transaction.BalanceAfterCents)
	}
	if !strings.HasPrefix(resp.Sale.SaleNumber, "SALE-") {
		t.Fatalf("unexpected sale number: %s", resp.Sale.SaleNumber)
	}
	if resp.Sale.PaymentMethod != domain.PaymentCredit {
		t.Fatalf("expected credit payment method, got %s", resp.Sale.PaymentMethod)
	}

	detail, err := svc.GetContractor(context.Background(), seedContractorID)
	if err != nil {
		t.Fatalf("get contractor failed: %v", err)
	}
	if detail.Contractor.TotalCreditsCents != 95_000 {
		t.Fatalf("expected persisted balance 95000, got %d", detail.Contractor.TotalCreditsCents)
	}
	if len(detail.History) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(detail.History))
	}
}

func TestRecordCreditSaleRejectsOverLimitAndLeavesStateUnchanged(t *testing.T) {
	svc := newTestService()
	setCreditLimit(t, svc, seedContractorID, 100_000)
	recordCreditSale(t, svc, seedContractorID, 80_000)

	_, err := svc.RecordCreditSale(context.Background(), cashierActor, domain.CreditSaleRequest{
		ContractorID: seedContractorID,
		Items: []domain.SaleLineInput{
			{Name: "Rebar 12mm", Qty: 1, UnitPriceCents: 30_000},
		},
	})

	var limitErr *store.CreditLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected CreditLimitError, got %v", err)
	}
	if limitErr.CurrentCents != 80_000 || limitErr.LimitCents != 100_000 || limitErr.AttemptedCents != 110_000 {
		t.Fatalf("unexpected limit error values: %+v", limitErr)
	}

	detail, err := svc.GetContractor(context.Background(), seedContractorID)
	if err != nil {
		t.Fatalf("get contractor failed: %v", err)
	}
	if detail.Contractor.TotalCreditsCents != 80_000 {
		t.Fatalf("expected balance unchanged at 80000, got %d", detail.Contractor.TotalCreditsCents)
	}
	if len(detail.History) != 1 {
		t.Fatalf("expected rejected sale to leave no ledger entry, got %d entries", len(detail.History))
	}

	sales, err := svc.ListSales(context.Background(), "", 100)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected rejected sale to leave no sale record, got %d sales", len(sales))
	}
}

func TestRecordCreditSaleRejectsInactiveContractor(t *testing.T) {
	svc := newTestService()
	inactive := domain.ContractorStatusInactive
	_, err := svc.UpdateContractor(context.Background(), adminActor, seedContractorID, domain.ContractorUpdateRequest{
		Status: &inactive,
	})
	if err != nil {
		t.Fatalf("deactivate contractor failed: %v", err)
	}

	_, err = svc.RecordCreditSale(context.Background(), cashierActor, domain.CreditSaleRequest{
		ContractorID: seedContractorID,
		Items: []domain.SaleLineInput{
			{Name: "Cement 50kg", Qty: 1, UnitPriceCents: 1000},
		},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for inactive contractor, got %v", err)
	}
}

func TestConcurrentCreditSalesNeverExceedLimit(t *testing.T) {
	svc := newTestService()
	setCreditLimit(t, svc, seedContractorID, 100_000)
	recordCreditSale(t, svc, seedContractorID, 80_000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordCreditSale(context.Background(), cashierActor, domain.CreditSaleRequest{
				ContractorID: seedContractorID,
				Items: []domain.SaleLineInput{
					{Name: "Washed Sand m3", Qty: 1, UnitPriceCents: 30_000},
				},
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 0 {
		t.Fatalf("expected every over-limit sale to be rejected, got %d successes", successes)
	}

	detail, err := svc.GetContractor(context.Background(), seedContractorID)
	if err != nil {
		t.Fatalf("get contractor failed: %v", err)
	}
	if detail.Contractor.TotalCreditsCents != 80_000 {
		t.Fatalf("expected balance to stay 80000, got %d", detail.Contractor.TotalCreditsCents)
	}
}

func TestRecordCreditPaymentFloorsBalanceAtZero(t *testing.T) {
	svc := newTestService()
	setCreditLimit(t, svc, seedContractorID, 100_000)
	recordCreditSale(t, svc, seedContractorID, 50_000)

	resp, err := svc.RecordCreditPayment(context.Background(), cashierActor, domain.CreditPaymentRequest{
		ContractorID: seedContractorID,
		AmountCents:  70_000,
	})
	if err != nil {
		t.Fatalf("credit payment failed: %v", err)
	}
	if resp.ContractorBalanceCents != 0 {
		t.Fatalf("expected balance floored at 0, got %d", resp.ContractorBalanceCents)
	}
	if resp.Transaction.Type != domain.CreditTxPayment {
		t.Fatalf("expected payment transaction, got %s", resp.Transaction.Type)
	}
	if resp.Transaction.BalanceAfterCents != 0 {
		t.Fatalf("expected balance_after 0, got %d", resp.Transaction.BalanceAfterCents)
	}
}

func TestRecordCreditPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordCreditPayment(context.Background(), cashierActor, domain.CreditPaymentRequest{
		ContractorID: seedContractorID,
		AmountCents:  0,
	})
	if err == nil {
		t.Fatalf("expected zero-amount payment to be rejected")
	}
}

func TestGetCreditReportAggregatesLedger(t *testing.T) {
	svc := newTestService()
	setCreditLimit(t, svc, seedContractorID, 200_000)
	recordCreditSale(t, svc, seedContractorID, 80_000)
	recordCreditSale(t, svc, seedContractorID, 40_000)

	_, err := svc.RecordCreditPayment(context.Background(), cashierActor, domain.CreditPaymentRequest{
		ContractorID: seedContractorID,
		AmountCents:  30_000,
	})
	if err != nil {
		t.Fatalf("credit payment failed: %v", err)
	}

	report, err := svc.GetCreditReport(context.Background(), seedContractorID)
	if err != nil {
		t.Fatalf("credit report failed: %v", err)
	}
	if report.TransactionCount != 3 {
		t.Fatalf("expected 3 transactions, got %d", report.TransactionCount)
	}
	if report.TotalCreditSalesCents != 120_000 {
		t.Fatalf("expected total credit sales 120000, got %d", report.TotalCreditSalesCents)
	}
	if report.TotalPaymentsCents != 30_000 {
		t.Fatalf("expected total payments 30000, got %d", report.TotalPaymentsCents)
	}
	if report.Contractor.TotalCreditsCents != 90_000 {
		t.Fatalf("expected outstanding balance 90000, got %d", report.Contractor.TotalCreditsCents)
	}
}

func TestLedgerBalanceSnapshotsReplayToCurrentBalance(t *testing.T) {
	svc := newTestService()
	setCreditLimit(t, svc, seedContractorID, 500_000)

	recordCreditSale(t, svc, seedContractorID, 120_000)
	_, err := svc.RecordCreditPayment(context.Background(), cashierActor, domain.CreditPaymentRequest{
		ContractorID: seedContractorID,
		AmountCents:  50_000,
	})
	if err != nil {
		t.Fatalf("credit payment failed: %v", err)
	}
	recordCreditSale(t, svc, seedContractorID, 30_000)

	detail, err := svc.GetContractor(context.Background(), seedContractorID)
	if err != nil {
		t.Fatalf("get contractor failed: %v", err)
	}

	var replayed int64
	for i := len(detail.History) - 1; i >= 0; i-- {
		entry := detail.History[i]
		switch entry.Type {
		case domain.CreditTxSale:
			replayed += entry.AmountCents
		case domain.CreditTxPayment:
			replayed -= entry.AmountCents
			if replayed < 0 {
				replayed = 0
			}
		}
		if entry.BalanceAfterCents != replayed {
			t.Fatalf("ledger snapshot %d does not replay: got %d, want %d", i, entry.BalanceAfterCents, replayed)
		}
	}
	if replayed != detail.Contractor.TotalCreditsCents {
		t.Fatalf("replayed balance %d does not match stored balance %d", replayed, detail.Contractor.TotalCreditsCents)
	}
}

func TestRecordSaleRequiresMethodReference(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	items := []domain.SaleLineInput{{Name: "Gypsum Board", Qty: 2, UnitPriceCents: 320_00}}

	_, err := svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
		Items:         items,
		PaymentMethod: domain.PaymentCard,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected card sale without reference to fail, got %v", err)
	}

	_, err = svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
		Items:         items,
		PaymentMethod: domain.PaymentCheque,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected cheque sale without number to fail, got %v", err)
	}

	_, err = svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
		Items:         items,
		PaymentMethod: domain.PaymentCredit,
	})
	if err == nil {
		t.Fatalf("expected credit sale through plain endpoint to fail")
	}

	sale, err := svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
		Items:         items,
		PaymentMethod: domain.PaymentCard,
		CardReference: "AUTH-4411",
	})
	if err != nil {
		t.Fatalf("card sale with reference failed: %v", err)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed sale, got %s", sale.Status)
	}
	if sale.TotalCents != 640_00 {
		t.Fatalf("expected total 64000, got %d", sale.TotalCents)
	}
}

func TestRecordSaleClampsTotalAtZero(t *testing.T) {
	svc := newTestService()

	sale, err := svc.RecordSale(context.Background(), cashierActor, domain.SaleCreateRequest{
		Items:         []domain.SaleLineInput{{Name: "Concrete Block 20cm", Qty: 1, UnitPriceCents: 45_00}},
		DiscountCents: 99_99,
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if sale.TotalCents != 0 {
		t.Fatalf("expected over-discounted total clamped to 0, got %d", sale.TotalCents)
	}
	if sale.SubtotalCents != 45_00 {
		t.Fatalf("expected subtotal 4500, got %d", sale.SubtotalCents)
	}
}

func TestRefundFlipsStatusAndRejectsSecondRefund(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
		Items:         []domain.SaleLineInput{{Name: "Wall Paint 18L", Qty: 1, UnitPriceCents: 1450_00}},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	refund, err := svc.RecordRefund(ctx, adminActor, domain.RefundCreateRequest{
		SaleNumber: sale.SaleNumber,
		Reason:     "damaged tin",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !strings.HasPrefix(refund.RefundNumber, "REFUND-") {
		t.Fatalf("unexpected refund number: %s", refund.RefundNumber)
	}
	if refund.AmountCents != sale.TotalCents {
		t.Fatalf("expected full refund %d, got %d", sale.TotalCents, refund.AmountCents)
	}

	refunded, err := svc.GetSaleByNumber(ctx, sale.SaleNumber)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if refunded.Status != domain.SaleStatusRefunded {
		t.Fatalf("expected refunded status, got %s", refunded.Status)
	}

	_, err = svc.RecordRefund(ctx, adminActor, domain.RefundCreateRequest{
		SaleNumber: sale.SaleNumber,
		Reason:     "second attempt",
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected second refund to be rejected, got %v", err)
	}
}

func TestRefundRequiresReason(t *testing.T) {
	svc := newTestService()

	sale, err := svc.RecordSale(context.Background(), cashierActor, domain.SaleCreateRequest{
		Items:         []domain.SaleLineInput{{Name: "Gypsum Board", Qty: 1, UnitPriceCents: 320_00}},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	_, err = svc.RecordRefund(context.Background(), adminActor, domain.RefundCreateRequest{
		SaleNumber: sale.SaleNumber,
	})
	if err == nil {
		t.Fatalf("expected refund without reason to be rejected")
	}
}

func TestDailyReportZeroFillsPaymentMethods(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
		Items:         []domain.SaleLineInput{{Name: "Cement 50kg", Qty: 3, UnitPriceCents: 275_00}},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}
	_, err = svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
		Items:         []domain.SaleLineInput{{Name: "Rebar 12mm", Qty: 1, UnitPriceCents: 850_00}},
		PaymentMethod: domain.PaymentCard,
		CardReference: "AUTH-7001",
	})
	if err != nil {
		t.Fatalf("card sale failed: %v", err)
	}

	report, err := svc.DailyReport(ctx, "")
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.SaleCount != 2 {
		t.Fatalf("expected 2 sales, got %d", report.SaleCount)
	}
	if report.TotalRevenueCents != 3*275_00+850_00 {
		t.Fatalf("unexpected revenue: %d", report.TotalRevenueCents)
	}

	if len(report.ByPayment) != len(domain.PaymentMethods) {
		t.Fatalf("expected %d payment rows, got %d", len(domain.PaymentMethods), len(report.ByPayment))
	}
	byMethod := map[string]domain.PaymentBreakdown{}
	for i, row := range report.ByPayment {
		if row.PaymentMethod != domain.PaymentMethods[i] {
			t.Fatalf("expected payment row %d to be %s, got %s", i, domain.PaymentMethods[i], row.PaymentMethod)
		}
		byMethod[row.PaymentMethod] = row
	}
	if byMethod[domain.PaymentCash].SaleCount != 1 || byMethod[domain.PaymentCard].SaleCount != 1 {
		t.Fatalf("unexpected per-method counts: %+v", byMethod)
	}
	if byMethod[domain.PaymentCheque].SaleCount != 0 || byMethod[domain.PaymentCheque].TotalCents != 0 {
		t.Fatalf("expected cheque row zero-filled, got %+v", byMethod[domain.PaymentCheque])
	}
	if byMethod[domain.PaymentCredit].SaleCount != 0 {
		t.Fatalf("expected credit row zero-filled, got %+v", byMethod[domain.PaymentCredit])
	}
}

func TestDailyReportCapsTopItemsAtFive(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	names := []string{"Cement 50kg", "Rebar 12mm", "Washed Sand m3", "Concrete Block 20cm", "Wall Paint 18L", "Gypsum Board"}
	for i, name := range names {
		_, err := svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
			Items:         []domain.SaleLineInput{{Name: name, Qty: i + 1, UnitPriceCents: 1000}},
			PaymentMethod: domain.PaymentCash,
		})
		if err != nil {
			t.Fatalf("sale %d failed: %v", i, err)
		}
	}

	report, err := svc.DailyReport(ctx, "")
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if len(report.TopItems) != 5 {
		t.Fatalf("expected top items capped at 5, got %d", len(report.TopItems))
	}
	if report.TopItems[0].Name != "Gypsum Board" || report.TopItems[0].Qty != 6 {
		t.Fatalf("expected highest-qty item first, got %+v", report.TopItems[0])
	}
	for i := 1; i < len(report.TopItems); i++ {
		if report.TopItems[i].Qty > report.TopItems[i-1].Qty {
			t.Fatalf("top items not sorted by qty: %+v", report.TopItems)
		}
	}
}

func TestDailyReportRejectsMalformedDate(t *testing.T) {
	svc := newTestService()

	_, err := svc.DailyReport(context.Background(), "30-08-2026")
	if err == nil {
		t.Fatalf("expected malformed date to be rejected")
	}
}

func TestRecordSaleAppliesPercentageDiscount(t *testing.T) {
	svc := newTestService()

	sale, err := svc.RecordSale(context.Background(), cashierActor, domain.SaleCreateRequest{
		Items:           []domain.SaleLineInput{{Name: "Cement 50kg", Qty: 4, UnitPriceCents: 2500}},
		DiscountCents:   500,
		DiscountPercent: 10,
		PaymentMethod:   domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if sale.SubtotalCents != 10_000 {
		t.Fatalf("expected subtotal 10000, got %d", sale.SubtotalCents)
	}
	// 10000 - 500 flat - 10% of 10000.
	if sale.TotalCents != 8_500 {
		t.Fatalf("expected total 8500, got %d", sale.TotalCents)
	}
	if sale.DiscountPercent != 10 {
		t.Fatalf("expected discount percentage 10 persisted, got %v", sale.DiscountPercent)
	}

	fetched, err := svc.GetSaleByNumber(context.Background(), sale.SaleNumber)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if fetched.DiscountPercent != 10 {
		t.Fatalf("expected stored discount percentage 10, got %v", fetched.DiscountPercent)
	}
}

func TestRecordCreditSaleAppliesPercentageDiscount(t *testing.T) {
	svc := newTestService()
	setCreditLimit(t, svc, seedContractorID, 100_000)

	resp, err := svc.RecordCreditSale(context.Background(), cashierActor, domain.CreditSaleRequest{
		ContractorID:    seedContractorID,
		Items:           []domain.SaleLineInput{{Name: "Rebar 12mm", Qty: 1, UnitPriceCents: 50_000}},
		DiscountPercent: 20,
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}
	if resp.Sale.TotalCents != 40_000 {
		t.Fatalf("expected discounted total 40000, got %d", resp.Sale.TotalCents)
	}
	if resp.ContractorBalanceCents != 40_000 {
		t.Fatalf("expected balance 40000, got %d", resp.ContractorBalanceCents)
	}
}

func TestRecordSaleRejectsOutOfRangeDiscountPercent(t *testing.T) {
	svc := newTestService()

	for _, pct := range []float64{-5, 150} {
		_, err := svc.RecordSale(context.Background(), cashierActor, domain.SaleCreateRequest{
			Items:           []domain.SaleLineInput{{Name: "Cement 50kg", Qty: 1, UnitPriceCents: 1000}},
			DiscountPercent: pct,
			PaymentMethod:   domain.PaymentCash,
		})
		if !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("expected percentage %v to be rejected, got %v", pct, err)
		}
	}
}

func TestRecordSaleRejectsOversizedLines(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordSale(context.Background(), cashierActor, domain.SaleCreateRequest{
		Items:         []domain.SaleLineInput{{Name: "Cement 50kg", Qty: maxLineQty + 1, UnitPriceCents: 1000}},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected oversized qty to be rejected, got %v", err)
	}

	_, err = svc.RecordSale(context.Background(), cashierActor, domain.SaleCreateRequest{
		Items:         []domain.SaleLineInput{{Name: "Cement 50kg", Qty: 1, UnitPriceCents: maxUnitPriceCents + 1}},
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected oversized price to be rejected, got %v", err)
	}

	// Individually-legal lines whose sum would wrap must also be rejected.
	huge := make([]domain.SaleLineInput, 0, 12)
	for i := 0; i < 12; i++ {
		huge = append(huge, domain.SaleLineInput{Name: "Cement 50kg", Qty: maxLineQty, UnitPriceCents: maxUnitPriceCents})
	}
	_, err = svc.RecordSale(context.Background(), cashierActor, domain.SaleCreateRequest{
		Items:         huge,
		PaymentMethod: domain.PaymentCash,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected oversized subtotal to be rejected, got %v", err)
	}
}

func TestGetRefundByNumber(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, cashierActor, domain.SaleCreateRequest{
		Items:         []domain.SaleLineInput{{Name: "Gypsum Board", Qty: 1, UnitPriceCents: 320_00}},
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	refund, err := svc.RecordRefund(ctx, adminActor, domain.RefundCreateRequest{
		SaleNumber: sale.SaleNumber,
		Reason:     "cracked board",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	found, err := svc.GetRefundByNumber(ctx, refund.RefundNumber)
	if err != nil {
		t.Fatalf("get refund failed: %v", err)
	}
	if found.SaleNumber != sale.SaleNumber || found.AmountCents != refund.AmountCents {
		t.Fatalf("unexpected refund: %+v", found)
	}

	_, err = svc.GetRefundByNumber(ctx, "REFUND-2020-999999")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown refund, got %v", err)
	}
}

func TestCreateContractorDefaultsCreditLimit(t *testing.T) {
	svc := newTestService()

	contractor, err := svc.CreateContractor(context.Background(), cashierActor, domain.ContractorCreateRequest{
		Name:    "Desert Pearl Builders",
		Phone:   "+965-5550-0202",
		Email:   "accounts@desertpearl.example",
		Address: "Block 4, Shuwaikh Industrial",
		Company: "Desert Pearl WLL",
	})
	if err != nil {
		t.Fatalf("create contractor failed: %v", err)
	}
	if contractor.CreditLimitCents != domain.DefaultCreditLimitCents {
		t.Fatalf("expected default credit limit %d, got %d", domain.DefaultCreditLimitCents, contractor.CreditLimitCents)
	}
	if contractor.Status != domain.ContractorStatusActive {
		t.Fatalf("expected active contractor, got %s", contractor.Status)
	}
	if contractor.TotalCreditsCents != 0 {
		t.Fatalf("expected zero opening balance, got %d", contractor.TotalCreditsCents)
	}

	detail, err := svc.GetContractor(context.Background(), contractor.ID)
	if err != nil {
		t.Fatalf("get contractor failed: %v", err)
	}
	if detail.Contractor.Email != "accounts@desertpearl.example" {
		t.Fatalf("expected stored email, got %q", detail.Contractor.Email)
	}
	if detail.Contractor.Address != "Block 4, Shuwaikh Industrial" {
		t.Fatalf("expected stored address, got %q", detail.Contractor.Address)
	}

	email := "billing@desertpearl.example"
	updated, err := svc.UpdateContractor(context.Background(), adminActor, contractor.ID, domain.ContractorUpdateRequest{
		Email: &email,
	})
	if err != nil {
		t.Fatalf("update contractor failed: %v", err)
	}
	if updated.Email != email {
		t.Fatalf("expected updated email %q, got %q", email, updated.Email)
	}
	if updated.Address != "Block 4, Shuwaikh Industrial" {
		t.Fatalf("expected address preserved, got %q", updated.Address)
	}
}

func TestContractorUpdateRequiresAdmin(t *testing.T) {
	svc := newTestService()
	limit := int64(5000)

	_, err := svc.UpdateContractor(context.Background(), cashierActor, seedContractorID, domain.ContractorUpdateRequest{
		CreditLimitCents: &limit,
	})
	if err == nil {
		t.Fatalf("expected non-admin contractor update to fail")
	}
}

func TestCreateItemRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateItem(context.Background(), cashierActor, domain.ItemCreateRequest{
		Name:       "Tile Adhesive 20kg",
		PriceCents: 95_00,
	})
	if err == nil {
		t.Fatalf("expected non-admin item create to fail")
	}

	item, err := svc.CreateItem(context.Background(), adminActor, domain.ItemCreateRequest{
		Name:       "Tile Adhesive 20kg",
		PriceCents: 95_00,
	})
	if err != nil {
		t.Fatalf("admin item create failed: %v", err)
	}
	if item.ID == "" || !item.Active {
		t.Fatalf("expected active item with id, got %+v", item)
	}
}
