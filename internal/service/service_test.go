package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
	"koperasi/backend/internal/store/memory"
)

var (
	adminActor = domain.Actor{UserID: "usr-admin", Username: "admin", Role: domain.RoleAdmin}
	kasirActor = domain.Actor{UserID: "usr-kasir", Username: "kasir", Role: domain.RoleKasir}
	sitiActor  = domain.Actor{UserID: "usr-siti", Username: "siti", Role: domain.RoleAnggota}
	budiActor  = domain.Actor{UserID: "usr-budi", Username: "budi", Role: domain.RoleAnggota}
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, nil, nil, Options{}), repo
}

func as(actor domain.Actor) context.Context {
	return WithActor(context.Background(), actor)
}

func mustItem(t *testing.T, repo store.Repository, id string) domain.Item {
	t.Helper()
	item, err := repo.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return *item
}

func mustMember(t *testing.T, repo store.Repository, id string) domain.Member {
	t.Helper()
	member, err := repo.GetMember(context.Background(), id)
	if err != nil {
		t.Fatalf("get member %s: %v", id, err)
	}
	return *member
}

func setBalances(t *testing.T, repo store.Repository, memberID string, saldo int64, hutang int64) {
	t.Helper()
	ctx := context.Background()
	err := repo.WithinTx(ctx, func(tx store.Tx) error {
		member, err := tx.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		member.Saldo = saldo
		member.Hutang = hutang
		return tx.SaveMemberBalances(ctx, *member)
	})
	if err != nil {
		t.Fatalf("set balances: %v", err)
	}
}

func TestCashierPostDecrementsStockAndTotalsLines(t *testing.T) {
	svc, repo := newTestService()

	beforeBeras := mustItem(t, repo, "brg-beras")
	beforeMie := mustItem(t, repo, "brg-mie")

	resp, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "cash",
		Items: []domain.CartItem{
			{ItemID: "brg-beras", Qty: 2},
			{ItemID: "brg-mie", Qty: 5},
		},
	}, domain.SourceKasir)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if !resp.Success || resp.Status != domain.TxStatusSelesai {
		t.Fatalf("expected selesai success, got %+v", resp)
	}

	if got := mustItem(t, repo, "brg-beras").Stok; got != beforeBeras.Stok-2 {
		t.Fatalf("expected beras stock %d, got %d", beforeBeras.Stok-2, got)
	}
	if got := mustItem(t, repo, "brg-mie").Stok; got != beforeMie.Stok-5 {
		t.Fatalf("expected mie stock %d, got %d", beforeMie.Stok-5, got)
	}

	trx, err := svc.GetTransaction(as(kasirActor), resp.TransactionID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	var sum int64
	for _, line := range trx.Lines {
		sum += line.Subtotal
	}
	if sum != trx.Total || trx.Total != 2*68000+5*3000 {
		t.Fatalf("expected total %d equal to line sum %d", trx.Total, sum)
	}
	if trx.TotalProfit != 2*8000+5*500 {
		t.Fatalf("unexpected profit %d", trx.TotalProfit)
	}
	if trx.CashierID != kasirActor.UserID || trx.CompletedAt == nil {
		t.Fatalf("expected cashier and completion stamp, got %+v", trx)
	}
}

func TestPostIgnoresClientPriceAndMergesDuplicateLines(t *testing.T) {
	svc, repo := newTestService()
	cheap := int64(1)

	resp, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "qr",
		Items: []domain.CartItem{
			{ItemID: "brg-kopi", Qty: 2, UnitPrice: &cheap},
			{ItemID: "brg-kopi", Qty: 3},
		},
	}, domain.SourceKasir)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if resp.Total != 5*1500 {
		t.Fatalf("expected server price total 7500, got %d", resp.Total)
	}

	trx, _ := svc.GetTransaction(as(kasirActor), resp.TransactionID)
	if len(trx.Lines) != 1 || trx.Lines[0].Qty != 5 {
		t.Fatalf("expected one merged line of 5, got %+v", trx.Lines)
	}
	if trx.PaymentMethod != domain.PaymentQRIS {
		t.Fatalf("expected qr alias to become qris, got %s", trx.PaymentMethod)
	}
	if got := mustItem(t, repo, "brg-kopi").Stok; got != 145 {
		t.Fatalf("expected kopi stock 145, got %d", got)
	}
}

func TestOutOfStockRollsBackEveryLine(t *testing.T) {
	svc, repo := newTestService()
	setBalances(t, repo, "agt-siti", 500000, 0)

	_, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "balance",
		MemberID:      "agt-siti",
		Items: []domain.CartItem{
			{ItemID: "brg-beras", Qty: 1},
			{ItemID: "brg-sabun", Qty: 10},
		},
	}, domain.SourceKasir)
	if !errors.Is(err, store.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	if got := mustItem(t, repo, "brg-beras").Stok; got != 40 {
		t.Fatalf("expected beras stock untouched at 40, got %d", got)
	}
	if got := mustItem(t, repo, "brg-sabun").Stok; got != 4 {
		t.Fatalf("expected sabun stock untouched at 4, got %d", got)
	}
	member := mustMember(t, repo, "agt-siti")
	if member.Saldo != 500000 || member.SHU != 0 {
		t.Fatalf("expected balances untouched, got %+v", member)
	}
	trxs, _ := repo.ListTransactions(context.Background(), domain.TransactionFilter{Status: domain.TxStatusSelesai, MemberID: "agt-siti"})
	if len(trxs) != 1 {
		t.Fatalf("expected only the seeded history transaction, got %d", len(trxs))
	}
}

func TestSaldoPaymentScenario(t *testing.T) {
	svc, repo := newTestService()

	item, err := svc.CreateItem(as(adminActor), domain.ItemCreateRequest{
		Kode: "pkt-sembako", Nama: "Paket Sembako", Stok: 10, HargaBeli: 25000, HargaJual: 30000,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.Kode != "PKT-SEMBAKO" {
		t.Fatalf("expected upper-cased kode, got %s", item.Kode)
	}

	resp, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "balance",
		MemberID:      "agt-siti",
		Items:         []domain.CartItem{{ItemID: item.ID, Qty: 1}},
	}, domain.SourceKasir)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if resp.Total != 30000 {
		t.Fatalf("expected total 30000, got %d", resp.Total)
	}
	if got := mustMember(t, repo, "agt-siti").Saldo; got != 20000 {
		t.Fatalf("expected saldo 20000, got %d", got)
	}

	_, err = svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "saldo",
		MemberID:      "agt-siti",
		Items:         []domain.CartItem{{ItemID: item.ID, Qty: 1}},
	}, domain.SourceKasir)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := mustItem(t, repo, item.ID).Stok; got != 9 {
		t.Fatalf("expected failed sale to keep stock at 9, got %d", got)
	}
}

func TestCreditLimitExceededRollsBack(t *testing.T) {
	svc, repo := newTestService()
	// Seeded history gives siti 600.000 over six months: limit 150.000.
	setBalances(t, repo, "agt-siti", 0, 140000)

	limit, err := svc.MyCreditLimit(as(sitiActor))
	if err != nil {
		t.Fatalf("credit limit: %v", err)
	}
	if limit.Limit != 150000 || limit.Tersedia != 10000 || limit.RataRataBulan != 100000 {
		t.Fatalf("unexpected limit response %+v", limit)
	}

	_, err = svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "debt",
		MemberID:      "agt-siti",
		Items: []domain.CartItem{
			{ItemID: "brg-minyak", Qty: 1},
			{ItemID: "brg-sabun", Qty: 1},
		},
	}, domain.SourceKasir)
	if !errors.Is(err, store.ErrCreditLimitExceeded) {
		t.Fatalf("expected ErrCreditLimitExceeded, got %v", err)
	}

	member := mustMember(t, repo, "agt-siti")
	if member.Hutang != 140000 || member.SHU != 0 {
		t.Fatalf("expected balances untouched, got %+v", member)
	}
	if got := mustItem(t, repo, "brg-minyak").Stok; got != 50 {
		t.Fatalf("expected minyak stock untouched, got %d", got)
	}

	resp, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "hutang",
		MemberID:      "agt-siti",
		Items:         []domain.CartItem{{ItemID: "brg-sabun", Qty: 2}},
	}, domain.SourceKasir)
	if err != nil {
		t.Fatalf("expected 8000 to fit under the limit: %v", err)
	}
	if got := mustMember(t, repo, "agt-siti").Hutang; got != 140000+resp.Total {
		t.Fatalf("expected hutang %d, got %d", 140000+resp.Total, got)
	}
}

func TestHutangWithoutHistoryHasZeroLimit(t *testing.T) {
	svc, repo := newTestService()
	resp, err := svc.CreateUser(as(adminActor), domain.UserCreateRequest{
		Username: "citra", Password: "rahasia1", Role: domain.RoleAnggota, Nama: "Citra",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	_, err = svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "hutang",
		MemberID:      resp.Member.ID,
		Items:         []domain.CartItem{{ItemID: "brg-kopi", Qty: 1}},
	}, domain.SourceKasir)
	if !errors.Is(err, store.ErrCreditLimitExceeded) {
		t.Fatalf("expected ErrCreditLimitExceeded, got %v", err)
	}
	if got := mustItem(t, repo, "brg-kopi").Stok; got != 150 {
		t.Fatalf("expected kopi stock untouched, got %d", got)
	}
}

func TestCashierSaleCreditsSixtyPercentSHU(t *testing.T) {
	svc, repo := newTestService()

	item, err := svc.CreateItem(as(adminActor), domain.ItemCreateRequest{
		Kode: "GANJIL", Nama: "Barang Ganjil", Stok: 5, HargaBeli: 1000, HargaJual: 1333,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	before := mustMember(t, repo, "agt-budi")
	resp, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "cash",
		MemberID:      "agt-budi",
		Items:         []domain.CartItem{{ItemID: item.ID, Qty: 1}},
	}, domain.SourceKasir)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if resp.TotalProfit != 333 {
		t.Fatalf("expected profit 333, got %d", resp.TotalProfit)
	}

	after := mustMember(t, repo, "agt-budi")
	if after.SHU != before.SHU+199 {
		t.Fatalf("expected shu to grow by floor(0.6*333)=199, got %d -> %d", before.SHU, after.SHU)
	}

	shu, err := svc.MySHU(as(budiActor))
	if err != nil {
		t.Fatalf("my shu: %v", err)
	}
	if len(shu.Distributions) != 1 {
		t.Fatalf("expected one distribution row, got %d", len(shu.Distributions))
	}
	dist := shu.Distributions[0]
	if dist.MemberPart != 199 || dist.ReservePart != 99 || dist.OtherPart != 35 {
		t.Fatalf("unexpected split %+v", dist)
	}
	if dist.MemberPart+dist.ReservePart+dist.OtherPart != dist.TotalProfit {
		t.Fatalf("split does not sum to profit: %+v", dist)
	}
	// Reserve and other parts are audit figures only; no live balance holds them.
	totals, _ := repo.MemberTotals(context.Background())
	if totals.SHU != 199 {
		t.Fatalf("expected only the member part in live balances, got %d", totals.SHU)
	}
}

func TestBelowCostSaleRecordsLossWithoutSHU(t *testing.T) {
	svc, repo := newTestService()

	item, err := svc.CreateItem(as(adminActor), domain.ItemCreateRequest{
		Kode: "OBRAL", Nama: "Barang Obral", Stok: 5, HargaBeli: 5000, HargaJual: 4000,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	before := mustMember(t, repo, "agt-budi")
	resp, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "cash",
		MemberID:      "agt-budi",
		Items:         []domain.CartItem{{ItemID: item.ID, Qty: 1}},
	}, domain.SourceKasir)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if resp.TotalProfit != -1000 {
		t.Fatalf("expected profit -1000, got %d", resp.TotalProfit)
	}
	if got := mustMember(t, repo, "agt-budi").SHU; got != before.SHU {
		t.Fatalf("expected shu unchanged at %d, got %d", before.SHU, got)
	}

	dists, _ := repo.ListSHUDistributions(context.Background(), "agt-budi")
	if len(dists) != 1 {
		t.Fatalf("expected one distribution row, got %d", len(dists))
	}
	dist := dists[0]
	if dist.TotalProfit != resp.TotalProfit {
		t.Fatalf("expected row to carry transaction profit %d, got %d", resp.TotalProfit, dist.TotalProfit)
	}
	if dist.MemberPart != 0 || dist.ReservePart != 0 || dist.OtherPart != 0 {
		t.Fatalf("expected zero parts for a loss, got %+v", dist)
	}
}

func TestWalkInSaleCreditsNoSHU(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "transfer",
		Items:         []domain.CartItem{{ItemID: "brg-teh", Qty: 2}},
	}, domain.SourceKasir)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	dists, _ := repo.ListSHUDistributions(context.Background(), "")
	if len(dists) != 0 {
		t.Fatalf("expected no shu rows for a walk-in, got %d", len(dists))
	}
}

func TestOverflowingCartQuantityRejected(t *testing.T) {
	svc, repo := newTestService()
	before := mustMember(t, repo, "agt-siti")

	carts := map[string][]domain.CartItem{
		"merged max int": {{ItemID: "brg-beras", Qty: math.MaxInt}, {ItemID: "brg-beras", Qty: math.MaxInt}},
		"single max int": {{ItemID: "brg-beras", Qty: math.MaxInt}},
		"merged above bound": {
			{ItemID: "brg-beras", Qty: maxLineQty},
			{ItemID: "brg-beras", Qty: 1},
		},
	}
	for name, items := range carts {
		_, err := svc.PostTransaction(as(sitiActor), domain.TransactionRequest{
			PaymentMethod: "saldo",
			Items:         items,
		}, domain.SourceAnggota)
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}

	if got := mustItem(t, repo, "brg-beras").Stok; got != 40 {
		t.Fatalf("expected beras stock to stay 40, got %d", got)
	}
	after := mustMember(t, repo, "agt-siti")
	if after.Saldo != before.Saldo || after.Hutang != before.Hutang {
		t.Fatalf("expected balances unchanged, got saldo %d hutang %d", after.Saldo, after.Hutang)
	}
	mine, err := svc.MyTransactions(as(sitiActor), 50)
	if err != nil {
		t.Fatalf("my transactions: %v", err)
	}
	for _, trx := range mine {
		if trx.Status == domain.TxStatusPending {
			t.Fatalf("expected no pending transaction, got %s", trx.ID)
		}
	}
}

func TestCreditLimitCountsSalesStampedByServiceClock(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, nil, nil, Options{Now: func() time.Time { return time.Now().Add(3 * time.Hour) }})

	before, err := svc.MemberCreditLimit(as(kasirActor), "agt-budi")
	if err != nil {
		t.Fatalf("limit before: %v", err)
	}
	resp, err := svc.PostTransaction(as(kasirActor), domain.TransactionRequest{
		PaymentMethod: "cash",
		MemberID:      "agt-budi",
		Items:         []domain.CartItem{{ItemID: "brg-beras", Qty: 1}},
	}, domain.SourceKasir)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	after, err := svc.MemberCreditLimit(as(kasirActor), "agt-budi")
	if err != nil {
		t.Fatalf("limit after: %v", err)
	}
	if after.BelanjaEnamBln != before.BelanjaEnamBln+resp.Total {
		t.Fatalf("expected six-month spend %d, got %d", before.BelanjaEnamBln+resp.Total, after.BelanjaEnamBln)
	}
}

func TestPostValidation(t *testing.T) {
	svc, _ := newTestService()

	cases := []struct {
		name string
		req  domain.TransactionRequest
		want error
	}{
		{"empty cart", domain.TransactionRequest{PaymentMethod: "cash"}, store.ErrValidation},
		{"zero qty", domain.TransactionRequest{PaymentMethod: "cash", Items: []domain.CartItem{{ItemID: "brg-mie", Qty: 0}}}, store.ErrValidation},
		{"unknown method", domain.TransactionRequest{PaymentMethod: "cheque", Items: []domain.CartItem{{ItemID: "brg-mie", Qty: 1}}}, store.ErrValidation},
		{"saldo without member", domain.TransactionRequest{PaymentMethod: "saldo", Items: []domain.CartItem{{ItemID: "brg-mie", Qty: 1}}}, store.ErrValidation},
		{"unknown item", domain.TransactionRequest{PaymentMethod: "cash", Items: []domain.CartItem{{ItemID: "brg-nope", Qty: 1}}}, store.ErrNotFound},
		{"unknown member", domain.TransactionRequest{PaymentMethod: "cash", MemberID: "agt-nope", Items: []domain.CartItem{{ItemID: "brg-mie", Qty: 1}}}, store.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PostTransaction(as(kasirActor), tc.req, domain.SourceKasir)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	_, err := svc.PostTransaction(as(sitiActor), domain.TransactionRequest{
		PaymentMethod: "cash", Items: []domain.CartItem{{ItemID: "brg-mie", Qty: 1}},
	}, domain.SourceKasir)
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected anggota to be forbidden from the cashier flow, got %v", err)
	}
}

func TestSelfServicePendingThenComplete(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.PostTransaction(as(sitiActor), domain.TransactionRequest{
		PaymentMethod: "saldo",
		MemberID:      "agt-budi",
		Items:         []domain.CartItem{{ItemID: "brg-gula", Qty: 2}},
	}, domain.SourceAnggota)
	if err != nil {
		t.Fatalf("self-service post failed: %v", err)
	}
	if resp.Status != domain.TxStatusPending {
		t.Fatalf("expected pending, got %s", resp.Status)
	}

	trx, err := svc.GetTransaction(as(sitiActor), resp.TransactionID)
	if err != nil {
		t.Fatalf("own transaction should be visible: %v", err)
	}
	if trx.MemberID != "agt-siti" {
		t.Fatalf("expected self-service to bind to own member, got %s", trx.MemberID)
	}
	if _, err := svc.GetTransaction(as(budiActor), resp.TransactionID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected other member to get not found, got %v", err)
	}

	siti := mustMember(t, repo, "agt-siti")
	if siti.Saldo != 50000-30000 || siti.SHU != 0 {
		t.Fatalf("expected saldo reserved and no shu yet, got %+v", siti)
	}
	if got := mustItem(t, repo, "brg-gula").Stok; got != 58 {
		t.Fatalf("expected stock reserved at 58, got %d", got)
	}

	done, err := svc.CompleteTransaction(as(kasirActor), resp.TransactionID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.Status != domain.TxStatusSelesai || done.CashierID != kasirActor.UserID {
		t.Fatalf("unexpected completed transaction %+v", done)
	}
	if got := mustMember(t, repo, "agt-siti").SHU; got != 1800 {
		t.Fatalf("expected shu 1800 (60%% of 3000), got %d", got)
	}

	if _, err := svc.CompleteTransaction(as(kasirActor), resp.TransactionID); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on second completion, got %v", err)
	}
	if _, err := svc.CancelTransaction(as(kasirActor), resp.TransactionID); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on cancel after completion, got %v", err)
	}
	if got := mustMember(t, repo, "agt-siti").SHU; got != 1800 {
		t.Fatalf("expected shu unchanged after rejected transitions, got %d", got)
	}
}

func TestSelfServiceCancelRestoresStockAndFunds(t *testing.T) {
	svc, repo := newTestService()
	setBalances(t, repo, "agt-siti", 50000, 10000)

	saldoResp, err := svc.PostTransaction(as(sitiActor), domain.TransactionRequest{
		PaymentMethod: "saldo",
		Items:         []domain.CartItem{{ItemID: "brg-telur", Qty: 1}},
	}, domain.SourceAnggota)
	if err != nil {
		t.Fatalf("saldo post failed: %v", err)
	}
	hutangResp, err := svc.PostTransaction(as(sitiActor), domain.TransactionRequest{
		PaymentMethod: "hutang",
		Items:         []domain.CartItem{{ItemID: "brg-telur", Qty: 2}},
	}, domain.SourceAnggota)
	if err != nil {
		t.Fatalf("hutang post failed: %v", err)
	}

	mid := mustMember(t, repo, "agt-siti")
	if mid.Saldo != 23000 || mid.Hutang != 64000 {
		t.Fatalf("expected reserved balances 23000/64000, got %+v", mid)
	}

	for _, id := range []string{saldoResp.TransactionID, hutangResp.TransactionID} {
		trx, err := svc.CancelTransaction(as(kasirActor), id)
		if err != nil {
			t.Fatalf("cancel %s: %v", id, err)
		}
		if trx.Status != domain.TxStatusBatal {
			t.Fatalf("expected batal, got %s", trx.Status)
		}
	}

	after := mustMember(t, repo, "agt-siti")
	if after.Saldo != 50000 || after.Hutang != 10000 || after.SHU != 0 {
		t.Fatalf("expected balances restored, got %+v", after)
	}
	if got := mustItem(t, repo, "brg-telur").Stok; got != 30 {
		t.Fatalf("expected telur stock restored to 30, got %d", got)
	}
}

func TestTopupApprovedExactlyOnce(t *testing.T) {
	svc, repo := newTestService()

	req, err := svc.RequestTopup(as(sitiActor), domain.BalanceRequestCreate{Amount: 25000, Method: "transfer"})
	if err != nil {
		t.Fatalf("topup request: %v", err)
	}
	if req.Status != domain.RequestPending || req.MemberID != "agt-siti" {
		t.Fatalf("unexpected request %+v", req)
	}
	if got := mustMember(t, repo, "agt-siti").Saldo; got != 50000 {
		t.Fatalf("pending topup must not move saldo, got %d", got)
	}

	approved, err := svc.ApproveRequest(as(kasirActor), req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.RequestApproved || approved.ProcessedBy != kasirActor.UserID || approved.ProcessedAt == nil {
		t.Fatalf("unexpected approved request %+v", approved)
	}
	if got := mustMember(t, repo, "agt-siti").Saldo; got != 75000 {
		t.Fatalf("expected saldo 75000, got %d", got)
	}

	if _, err := svc.ApproveRequest(as(adminActor), req.ID); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on second approval, got %v", err)
	}
	if _, err := svc.RejectRequest(as(adminActor), req.ID); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on reject after approval, got %v", err)
	}
	if got := mustMember(t, repo, "agt-siti").Saldo; got != 75000 {
		t.Fatalf("expected saldo to stay 75000, got %d", got)
	}
}

func TestDebtPaymentFlow(t *testing.T) {
	svc, repo := newTestService()
	setBalances(t, repo, "agt-siti", 50000, 40000)

	if _, err := svc.RequestDebtPayment(as(sitiActor), domain.BalanceRequestCreate{Amount: 45000}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for nominal above hutang, got %v", err)
	}
	if _, err := svc.RequestDebtPayment(as(sitiActor), domain.BalanceRequestCreate{Amount: 0}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero nominal, got %v", err)
	}

	cash, err := svc.RequestDebtPayment(as(sitiActor), domain.BalanceRequestCreate{Amount: 15000, Method: "cash"})
	if err != nil {
		t.Fatalf("cash debt payment: %v", err)
	}
	fromSaldo, err := svc.RequestDebtPayment(as(sitiActor), domain.BalanceRequestCreate{Amount: 20000, Method: "saldo"})
	if err != nil {
		t.Fatalf("saldo debt payment: %v", err)
	}

	if _, err := svc.ApproveRequest(as(adminActor), cash.ID); err != nil {
		t.Fatalf("approve cash payment: %v", err)
	}
	member := mustMember(t, repo, "agt-siti")
	if member.Hutang != 25000 || member.Saldo != 50000 {
		t.Fatalf("cash payment should only lower hutang, got %+v", member)
	}

	if _, err := svc.ApproveRequest(as(adminActor), fromSaldo.ID); err != nil {
		t.Fatalf("approve saldo payment: %v", err)
	}
	member = mustMember(t, repo, "agt-siti")
	if member.Hutang != 5000 || member.Saldo != 30000 {
		t.Fatalf("saldo payment should lower hutang and saldo, got %+v", member)
	}
}

func TestDebtPaymentAboveCurrentHutangStaysPending(t *testing.T) {
	svc, repo := newTestService()
	setBalances(t, repo, "agt-siti", 0, 30000)

	first, _ := svc.RequestDebtPayment(as(sitiActor), domain.BalanceRequestCreate{Amount: 20000})
	second, _ := svc.RequestDebtPayment(as(sitiActor), domain.BalanceRequestCreate{Amount: 20000})

	if _, err := svc.ApproveRequest(as(adminActor), first.ID); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	if _, err := svc.ApproveRequest(as(adminActor), second.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation once hutang dropped below nominal, got %v", err)
	}

	stored, _ := repo.GetRequest(context.Background(), second.ID)
	if stored.Status != domain.RequestPending {
		t.Fatalf("expected request to stay pending, got %s", stored.Status)
	}
	if got := mustMember(t, repo, "agt-siti").Hutang; got != 10000 {
		t.Fatalf("expected hutang 10000, got %d", got)
	}
}

func TestSetoranDecidedByAdminOnly(t *testing.T) {
	svc, repo := newTestService()

	req, err := svc.RequestSetoran(as(kasirActor), domain.BalanceRequestCreate{Amount: 120000, Notes: "shift pagi"})
	if err != nil {
		t.Fatalf("setoran: %v", err)
	}
	if _, err := svc.ApproveRequest(as(kasirActor), req.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected kasir to be forbidden, got %v", err)
	}
	if _, err := svc.ApproveRequest(as(adminActor), req.ID); err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	kas, _ := repo.CashBalance(context.Background())
	if kas != 120000 {
		t.Fatalf("expected kas koperasi 120000, got %d", kas)
	}
}

func TestRejectLeavesBalancesAlone(t *testing.T) {
	svc, repo := newTestService()

	req, _ := svc.RequestTopup(as(budiActor), domain.BalanceRequestCreate{Amount: 10000})
	rejected, err := svc.RejectRequest(as(adminActor), req.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.RequestRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if got := mustMember(t, repo, "agt-budi").Saldo; got != 0 {
		t.Fatalf("expected saldo untouched, got %d", got)
	}
}

func TestStockOpnameRecordsDifferenceOnly(t *testing.T) {
	svc, repo := newTestService()

	opname, err := svc.StockOpname(as(kasirActor), domain.StockOpnameRequest{
		Notes: "opname bulanan",
		Items: []domain.StockOpnameItem{
			{ItemID: "brg-beras", PhysicalQty: 38},
			{ItemID: "brg-sabun", PhysicalQty: 6},
		},
	})
	if err != nil {
		t.Fatalf("opname: %v", err)
	}
	if len(opname.Lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(opname.Lines))
	}
	if opname.Lines[0].Difference != -2 || opname.Lines[1].Difference != 2 {
		t.Fatalf("unexpected selisih %+v", opname.Lines)
	}
	if got := mustItem(t, repo, "brg-beras").Stok; got != 40 {
		t.Fatalf("opname must not change stock, got %d", got)
	}

	if _, err := svc.StockOpname(as(kasirActor), domain.StockOpnameRequest{
		Items: []domain.StockOpnameItem{{ItemID: "brg-beras", PhysicalQty: -1}},
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative count, got %v", err)
	}
	if _, err := svc.StockOpname(as(sitiActor), domain.StockOpnameRequest{
		Items: []domain.StockOpnameItem{{ItemID: "brg-beras", PhysicalQty: 1}},
	}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected anggota to be forbidden, got %v", err)
	}

	list, _ := svc.ListOpnames(as(adminActor), 10)
	if len(list) != 1 || list[0].ID != opname.ID {
		t.Fatalf("expected the recorded opname in the list, got %+v", list)
	}
}

func TestCreateUserAnggotaCreatesMember(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.CreateUser(as(adminActor), domain.UserCreateRequest{
		Username: " Dewi ", Password: "rahasia1", Role: "anggota", Nama: "Dewi Lestari",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if resp.User.Username != "dewi" || resp.Member == nil {
		t.Fatalf("expected lower-cased username and a member, got %+v", resp)
	}
	member, err := repo.GetMemberByUserID(context.Background(), resp.User.ID)
	if err != nil || member.Nama != "Dewi Lestari" {
		t.Fatalf("expected stored member, got %+v err=%v", member, err)
	}

	invalid := []domain.UserCreateRequest{
		{Username: "abc", Password: "rahasia1", Role: "kasir"},
		{Username: "with space", Password: "rahasia1", Role: "kasir"},
		{Username: "kasir2", Password: "123", Role: "kasir"},
		{Username: "kasir2", Password: "rahasia1", Role: "owner"},
		{Username: "dewi", Password: "rahasia1", Role: "kasir"},
	}
	for _, req := range invalid {
		if _, err := svc.CreateUser(as(adminActor), req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", req, err)
		}
	}
	if _, err := svc.CreateUser(as(kasirActor), domain.UserCreateRequest{Username: "kasir3", Password: "rahasia1", Role: "kasir"}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected kasir to be forbidden, got %v", err)
	}
}

func TestUpdateItemRestock(t *testing.T) {
	svc, repo := newTestService()
	add := 10
	price := int64(4500)

	item, err := svc.UpdateItem(as(adminActor), "brg-sabun", domain.ItemUpdateRequest{TambahStok: &add, HargaJual: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if item.Stok != 14 || item.HargaJual != 4500 {
		t.Fatalf("unexpected item %+v", item)
	}
	if got := mustItem(t, repo, "brg-sabun").Stok; got != 14 {
		t.Fatalf("expected stored stock 14, got %d", got)
	}

	negative := -1
	if _, err := svc.UpdateItem(as(adminActor), "brg-sabun", domain.ItemUpdateRequest{TambahStok: &negative}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := svc.UpdateItem(as(adminActor), "brg-nope", domain.ItemUpdateRequest{TambahStok: &add}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNormalizePaymentMethodAliases(t *testing.T) {
	cases := map[string]string{
		"cash":     domain.PaymentCash,
		" QR ":     domain.PaymentQRIS,
		"qris":     domain.PaymentQRIS,
		"balance":  domain.PaymentSaldo,
		"debt":     domain.PaymentHutang,
		"ewallet":  domain.PaymentEwallet,
		"Transfer": domain.PaymentTransfer,
	}
	for in, want := range cases {
		got, err := NormalizePaymentMethod(in)
		if err != nil || got != want {
			t.Fatalf("NormalizePaymentMethod(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := NormalizePaymentMethod("card"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for card, got %v", err)
	}
}
