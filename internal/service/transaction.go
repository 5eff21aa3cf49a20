package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/finance"
	"koperasi/backend/internal/store"
	"koperasi/backend/internal/xid"
)

// maxLineQty bounds the quantity of a single cart line after merging.
const maxLineQty = 1_000_000

var paymentAliases = map[string]string{
	domain.PaymentCash:     domain.PaymentCash,
	domain.PaymentTransfer: domain.PaymentTransfer,
	domain.PaymentQRIS:     domain.PaymentQRIS,
	"qr":                   domain.PaymentQRIS,
	domain.PaymentEwallet:  domain.PaymentEwallet,
	"e-wallet":             domain.PaymentEwallet,
	domain.PaymentSaldo:    domain.PaymentSaldo,
	"balance":              domain.PaymentSaldo,
	domain.PaymentHutang:   domain.PaymentHutang,
	"debt":                 domain.PaymentHutang,
}

// NormalizePaymentMethod maps a client payment method, aliases included, to
// its canonical name.
func NormalizePaymentMethod(method string) (string, error) {
	canonical, ok := paymentAliases[strings.ToLower(strings.TrimSpace(method))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported metode_pembayaran %q", store.ErrValidation, method)
	}
	return canonical, nil
}

func needsMember(method string) bool {
	return method == domain.PaymentSaldo || method == domain.PaymentHutang
}

// PostTransaction validates a cart and books it in one unit of work: stock is
// decremented, saldo or hutang is charged, the transaction and its lines are
// stored and, for a completed member sale, SHU is credited. Cashier postings
// complete immediately; member self-service postings stay pending until a
// cashier completes or cancels them.
func (s *Service) PostTransaction(ctx context.Context, req domain.TransactionRequest, source string) (domain.TransactionResponse, error) {
	trx, err := s.postTransaction(ctx, req, source)
	if err != nil {
		s.metrics.failed.WithLabelValues(failureReason(err)).Inc()
		s.log.Info("transaksi rejected", zap.String("source", source), zap.String("reason", failureReason(err)), zap.Error(err))
		return domain.TransactionResponse{}, err
	}

	s.metrics.posted.WithLabelValues(trx.Source, trx.PaymentMethod).Inc()
	s.log.Info("transaksi posted",
		zap.String("transaksi_id", trx.ID),
		zap.String("source", trx.Source),
		zap.String("metode", trx.PaymentMethod),
		zap.String("status", trx.Status),
		zap.Int64("total", trx.Total),
	)

	return domain.TransactionResponse{
		Success:       true,
		TransactionID: trx.ID,
		Status:        trx.Status,
		Total:         trx.Total,
		TotalProfit:   trx.TotalProfit,
	}, nil
}

func (s *Service) postTransaction(ctx context.Context, req domain.TransactionRequest, source string) (*domain.Transaction, error) {
	var (
		actor domain.Actor
		err   error
	)
	switch source {
	case domain.SourceKasir:
		actor, err = requireActor(ctx, domain.RoleKasir, domain.RoleAdmin)
	case domain.SourceAnggota:
		actor, err = requireActor(ctx, domain.RoleAnggota)
	default:
		err = fmt.Errorf("%w: unknown source %q", store.ErrValidation, source)
	}
	if err != nil {
		return nil, err
	}

	cart, err := normalizeCart(req.Items)
	if err != nil {
		return nil, err
	}
	method, err := NormalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	memberID := strings.TrimSpace(req.MemberID)
	if source == domain.SourceKasir && needsMember(method) && memberID == "" {
		return nil, fmt.Errorf("%w: metode %s requires anggota_id", store.ErrValidation, method)
	}

	now := s.now().UTC()
	trx := domain.Transaction{
		ID:            xid.New("trx"),
		PaymentMethod: method,
		Source:        source,
		Status:        domain.TxStatusPending,
		CreatedAt:     now,
	}
	if source == domain.SourceKasir {
		trx.Status = domain.TxStatusSelesai
		trx.CashierID = actor.UserID
		trx.CompletedAt = &now
	}

	err = s.withinTx(ctx, func(tx store.Tx) error {
		var (
			member *domain.Member
			err    error
		)
		switch {
		case source == domain.SourceAnggota:
			member, err = ownMember(ctx, tx, actor)
		case memberID != "":
			member, err = tx.LockMember(ctx, memberID)
			if errors.Is(err, store.ErrNotFound) {
				err = fmt.Errorf("%w: anggota %s", store.ErrNotFound, memberID)
			}
		}
		if err != nil {
			return err
		}
		if member != nil {
			trx.MemberID = member.ID
		}

		ids := make([]string, 0, len(cart))
		for _, c := range cart {
			ids = append(ids, c.ItemID)
		}
		items, err := tx.LockItems(ctx, ids)
		if err != nil {
			return err
		}

		trx.Lines = make([]domain.TransactionLine, 0, len(cart))
		for _, c := range cart {
			item, ok := items[c.ItemID]
			if !ok {
				return fmt.Errorf("%w: barang %s", store.ErrNotFound, c.ItemID)
			}
			if c.Qty > item.Stok {
				return fmt.Errorf("%w: %s stok %d, diminta %d", store.ErrOutOfStock, item.Nama, item.Stok, c.Qty)
			}

			if price := max(item.HargaJual, item.HargaBeli); price > 0 && int64(c.Qty) > math.MaxInt64/price {
				return fmt.Errorf("%w: subtotal for %s overflows", store.ErrValidation, item.Nama)
			}

			line := domain.TransactionLine{
				ItemID:    item.ID,
				ItemName:  item.Nama,
				Qty:       c.Qty,
				UnitPrice: item.HargaJual,
				UnitCost:  item.HargaBeli,
				Subtotal:  int64(c.Qty) * item.HargaJual,
				Profit:    int64(c.Qty) * (item.HargaJual - item.HargaBeli),
			}
			if trx.Total > math.MaxInt64-line.Subtotal {
				return fmt.Errorf("%w: transaction total overflows", store.ErrValidation)
			}
			trx.Lines = append(trx.Lines, line)
			trx.Total += line.Subtotal
			trx.TotalProfit += line.Profit

			if err := tx.AdjustStock(ctx, item.ID, -c.Qty); err != nil {
				return err
			}
		}

		switch method {
		case domain.PaymentSaldo:
			if member.Saldo < trx.Total {
				return fmt.Errorf("%w: saldo %d, total %d", store.ErrInsufficientFunds, member.Saldo, trx.Total)
			}
			member.Saldo -= trx.Total
		case domain.PaymentHutang:
			spend, err := tx.CompletedSpendSince(ctx, member.ID, finance.WindowStart(now))
			if err != nil {
				return err
			}
			limit := finance.CreditLimit(spend)
			if finance.ExceedsLimit(limit, member.Hutang, trx.Total) {
				return fmt.Errorf("%w: limit %d, hutang %d, total %d", store.ErrCreditLimitExceeded, limit, member.Hutang, trx.Total)
			}
			member.Hutang += trx.Total
		}

		if err := tx.InsertTransaction(ctx, trx); err != nil {
			return err
		}
		if member == nil {
			return nil
		}
		if trx.Status == domain.TxStatusSelesai {
			if err := creditSHU(ctx, tx, member, trx, now); err != nil {
				return err
			}
		}
		return tx.SaveMemberBalances(ctx, *member)
	})
	if err != nil {
		return nil, err
	}
	return &trx, nil
}

// CompleteTransaction moves a pending self-service transaction to selesai and
// credits the member's SHU in the same unit of work.
func (s *Service) CompleteTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	actor, err := requireActor(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return domain.Transaction{}, err
	}

	var done domain.Transaction
	err = s.withinTx(ctx, func(tx store.Tx) error {
		trx, err := lockPending(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		trx.Status = domain.TxStatusSelesai
		trx.CompletedAt = &now
		trx.CashierID = actor.UserID
		if err := tx.UpdateTransactionStatus(ctx, *trx); err != nil {
			return err
		}
		done = *trx

		if trx.MemberID == "" {
			return nil
		}
		member, err := tx.LockMember(ctx, trx.MemberID)
		if err != nil {
			return err
		}
		if err := creditSHU(ctx, tx, member, *trx, now); err != nil {
			return err
		}
		return tx.SaveMemberBalances(ctx, *member)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.log.Info("transaksi completed", zap.String("transaksi_id", done.ID), zap.String("by", actor.Username))
	return done, nil
}

// CancelTransaction moves a pending transaction to batal, returning the
// reserved stock and reversing the saldo or hutang charge.
func (s *Service) CancelTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	actor, err := requireActor(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return domain.Transaction{}, err
	}

	var cancelled domain.Transaction
	err = s.withinTx(ctx, func(tx store.Tx) error {
		trx, err := lockPending(ctx, tx, id)
		if err != nil {
			return err
		}

		for _, line := range trx.Lines {
			if err := tx.AdjustStock(ctx, line.ItemID, line.Qty); err != nil {
				return err
			}
		}

		trx.Status = domain.TxStatusBatal
		trx.CashierID = actor.UserID
		if err := tx.UpdateTransactionStatus(ctx, *trx); err != nil {
			return err
		}
		cancelled = *trx

		if trx.MemberID == "" || !needsMember(trx.PaymentMethod) {
			return nil
		}
		member, err := tx.LockMember(ctx, trx.MemberID)
		if err != nil {
			return err
		}
		switch trx.PaymentMethod {
		case domain.PaymentSaldo:
			member.Saldo += trx.Total
		case domain.PaymentHutang:
			// Debt paid off while the order was pending comes back as saldo.
			reversed := min(member.Hutang, trx.Total)
			member.Hutang -= reversed
			member.Saldo += trx.Total - reversed
		}
		return tx.SaveMemberBalances(ctx, *member)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.log.Info("transaksi cancelled", zap.String("transaksi_id", cancelled.ID), zap.String("by", actor.Username))
	return cancelled, nil
}

// GetTransaction returns one transaction. An anggota only sees their own;
// anything else reads as not found.
func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}

	trx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	if actor.Role == domain.RoleAnggota {
		member, err := s.repo.GetMemberByUserID(ctx, actor.UserID)
		if err != nil {
			return domain.Transaction{}, err
		}
		if trx.MemberID != member.ID {
			return domain.Transaction{}, store.ErrNotFound
		}
	}
	return *trx, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if _, err := requireActor(ctx, domain.RoleKasir, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if filter.Status != "" && !isTransactionStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrValidation, filter.Status)
	}
	return s.repo.ListTransactions(ctx, filter)
}

// MyTransactions lists the calling anggota's own history, newest first.
func (s *Service) MyTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	member, err := s.MyMember(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, domain.TransactionFilter{MemberID: member.ID, Limit: limit})
}

func lockPending(ctx context.Context, tx store.Tx, id string) (*domain.Transaction, error) {
	trx, err := tx.LockTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if trx.Status != domain.TxStatusPending {
		return nil, fmt.Errorf("%w: transaksi %s is %s", store.ErrAlreadyProcessed, trx.ID, trx.Status)
	}
	return trx, nil
}

// creditSHU splits the transaction profit, adds the member part to the live
// SHU balance and appends the audit row. Reserve and other parts are recorded
// only; no live balance holds them. A loss is recorded as-is with zero parts.
func creditSHU(ctx context.Context, tx store.Tx, member *domain.Member, trx domain.Transaction, at time.Time) error {
	split := finance.SplitSHU(trx.TotalProfit)
	member.SHU += split.Member

	return tx.InsertSHUDistribution(ctx, domain.SHUDistribution{
		ID:            xid.New("shu"),
		TransactionID: trx.ID,
		MemberID:      member.ID,
		Year:          at.Year(),
		TotalProfit:   trx.TotalProfit,
		MemberPart:    split.Member,
		ReservePart:   split.Reserve,
		OtherPart:     split.Other,
		CreatedAt:     at,
	})
}

// normalizeCart merges repeated barang ids, keeping first-seen order.
func normalizeCart(items []domain.CartItem) ([]domain.CartItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}

	index := make(map[string]int, len(items))
	merged := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ItemID)
		if id == "" {
			return nil, fmt.Errorf("%w: barang_id is required", store.ErrValidation)
		}
		if item.Qty <= 0 || item.Qty > maxLineQty {
			return nil, fmt.Errorf("%w: jumlah for %s must be between 1 and %d", store.ErrValidation, id, maxLineQty)
		}
		if i, seen := index[id]; seen {
			if item.Qty > maxLineQty-merged[i].Qty {
				return nil, fmt.Errorf("%w: jumlah for %s exceeds %d", store.ErrValidation, id, maxLineQty)
			}
			merged[i].Qty += item.Qty
			continue
		}
		index[id] = len(merged)
		merged = append(merged, domain.CartItem{ItemID: id, Qty: item.Qty})
	}
	return merged, nil
}

func isTransactionStatus(status string) bool {
	switch status {
	case domain.TxStatusPending, domain.TxStatusSelesai, domain.TxStatusBatal:
		return true
	}
	return false
}
