package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
	"koperasi/backend/internal/xid"
)

// StockOpname records physical counts against system stock. It never changes
// item stock; reconciliation is a separate manual step.
func (s *Service) StockOpname(ctx context.Context, req domain.StockOpnameRequest) (domain.StockOpname, error) {
	actor, err := requireActor(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return domain.StockOpname{}, err
	}
	if len(req.Items) == 0 {
		return domain.StockOpname{}, fmt.Errorf("%w: opname needs at least one item", store.ErrValidation)
	}

	ids := make([]string, 0, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for i, item := range req.Items {
		id := strings.TrimSpace(item.ItemID)
		if id == "" || item.PhysicalQty < 0 {
			return domain.StockOpname{}, fmt.Errorf("%w: barang_id and non-negative stok_fisik required", store.ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return domain.StockOpname{}, fmt.Errorf("%w: barang %s counted twice", store.ErrValidation, id)
		}
		seen[id] = struct{}{}
		req.Items[i].ItemID = id
		ids = append(ids, id)
	}

	opname := domain.StockOpname{
		ID:        xid.New("opn"),
		CashierID: actor.UserID,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: s.now().UTC(),
		Lines:     make([]domain.StockOpnameLine, 0, len(req.Items)),
	}
	err = s.withinTx(ctx, func(tx store.Tx) error {
		items, err := tx.LockItems(ctx, ids)
		if err != nil {
			return err
		}
		for _, counted := range req.Items {
			item, ok := items[counted.ItemID]
			if !ok {
				return fmt.Errorf("%w: barang %s", store.ErrNotFound, counted.ItemID)
			}
			opname.Lines = append(opname.Lines, domain.StockOpnameLine{
				ItemID:      item.ID,
				ItemName:    item.Nama,
				SystemStock: item.Stok,
				PhysicalQty: counted.PhysicalQty,
				Difference:  counted.PhysicalQty - item.Stok,
			})
		}
		return tx.InsertOpname(ctx, opname)
	})
	if err != nil {
		return domain.StockOpname{}, err
	}

	s.log.Info("stok opname recorded", zap.String("opname_id", opname.ID), zap.Int("items", len(opname.Lines)), zap.String("by", actor.Username))
	return opname, nil
}

func (s *Service) ListOpnames(ctx context.Context, limit int) ([]domain.StockOpname, error) {
	if _, err := requireActor(ctx, domain.RoleKasir, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListOpnames(ctx, limit)
}
