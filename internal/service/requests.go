package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
	"koperasi/backend/internal/xid"
)

var requestMethods = map[string][]string{
	domain.RequestTopup:       {domain.PaymentCash, domain.PaymentTransfer, domain.PaymentQRIS, domain.PaymentEwallet},
	domain.RequestBayarHutang: {domain.PaymentCash, domain.PaymentTransfer, domain.PaymentSaldo},
	domain.RequestSetoran:     {domain.PaymentCash, domain.PaymentTransfer},
}

// RequestTopup files a pending saldo top-up for the calling anggota.
func (s *Service) RequestTopup(ctx context.Context, req domain.BalanceRequestCreate) (domain.BalanceRequest, error) {
	return s.createMemberRequest(ctx, domain.RequestTopup, req)
}

// RequestDebtPayment files a pending hutang payment. The amount may not exceed
// the hutang outstanding right now.
func (s *Service) RequestDebtPayment(ctx context.Context, req domain.BalanceRequestCreate) (domain.BalanceRequest, error) {
	return s.createMemberRequest(ctx, domain.RequestBayarHutang, req)
}

func (s *Service) createMemberRequest(ctx context.Context, kind string, req domain.BalanceRequestCreate) (domain.BalanceRequest, error) {
	actor, err := requireActor(ctx, domain.RoleAnggota)
	if err != nil {
		return domain.BalanceRequest{}, err
	}
	method, err := validateRequest(kind, req)
	if err != nil {
		return domain.BalanceRequest{}, err
	}

	created := domain.BalanceRequest{
		ID:          xid.New("pgj"),
		Kind:        kind,
		RequestedBy: actor.UserID,
		Amount:      req.Amount,
		Method:      method,
		Notes:       strings.TrimSpace(req.Notes),
		Status:      domain.RequestPending,
		CreatedAt:   s.now().UTC(),
	}
	err = s.withinTx(ctx, func(tx store.Tx) error {
		member, err := ownMember(ctx, tx, actor)
		if err != nil {
			return err
		}
		if kind == domain.RequestBayarHutang && req.Amount > member.Hutang {
			return fmt.Errorf("%w: nominal %d exceeds hutang %d", store.ErrValidation, req.Amount, member.Hutang)
		}
		created.MemberID = member.ID
		return tx.InsertRequest(ctx, created)
	})
	if err != nil {
		return domain.BalanceRequest{}, err
	}

	s.log.Info("pengajuan created", zap.String("pengajuan_id", created.ID), zap.String("jenis", kind), zap.Int64("nominal", created.Amount))
	return created, nil
}

// RequestSetoran files a pending cash deposit from a cashier into kas koperasi.
func (s *Service) RequestSetoran(ctx context.Context, req domain.BalanceRequestCreate) (domain.BalanceRequest, error) {
	actor, err := requireActor(ctx, domain.RoleKasir, domain.RoleAdmin)
	if err != nil {
		return domain.BalanceRequest{}, err
	}
	method, err := validateRequest(domain.RequestSetoran, req)
	if err != nil {
		return domain.BalanceRequest{}, err
	}

	created := domain.BalanceRequest{
		ID:          xid.New("pgj"),
		Kind:        domain.RequestSetoran,
		RequestedBy: actor.UserID,
		Amount:      req.Amount,
		Method:      method,
		Notes:       strings.TrimSpace(req.Notes),
		Status:      domain.RequestPending,
		CreatedAt:   s.now().UTC(),
	}
	err = s.withinTx(ctx, func(tx store.Tx) error {
		return tx.InsertRequest(ctx, created)
	})
	if err != nil {
		return domain.BalanceRequest{}, err
	}

	s.log.Info("setoran created", zap.String("pengajuan_id", created.ID), zap.Int64("nominal", created.Amount), zap.String("by", actor.Username))
	return created, nil
}

func (s *Service) ListRequests(ctx context.Context, filter domain.BalanceRequestFilter) ([]domain.BalanceRequest, error) {
	if _, err := requireActor(ctx, domain.RoleAdmin, domain.RoleKasir); err != nil {
		return nil, err
	}
	if filter.Kind != "" && requestMethods[filter.Kind] == nil {
		return nil, fmt.Errorf("%w: unknown jenis %q", store.ErrValidation, filter.Kind)
	}
	return s.repo.ListRequests(ctx, filter)
}

func (s *Service) MyRequests(ctx context.Context) ([]domain.BalanceRequest, error) {
	member, err := s.MyMember(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRequests(ctx, domain.BalanceRequestFilter{MemberID: member.ID})
}

// ApproveRequest applies a pending request's effect exactly once.
func (s *Service) ApproveRequest(ctx context.Context, id string) (domain.BalanceRequest, error) {
	return s.decideRequest(ctx, id, true)
}

// RejectRequest closes a pending request without touching any balance.
func (s *Service) RejectRequest(ctx context.Context, id string) (domain.BalanceRequest, error) {
	return s.decideRequest(ctx, id, false)
}

func (s *Service) decideRequest(ctx context.Context, id string, approve bool) (domain.BalanceRequest, error) {
	actor, err := requireActor(ctx, domain.RoleAdmin, domain.RoleKasir)
	if err != nil {
		return domain.BalanceRequest{}, err
	}

	var decided domain.BalanceRequest
	err = s.withinTx(ctx, func(tx store.Tx) error {
		req, err := tx.LockRequest(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if actor.Role == domain.RoleKasir && req.Kind == domain.RequestSetoran {
			return fmt.Errorf("%w: setoran is decided by admin", store.ErrForbidden)
		}
		if req.Status != domain.RequestPending {
			return fmt.Errorf("%w: pengajuan %s is %s", store.ErrAlreadyProcessed, req.ID, req.Status)
		}

		now := s.now().UTC()
		req.ProcessedBy = actor.UserID
		req.ProcessedAt = &now
		req.Status = domain.RequestRejected
		if approve {
			req.Status = domain.RequestApproved
			if err := applyRequest(ctx, tx, *req); err != nil {
				return err
			}
		}

		decided = *req
		return tx.UpdateRequest(ctx, *req)
	})
	if err != nil {
		return domain.BalanceRequest{}, err
	}

	s.log.Info("pengajuan decided",
		zap.String("pengajuan_id", decided.ID),
		zap.String("jenis", decided.Kind),
		zap.String("status", decided.Status),
		zap.String("by", actor.Username),
	)
	return decided, nil
}

func applyRequest(ctx context.Context, tx store.Tx, req domain.BalanceRequest) error {
	if req.Kind == domain.RequestSetoran {
		return tx.CreditCash(ctx, req.Amount)
	}

	member, err := tx.LockMember(ctx, req.MemberID)
	if err != nil {
		return err
	}
	switch req.Kind {
	case domain.RequestTopup:
		member.Saldo += req.Amount
	case domain.RequestBayarHutang:
		if req.Amount > member.Hutang {
			return fmt.Errorf("%w: nominal %d exceeds hutang %d", store.ErrValidation, req.Amount, member.Hutang)
		}
		if req.Method == domain.PaymentSaldo {
			if member.Saldo < req.Amount {
				return fmt.Errorf("%w: saldo %d, nominal %d", store.ErrInsufficientFunds, member.Saldo, req.Amount)
			}
			member.Saldo -= req.Amount
		}
		member.Hutang -= req.Amount
	default:
		return fmt.Errorf("%w: unknown jenis %q", store.ErrValidation, req.Kind)
	}
	return tx.SaveMemberBalances(ctx, *member)
}

func validateRequest(kind string, req domain.BalanceRequestCreate) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("%w: nominal must be positive", store.ErrValidation)
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		return domain.PaymentCash, nil
	}
	if method == "balance" {
		method = domain.PaymentSaldo
	}
	if !slices.Contains(requestMethods[kind], method) {
		return "", fmt.Errorf("%w: metode %q not allowed for %s", store.ErrValidation, req.Method, kind)
	}
	return method, nil
}
