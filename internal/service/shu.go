package service

import (
	"context"
	"fmt"
	"strings"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/finance"
	"koperasi/backend/internal/store"
)

// MySHU returns the calling anggota's SHU balance with its distribution rows.
func (s *Service) MySHU(ctx context.Context) (domain.MemberSHUResponse, error) {
	member, err := s.MyMember(ctx)
	if err != nil {
		return domain.MemberSHUResponse{}, err
	}
	dists, err := s.repo.ListSHUDistributions(ctx, member.ID)
	if err != nil {
		return domain.MemberSHUResponse{}, err
	}
	return domain.MemberSHUResponse{SHU: member.SHU, Distributions: dists}, nil
}

// SHUReport totals the distribution rows per year. Year 0 reports every year.
func (s *Service) SHUReport(ctx context.Context, year int) ([]domain.SHUSummary, error) {
	if _, err := requireActor(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if year < 0 {
		return nil, fmt.Errorf("%w: tahun must not be negative", store.ErrValidation)
	}

	summaries, err := s.repo.SummarizeSHU(ctx, year)
	if err != nil {
		return nil, err
	}
	if year != 0 && len(summaries) == 0 {
		summaries = []domain.SHUSummary{{Tahun: year}}
	}
	return summaries, nil
}

// MyCreditLimit reports the calling anggota's hutang headroom.
func (s *Service) MyCreditLimit(ctx context.Context) (domain.CreditLimitResponse, error) {
	member, err := s.MyMember(ctx)
	if err != nil {
		return domain.CreditLimitResponse{}, err
	}
	return s.creditLimitFor(ctx, member)
}

// MemberCreditLimit lets a cashier check headroom before ringing up a hutang sale.
func (s *Service) MemberCreditLimit(ctx context.Context, memberID string) (domain.CreditLimitResponse, error) {
	if _, err := requireActor(ctx, domain.RoleKasir, domain.RoleAdmin); err != nil {
		return domain.CreditLimitResponse{}, err
	}
	member, err := s.repo.GetMember(ctx, strings.TrimSpace(memberID))
	if err != nil {
		return domain.CreditLimitResponse{}, err
	}
	return s.creditLimitFor(ctx, *member)
}

func (s *Service) creditLimitFor(ctx context.Context, member domain.Member) (domain.CreditLimitResponse, error) {
	spend, err := s.repo.CompletedSpendSince(ctx, member.ID, finance.WindowStart(s.now().UTC()))
	if err != nil {
		return domain.CreditLimitResponse{}, err
	}
	limit := finance.CreditLimit(spend)
	return domain.CreditLimitResponse{
		Limit:          limit,
		Hutang:         member.Hutang,
		Tersedia:       finance.Available(limit, member.Hutang),
		RataRataBulan:  finance.MonthlyAverage(spend).Floor().IntPart(),
		BelanjaEnamBln: spend,
	}, nil
}
