package store

import (
	"context"
	"errors"
	"time"

	"koperasi/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrOutOfStock          = errors.New("out of stock")
	ErrInsufficientFunds   = errors.New("insufficient saldo")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrForbidden           = errors.New("forbidden")
)

// Reader holds the lookups that run outside a unit of work.
type Reader interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListMembers(ctx context.Context) ([]domain.Member, error)
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	GetMemberByUserID(ctx context.Context, userID string) (*domain.Member, error)
	MemberTotals(ctx context.Context) (domain.MemberTotals, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	CompletedSpendSince(ctx context.Context, memberID string, since time.Time) (int64, error)
	ListSHUDistributions(ctx context.Context, memberID string) ([]domain.SHUDistribution, error)
	SummarizeSHU(ctx context.Context, year int) ([]domain.SHUSummary, error)
	ListOpnames(ctx context.Context, limit int) ([]domain.StockOpname, error)
	GetRequest(ctx context.Context, id string) (*domain.BalanceRequest, error)
	ListRequests(ctx context.Context, filter domain.BalanceRequestFilter) ([]domain.BalanceRequest, error)
	CashBalance(ctx context.Context) (int64, error)
}

// Tx is one all-or-nothing unit of work. Rows returned by the Lock methods
// stay locked until the unit commits or rolls back.
type Tx interface {
	LockItems(ctx context.Context, ids []string) (map[string]domain.Item, error)
	InsertItem(ctx context.Context, item domain.Item) error
	UpdateItem(ctx context.Context, item domain.Item) error
	// AdjustStock adds delta to the item's stock and fails with ErrOutOfStock
	// when the result would be negative.
	AdjustStock(ctx context.Context, itemID string, delta int) error

	LockMember(ctx context.Context, id string) (*domain.Member, error)
	LockMemberByUserID(ctx context.Context, userID string) (*domain.Member, error)
	InsertMember(ctx context.Context, member domain.Member) error
	SaveMemberBalances(ctx context.Context, member domain.Member) error
	CompletedSpendSince(ctx context.Context, memberID string, since time.Time) (int64, error)

	InsertUser(ctx context.Context, user domain.UserAccount) error

	InsertTransaction(ctx context.Context, trx domain.Transaction) error
	LockTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, trx domain.Transaction) error
	InsertSHUDistribution(ctx context.Context, dist domain.SHUDistribution) error

	InsertOpname(ctx context.Context, opname domain.StockOpname) error

	InsertRequest(ctx context.Context, req domain.BalanceRequest) error
	LockRequest(ctx context.Context, id string) (*domain.BalanceRequest, error)
	UpdateRequest(ctx context.Context, req domain.BalanceRequest) error
	CreditCash(ctx context.Context, amount int64) error
}

type Repository interface {
	Reader
	// WithinTx runs fn in a single unit of work. Any error returned by fn
	// discards every write fn made.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
