package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
)

// state is everything the store holds. Transaction and opname lines are never
// mutated in place, so a shallow copy of each map is a safe snapshot.
type state struct {
	items         map[string]domain.Item
	members       map[string]domain.Member
	users         map[string]domain.UserAccount
	transactions  map[string]domain.Transaction
	distributions []domain.SHUDistribution
	opnames       []domain.StockOpname
	requests      map[string]domain.BalanceRequest
	cash          int64
}

func newState() *state {
	return &state{
		items:        make(map[string]domain.Item),
		members:      make(map[string]domain.Member),
		users:        make(map[string]domain.UserAccount),
		transactions: make(map[string]domain.Transaction),
		requests:     make(map[string]domain.BalanceRequest),
	}
}

func (st *state) clone() *state {
	return &state{
		items:         maps.Clone(st.items),
		members:       maps.Clone(st.members),
		users:         maps.Clone(st.users),
		transactions:  maps.Clone(st.transactions),
		distributions: slices.Clone(st.distributions),
		opnames:       slices.Clone(st.opnames),
		requests:      maps.Clone(st.requests),
		cash:          st.cash,
	}
}

type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against a private copy of the state and publishes the copy
// only when fn succeeds. Writers are serialized by the store mutex.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := slices.Collect(maps.Values(s.st.items))
	slices.SortFunc(items, func(a, b domain.Item) int {
		return cmp.Compare(strings.ToLower(a.Nama), strings.ToLower(b.Nama))
	})
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.st.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListMembers(_ context.Context) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := slices.Collect(maps.Values(s.st.members))
	slices.SortFunc(members, func(a, b domain.Member) int {
		return cmp.Compare(strings.ToLower(a.Nama), strings.ToLower(b.Nama))
	})
	return members, nil
}

func (s *Store) GetMember(_ context.Context, id string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.st.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &member, nil
}

func (s *Store) GetMemberByUserID(_ context.Context, userID string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.memberByUserID(userID)
}

func (s *Store) MemberTotals(_ context.Context) (domain.MemberTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.MemberTotals
	for _, m := range s.st.members {
		totals.Count++
		totals.Saldo += m.Saldo
		totals.Hutang += m.Hutang
		totals.SHU += m.SHU
	}
	return totals, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.st.users[normalizeUsername(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := slices.Collect(maps.Values(s.st.users))
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trx, ok := s.st.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(trx), nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, 32)
	for _, trx := range s.st.transactions {
		if filter.MemberID != "" && trx.MemberID != filter.MemberID {
			continue
		}
		if filter.CashierID != "" && trx.CashierID != filter.CashierID {
			continue
		}
		if filter.Status != "" && trx.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && trx.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !trx.CreatedAt.Before(filter.To) {
			continue
		}
		out = append(out, *cloneTransaction(trx))
	}

	slices.SortFunc(out, func(a, b domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CompletedSpendSince(_ context.Context, memberID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.completedSpendSince(memberID, since), nil
}

func (s *Store) ListSHUDistributions(_ context.Context, memberID string) ([]domain.SHUDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SHUDistribution, 0, 16)
	for i := len(s.st.distributions) - 1; i >= 0; i-- {
		dist := s.st.distributions[i]
		if memberID != "" && dist.MemberID != memberID {
			continue
		}
		out = append(out, dist)
	}
	return out, nil
}

func (s *Store) SummarizeSHU(_ context.Context, year int) ([]domain.SHUSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byYear := make(map[int]*domain.SHUSummary)
	for _, dist := range s.st.distributions {
		if year != 0 && dist.Year != year {
			continue
		}
		sum, ok := byYear[dist.Year]
		if !ok {
			sum = &domain.SHUSummary{Tahun: dist.Year}
			byYear[dist.Year] = sum
		}
		sum.Transaksi++
		sum.TotalProfit += dist.TotalProfit
		sum.BagianAnggota += dist.MemberPart
		sum.BagianCadangan += dist.ReservePart
		sum.BagianLainnya += dist.OtherPart
	}

	out := make([]domain.SHUSummary, 0, len(byYear))
	for _, sum := range byYear {
		out = append(out, *sum)
	}
	slices.SortFunc(out, func(a, b domain.SHUSummary) int {
		return cmp.Compare(b.Tahun, a.Tahun)
	})
	return out, nil
}

func (s *Store) ListOpnames(_ context.Context, limit int) ([]domain.StockOpname, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockOpname, 0, len(s.st.opnames))
	for i := len(s.st.opnames) - 1; i >= 0; i-- {
		op := s.st.opnames[i]
		op.Lines = slices.Clone(op.Lines)
		out = append(out, op)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (*domain.BalanceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.st.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &req, nil
}

func (s *Store) ListRequests(_ context.Context, filter domain.BalanceRequestFilter) ([]domain.BalanceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BalanceRequest, 0, 16)
	for _, req := range s.st.requests {
		if filter.Kind != "" && req.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.MemberID != "" && req.MemberID != filter.MemberID {
			continue
		}
		out = append(out, req)
	}
	slices.SortFunc(out, func(a, b domain.BalanceRequest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CashBalance(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.cash, nil
}

type memTx struct {
	st *state
}

func (t *memTx) LockItems(_ context.Context, ids []string) (map[string]domain.Item, error) {
	out := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if item, ok := t.st.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (t *memTx) InsertItem(_ context.Context, item domain.Item) error {
	if item.ID == "" || item.Kode == "" {
		return store.ErrValidation
	}
	if _, exists := t.st.items[item.ID]; exists {
		return fmt.Errorf("%w: barang %s already exists", store.ErrValidation, item.ID)
	}
	for _, existing := range t.st.items {
		if strings.EqualFold(existing.Kode, item.Kode) {
			return fmt.Errorf("%w: kode %s already used", store.ErrValidation, item.Kode)
		}
	}
	t.st.items[item.ID] = item
	return nil
}

func (t *memTx) UpdateItem(_ context.Context, item domain.Item) error {
	if _, ok := t.st.items[item.ID]; !ok {
		return store.ErrNotFound
	}
	if item.Stok < 0 {
		return store.ErrOutOfStock
	}
	t.st.items[item.ID] = item
	return nil
}

func (t *memTx) AdjustStock(_ context.Context, itemID string, delta int) error {
	item, ok := t.st.items[itemID]
	if !ok {
		return store.ErrNotFound
	}
	if item.Stok+delta < 0 {
		return fmt.Errorf("%w: %s", store.ErrOutOfStock, item.Nama)
	}
	item.Stok += delta
	item.UpdatedAt = time.Now().UTC()
	t.st.items[itemID] = item
	return nil
}

func (t *memTx) LockMember(_ context.Context, id string) (*domain.Member, error) {
	member, ok := t.st.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &member, nil
}

func (t *memTx) LockMemberByUserID(_ context.Context, userID string) (*domain.Member, error) {
	return t.st.memberByUserID(userID)
}

func (t *memTx) InsertMember(_ context.Context, member domain.Member) error {
	if member.ID == "" {
		return store.ErrValidation
	}
	if _, exists := t.st.members[member.ID]; exists {
		return fmt.Errorf("%w: anggota %s already exists", store.ErrValidation, member.ID)
	}
	t.st.members[member.ID] = member
	return nil
}

func (t *memTx) SaveMemberBalances(_ context.Context, member domain.Member) error {
	current, ok := t.st.members[member.ID]
	if !ok {
		return store.ErrNotFound
	}
	if member.Saldo < 0 || member.Hutang < 0 || member.SHU < 0 {
		return fmt.Errorf("%w: negative balance", store.ErrValidation)
	}
	current.Saldo = member.Saldo
	current.Hutang = member.Hutang
	current.SHU = member.SHU
	current.UpdatedAt = time.Now().UTC()
	t.st.members[member.ID] = current
	return nil
}

func (t *memTx) CompletedSpendSince(_ context.Context, memberID string, since time.Time) (int64, error) {
	return t.st.completedSpendSince(memberID, since), nil
}

func (t *memTx) InsertUser(_ context.Context, user domain.UserAccount) error {
	user.Username = normalizeUsername(user.Username)
	if user.ID == "" || user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := t.st.users[user.Username]; exists {
		return fmt.Errorf("%w: username %s already exists", store.ErrValidation, user.Username)
	}
	t.st.users[user.Username] = user
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, trx domain.Transaction) error {
	if trx.ID == "" || len(trx.Lines) == 0 {
		return store.ErrValidation
	}
	if _, exists := t.st.transactions[trx.ID]; exists {
		return fmt.Errorf("%w: transaksi %s already exists", store.ErrValidation, trx.ID)
	}
	if trx.Total < 0 {
		return fmt.Errorf("%w: transaksi %s has negative total", store.ErrValidation, trx.ID)
	}
	var sum int64
	for _, line := range trx.Lines {
		if line.Qty <= 0 {
			return fmt.Errorf("%w: transaksi %s has non-positive jumlah", store.ErrValidation, trx.ID)
		}
		sum += line.Subtotal
	}
	if sum != trx.Total {
		return fmt.Errorf("%w: transaksi %s lines do not add up to total", store.ErrValidation, trx.ID)
	}
	t.st.transactions[trx.ID] = *cloneTransaction(trx)
	return nil
}

func (t *memTx) LockTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	trx, ok := t.st.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(trx), nil
}

func (t *memTx) UpdateTransactionStatus(_ context.Context, trx domain.Transaction) error {
	current, ok := t.st.transactions[trx.ID]
	if !ok {
		return store.ErrNotFound
	}
	current.Status = trx.Status
	current.CompletedAt = trx.CompletedAt
	current.CashierID = trx.CashierID
	t.st.transactions[trx.ID] = current
	return nil
}

func (t *memTx) InsertSHUDistribution(_ context.Context, dist domain.SHUDistribution) error {
	if !dist.Balanced() {
		return fmt.Errorf("%w: shu parts do not add up", store.ErrValidation)
	}
	t.st.distributions = append(t.st.distributions, dist)
	return nil
}

func (t *memTx) InsertOpname(_ context.Context, opname domain.StockOpname) error {
	if opname.ID == "" || len(opname.Lines) == 0 {
		return store.ErrValidation
	}
	opname.Lines = slices.Clone(opname.Lines)
	t.st.opnames = append(t.st.opnames, opname)
	return nil
}

func (t *memTx) InsertRequest(_ context.Context, req domain.BalanceRequest) error {
	if req.ID == "" || req.Amount <= 0 {
		return store.ErrValidation
	}
	t.st.requests[req.ID] = req
	return nil
}

func (t *memTx) LockRequest(_ context.Context, id string) (*domain.BalanceRequest, error) {
	req, ok := t.st.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &req, nil
}

func (t *memTx) UpdateRequest(_ context.Context, req domain.BalanceRequest) error {
	current, ok := t.st.requests[req.ID]
	if !ok {
		return store.ErrNotFound
	}
	current.Status = req.Status
	current.ProcessedBy = req.ProcessedBy
	current.ProcessedAt = req.ProcessedAt
	t.st.requests[req.ID] = current
	return nil
}

func (t *memTx) CreditCash(_ context.Context, amount int64) error {
	if amount <= 0 {
		return store.ErrValidation
	}
	t.st.cash += amount
	return nil
}

func (st *state) memberByUserID(userID string) (*domain.Member, error) {
	for _, m := range st.members {
		if m.UserID == userID {
			member := m
			return &member, nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) completedSpendSince(memberID string, since time.Time) int64 {
	var total int64
	for _, trx := range st.transactions {
		if trx.MemberID != memberID || trx.Status != domain.TxStatusSelesai {
			continue
		}
		if trx.CreatedAt.Before(since) {
			continue
		}
		total += trx.Total
	}
	return total
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func cloneTransaction(src domain.Transaction) *domain.Transaction {
	dup := src
	dup.Lines = slices.Clone(src.Lines)
	if src.CompletedAt != nil {
		at := *src.CompletedAt
		dup.CompletedAt = &at
	}
	return &dup
}
