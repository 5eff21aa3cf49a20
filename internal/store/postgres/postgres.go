package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"koperasi/backend/internal/domain"
	"koperasi/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	itemColumns        = `id, kode, nama, stok, harga_beli, harga_jual, created_at, updated_at`
	memberColumns      = `id, user_id, nama, saldo, hutang, shu, created_at, updated_at`
	userColumns        = `id, username, password, role, active, created_at`
	transactionColumns = `id, COALESCE(anggota_id, '') AS anggota_id, COALESCE(kasir_id, '') AS kasir_id,
		total, total_keuntungan, metode_pembayaran, status, sumber, created_at, completed_at`
	lineColumns    = `transaksi_id, barang_id, nama_barang, jumlah, harga_satuan, harga_beli, subtotal, keuntungan`
	requestColumns = `id, jenis, COALESCE(anggota_id, '') AS anggota_id, diajukan_oleh, nominal, metode, keterangan,
		status, COALESCE(diproses_oleh, '') AS diproses_oleh, diproses_at, created_at`
	distributionColumns = `id, transaksi_id, anggota_id, tahun, total_keuntungan, bagian_anggota, bagian_cadangan, bagian_lainnya, created_at`
)

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
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

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	items := make([]domain.Item, 0, 64)
	err := s.db.SelectContext(ctx, &items, `SELECT `+itemColumns+` FROM barang ORDER BY lower(nama)`)
	return items, err
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	err := s.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM barang WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]domain.Member, error) {
	members := make([]domain.Member, 0, 64)
	err := s.db.SelectContext(ctx, &members, `SELECT `+memberColumns+` FROM anggota ORDER BY lower(nama)`)
	return members, err
}

func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	return getMember(ctx, s.db, `WHERE id = $1`, id)
}

func (s *Store) GetMemberByUserID(ctx context.Context, userID string) (*domain.Member, error) {
	return getMember(ctx, s.db, `WHERE user_id = $1`, userID)
}

func (s *Store) MemberTotals(ctx context.Context) (domain.MemberTotals, error) {
	var totals domain.MemberTotals
	err := s.db.GetContext(ctx, &totals, `
		SELECT COUNT(*) AS jumlah,
		       COALESCE(SUM(saldo), 0)::BIGINT AS saldo,
		       COALESCE(SUM(hutang), 0)::BIGINT AS hutang,
		       COALESCE(SUM(shu), 0)::BIGINT AS shu
		FROM anggota
	`)
	return totals, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE username = $1`,
		strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 16)
	err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY username`)
	return users, err
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, id, false)
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if filter.MemberID != "" {
		where = append(where, "anggota_id = ?")
		args = append(args, filter.MemberID)
	}
	if filter.CashierID != "" {
		where = append(where, "kasir_id = ?")
		args = append(args, filter.CashierID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, filter.To)
	}

	query := `SELECT ` + transactionColumns + ` FROM transaksi`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	trxs := make([]domain.Transaction, 0, 32)
	if err := s.db.SelectContext(ctx, &trxs, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	if err := attachLines(ctx, s.db, trxs); err != nil {
		return nil, err
	}
	return trxs, nil
}

func (s *Store) CompletedSpendSince(ctx context.Context, memberID string, since time.Time) (int64, error) {
	return completedSpendSince(ctx, s.db, memberID, since)
}

func (s *Store) ListSHUDistributions(ctx context.Context, memberID string) ([]domain.SHUDistribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM shu_distribusi`
	args := []any{}
	if memberID != "" {
		query += ` WHERE anggota_id = $1`
		args = append(args, memberID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	dists := make([]domain.SHUDistribution, 0, 16)
	err := s.db.SelectContext(ctx, &dists, query, args...)
	return dists, err
}

func (s *Store) SummarizeSHU(ctx context.Context, year int) ([]domain.SHUSummary, error) {
	out := make([]domain.SHUSummary, 0, 4)
	err := s.db.SelectContext(ctx, &out, `
		SELECT tahun,
		       COUNT(*) AS transaksi,
		       SUM(total_keuntungan)::BIGINT AS total_keuntungan,
		       SUM(bagian_anggota)::BIGINT AS bagian_anggota,
		       SUM(bagian_cadangan)::BIGINT AS bagian_cadangan,
		       SUM(bagian_lainnya)::BIGINT AS bagian_lainnya
		FROM shu_distribusi
		WHERE ($1 = 0 OR tahun = $1)
		GROUP BY tahun
		ORDER BY tahun DESC
	`, year)
	return out, err
}

type opnameLineRow struct {
	OpnameID string `db:"opname_id"`
	domain.StockOpnameLine
}

func (s *Store) ListOpnames(ctx context.Context, limit int) ([]domain.StockOpname, error) {
	if limit <= 0 {
		limit = 100
	}
	opnames := make([]domain.StockOpname, 0, limit)
	err := s.db.SelectContext(ctx, &opnames, `
		SELECT id, kasir_id, catatan, created_at
		FROM stok_opname
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil || len(opnames) == 0 {
		return opnames, err
	}

	ids := make([]string, 0, len(opnames))
	for _, op := range opnames {
		ids = append(ids, op.ID)
	}
	query, args, err := sqlx.In(`
		SELECT opname_id, barang_id, nama_barang, stok_sistem, stok_fisik, selisih
		FROM stok_opname_items
		WHERE opname_id IN (?)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	rows := make([]opnameLineRow, 0, len(ids)*4)
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byID := make(map[string][]domain.StockOpnameLine, len(opnames))
	for _, row := range rows {
		byID[row.OpnameID] = append(byID[row.OpnameID], row.StockOpnameLine)
	}
	for i := range opnames {
		opnames[i].Lines = byID[opnames[i].ID]
	}
	return opnames, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*domain.BalanceRequest, error) {
	return getRequest(ctx, s.db, id, false)
}

func (s *Store) ListRequests(ctx context.Context, filter domain.BalanceRequestFilter) ([]domain.BalanceRequest, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.Kind != "" {
		where = append(where, "jenis = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.MemberID != "" {
		where = append(where, "anggota_id = ?")
		args = append(args, filter.MemberID)
	}

	query := `SELECT ` + requestColumns + ` FROM pengajuan`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	reqs := make([]domain.BalanceRequest, 0, 16)
	err := s.db.SelectContext(ctx, &reqs, s.db.Rebind(query), args...)
	return reqs, err
}

func (s *Store) CashBalance(ctx context.Context) (int64, error) {
	var saldo int64
	err := s.db.GetContext(ctx, &saldo, `SELECT saldo FROM kas_koperasi WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return saldo, err
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) LockItems(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	out := make(map[string]domain.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	items := make([]domain.Item, 0, len(ids))
	// Fixed lock order keeps concurrent postings from deadlocking.
	err := t.tx.SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM barang
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (t *pgTx) InsertItem(ctx context.Context, item domain.Item) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO barang (id, kode, nama, stok, harga_beli, harga_jual, created_at, updated_at)
		VALUES (:id, :kode, :nama, :stok, :harga_beli, :harga_jual, :created_at, :updated_at)
	`, item)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: kode %s already used", store.ErrValidation, item.Kode)
	}
	return err
}

func (t *pgTx) UpdateItem(ctx context.Context, item domain.Item) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE barang
		SET nama = $2, stok = $3, harga_beli = $4, harga_jual = $5, updated_at = now()
		WHERE id = $1
	`, item.ID, item.Nama, item.Stok, item.HargaBeli, item.HargaJual)
	if isCheckViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrValidation, item.Nama)
	}
	return mustAffect(res, err)
}

func (t *pgTx) AdjustStock(ctx context.Context, itemID string, delta int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE barang
		SET stok = stok + $2, updated_at = now()
		WHERE id = $1 AND stok + $2 >= 0
	`, itemID, delta)
	if isCheckViolation(err) {
		return store.ErrOutOfStock
	}
	if err := mustAffect(res, err); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		var exists bool
		if err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM barang WHERE id = $1)`, itemID); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", store.ErrOutOfStock, itemID)
		}
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) LockMember(ctx context.Context, id string) (*domain.Member, error) {
	return getMember(ctx, t.tx, `WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) LockMemberByUserID(ctx context.Context, userID string) (*domain.Member, error) {
	return getMember(ctx, t.tx, `WHERE user_id = $1 FOR UPDATE`, userID)
}

func (t *pgTx) InsertMember(ctx context.Context, member domain.Member) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO anggota (id, user_id, nama, saldo, hutang, shu, created_at, updated_at)
		VALUES (:id, :user_id, :nama, :saldo, :hutang, :shu, :created_at, :updated_at)
	`, member)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: anggota for user %s already exists", store.ErrValidation, member.UserID)
	}
	return err
}

func (t *pgTx) SaveMemberBalances(ctx context.Context, member domain.Member) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE anggota
		SET saldo = $2, hutang = $3, shu = $4, updated_at = now()
		WHERE id = $1
	`, member.ID, member.Saldo, member.Hutang, member.SHU)
	if isCheckViolation(err) {
		return fmt.Errorf("%w: negative balance", store.ErrValidation)
	}
	return mustAffect(res, err)
}

func (t *pgTx) CompletedSpendSince(ctx context.Context, memberID string, since time.Time) (int64, error) {
	return completedSpendSince(ctx, t.tx, memberID, since)
}

func (t *pgTx) InsertUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO users (id, username, password, role, active, created_at)
		VALUES (:id, :username, :password, :role, :active, :created_at)
	`, user)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username %s already exists", store.ErrValidation, user.Username)
	}
	return err
}

type lineRow struct {
	TransactionID string `db:"transaksi_id"`
	domain.TransactionLine
}

func (t *pgTx) InsertTransaction(ctx context.Context, trx domain.Transaction) error {
	if len(trx.Lines) == 0 {
		return store.ErrValidation
	}

	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO transaksi (id, anggota_id, kasir_id, total, total_keuntungan, metode_pembayaran, status, sumber, created_at, completed_at)
		VALUES (:id, NULLIF(:anggota_id, ''), NULLIF(:kasir_id, ''), :total, :total_keuntungan, :metode_pembayaran, :status, :sumber, :created_at, :completed_at)
	`, trx)
	if isCheckViolation(err) {
		return fmt.Errorf("%w: transaksi %s", store.ErrValidation, trx.ID)
	}
	if err != nil {
		return err
	}

	rows := make([]lineRow, 0, len(trx.Lines))
	for _, line := range trx.Lines {
		rows = append(rows, lineRow{TransactionID: trx.ID, TransactionLine: line})
	}
	_, err = t.tx.NamedExecContext(ctx, `
		INSERT INTO transaksi_items (`+lineColumns+`)
		VALUES (:transaksi_id, :barang_id, :nama_barang, :jumlah, :harga_satuan, :harga_beli, :subtotal, :keuntungan)
	`, rows)
	if isCheckViolation(err) {
		return fmt.Errorf("%w: transaksi %s line", store.ErrValidation, trx.ID)
	}
	return err
}

func (t *pgTx) LockTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateTransactionStatus(ctx context.Context, trx domain.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transaksi
		SET status = $2, completed_at = $3, kasir_id = NULLIF($4, '')
		WHERE id = $1
	`, trx.ID, trx.Status, trx.CompletedAt, trx.CashierID)
	return mustAffect(res, err)
}

func (t *pgTx) InsertSHUDistribution(ctx context.Context, dist domain.SHUDistribution) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO shu_distribusi (`+distributionColumns+`)
		VALUES (:id, :transaksi_id, :anggota_id, :tahun, :total_keuntungan, :bagian_anggota, :bagian_cadangan, :bagian_lainnya, :created_at)
	`, dist)
	if isCheckViolation(err) {
		return fmt.Errorf("%w: shu parts do not add up", store.ErrValidation)
	}
	if isUniqueViolation(err) {
		return store.ErrAlreadyProcessed
	}
	return err
}

func (t *pgTx) InsertOpname(ctx context.Context, opname domain.StockOpname) error {
	if len(opname.Lines) == 0 {
		return store.ErrValidation
	}

	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO stok_opname (id, kasir_id, catatan, created_at)
		VALUES (:id, :kasir_id, :catatan, :created_at)
	`, opname)
	if err != nil {
		return err
	}

	rows := make([]opnameLineRow, 0, len(opname.Lines))
	for _, line := range opname.Lines {
		rows = append(rows, opnameLineRow{OpnameID: opname.ID, StockOpnameLine: line})
	}
	_, err = t.tx.NamedExecContext(ctx, `
		INSERT INTO stok_opname_items (opname_id, barang_id, nama_barang, stok_sistem, stok_fisik, selisih)
		VALUES (:opname_id, :barang_id, :nama_barang, :stok_sistem, :stok_fisik, :selisih)
	`, rows)
	return err
}

func (t *pgTx) InsertRequest(ctx context.Context, req domain.BalanceRequest) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO pengajuan (id, jenis, anggota_id, diajukan_oleh, nominal, metode, keterangan, status, created_at)
		VALUES (:id, :jenis, NULLIF(:anggota_id, ''), :diajukan_oleh, :nominal, :metode, :keterangan, :status, :created_at)
	`, req)
	if isCheckViolation(err) {
		return fmt.Errorf("%w: invalid pengajuan", store.ErrValidation)
	}
	return err
}

func (t *pgTx) LockRequest(ctx context.Context, id string) (*domain.BalanceRequest, error) {
	return getRequest(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateRequest(ctx context.Context, req domain.BalanceRequest) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE pengajuan
		SET status = $2, diproses_oleh = NULLIF($3, ''), diproses_at = $4
		WHERE id = $1
	`, req.ID, req.Status, req.ProcessedBy, req.ProcessedAt)
	return mustAffect(res, err)
}

func (t *pgTx) CreditCash(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return store.ErrValidation
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO kas_koperasi (id, saldo, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET saldo = kas_koperasi.saldo + EXCLUDED.saldo, updated_at = now()
	`, amount)
	return err
}

func getMember(ctx context.Context, q sqlx.QueryerContext, where string, arg string) (*domain.Member, error) {
	var member domain.Member
	if err := sqlx.GetContext(ctx, q, &member, `SELECT `+memberColumns+` FROM anggota `+where, arg); err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

func getTransaction(ctx context.Context, q sqlx.ExtContext, id string, forUpdate bool) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transaksi WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var trx domain.Transaction
	if err := sqlx.GetContext(ctx, q, &trx, query, id); err != nil {
		return nil, notFound(err)
	}

	trxs := []domain.Transaction{trx}
	if err := attachLines(ctx, q, trxs); err != nil {
		return nil, err
	}
	return &trxs[0], nil
}

func attachLines(ctx context.Context, q sqlx.ExtContext, trxs []domain.Transaction) error {
	if len(trxs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(trxs))
	for _, trx := range trxs {
		ids = append(ids, trx.ID)
	}

	query, args, err := sqlx.In(`SELECT `+lineColumns+` FROM transaksi_items WHERE transaksi_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	rows := make([]lineRow, 0, len(ids)*3)
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return err
	}

	byID := make(map[string][]domain.TransactionLine, len(trxs))
	for _, row := range rows {
		byID[row.TransactionID] = append(byID[row.TransactionID], row.TransactionLine)
	}
	for i := range trxs {
		trxs[i].Lines = byID[trxs[i].ID]
	}
	return nil
}

func completedSpendSince(ctx context.Context, q sqlx.QueryerContext, memberID string, since time.Time) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, q, &total, `
		SELECT COALESCE(SUM(total), 0)::BIGINT
		FROM transaksi
		WHERE anggota_id = $1 AND status = 'selesai' AND created_at >= $2
	`, memberID, since)
	return total, err
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.BalanceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM pengajuan WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var req domain.BalanceRequest
	if err := sqlx.GetContext(ctx, q, &req, query, id); err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func mustAffect(res sql.Result, err error) error {
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

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}
