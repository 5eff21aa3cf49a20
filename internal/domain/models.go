package domain

import "time"

const (
	RoleAdmin   = "admin"
	RoleKasir   = "kasir"
	RoleAnggota = "anggota"
)

const (
	TxStatusPending = "pending"
	TxStatusSelesai = "selesai"
	TxStatusBatal   = "batal"
)

const (
	SourceKasir   = "kasir"
	SourceAnggota = "anggota"
)

const (
	PaymentCash     = "cash"
	PaymentTransfer = "transfer"
	PaymentQRIS     = "qris"
	PaymentEwallet  = "ewallet"
	PaymentSaldo    = "saldo"
	PaymentHutang   = "hutang"
)

const (
	RequestTopup       = "topup"
	RequestBayarHutang = "bayar_hutang"
	RequestSetoran     = "setoran"
)

const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

type UserAccount struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password"`
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Actor struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Nama     string `json:"nama"`
}

type UserCreateResponse struct {
	User   UserAccount `json:"user"`
	Member *Member     `json:"anggota,omitempty"`
}

// Item is a sellable inventory record (barang).
type Item struct {
	ID        string    `json:"id" db:"id"`
	Kode      string    `json:"kode" db:"kode"`
	Nama      string    `json:"nama" db:"nama"`
	Stok      int       `json:"stok" db:"stok"`
	HargaBeli int64     `json:"harga_beli" db:"harga_beli"`
	HargaJual int64     `json:"harga_jual" db:"harga_jual"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ItemCreateRequest struct {
	Kode      string `json:"kode"`
	Nama      string `json:"nama"`
	Stok      int    `json:"stok"`
	HargaBeli int64  `json:"harga_beli"`
	HargaJual int64  `json:"harga_jual"`
}

type ItemUpdateRequest struct {
	Nama       *string `json:"nama,omitempty"`
	HargaBeli  *int64  `json:"harga_beli,omitempty"`
	HargaJual  *int64  `json:"harga_jual,omitempty"`
	TambahStok *int    `json:"tambah_stok,omitempty"`
}

// Member is a cooperative member account (anggota).
type Member struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Nama      string    `json:"nama" db:"nama"`
	Saldo     int64     `json:"saldo" db:"saldo"`
	Hutang    int64     `json:"hutang" db:"hutang"`
	SHU       int64     `json:"shu" db:"shu"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Transaction struct {
	ID            string            `json:"id" db:"id"`
	MemberID      string            `json:"anggota_id,omitempty" db:"anggota_id"`
	CashierID     string            `json:"kasir_id,omitempty" db:"kasir_id"`
	Total         int64             `json:"total" db:"total"`
	TotalProfit   int64             `json:"total_keuntungan" db:"total_keuntungan"`
	PaymentMethod string            `json:"metode_pembayaran" db:"metode_pembayaran"`
	Status        string            `json:"status" db:"status"`
	Source        string            `json:"sumber" db:"sumber"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	Lines         []TransactionLine `json:"items" db:"-"`
}

type TransactionLine struct {
	ItemID    string `json:"barang_id" db:"barang_id"`
	ItemName  string `json:"nama_barang" db:"nama_barang"`
	Qty       int    `json:"jumlah" db:"jumlah"`
	UnitPrice int64  `json:"harga_satuan" db:"harga_satuan"`
	UnitCost  int64  `json:"harga_beli" db:"harga_beli"`
	Subtotal  int64  `json:"subtotal" db:"subtotal"`
	Profit    int64  `json:"keuntungan" db:"keuntungan"`
}

type CartItem struct {
	ItemID string `json:"barang_id"`
	Qty    int    `json:"jumlah"`
	// UnitPrice is accepted for client compatibility; the stored sale price wins.
	UnitPrice *int64 `json:"harga_satuan,omitempty"`
}

type TransactionRequest struct {
	Items         []CartItem `json:"items"`
	MemberID      string     `json:"anggota_id,omitempty"`
	PaymentMethod string     `json:"metode_pembayaran"`
}

type TransactionResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaksi_id"`
	Status        string `json:"status"`
	Total         int64  `json:"total"`
	TotalProfit   int64  `json:"total_keuntungan"`
}

type TransactionFilter struct {
	MemberID  string
	CashierID string
	Status    string
	From      time.Time
	To        time.Time
	Limit     int
}

// SHUDistribution is the append-only audit row of one profit-share split.
type SHUDistribution struct {
	ID            string    `json:"id" db:"id"`
	TransactionID string    `json:"transaksi_id" db:"transaksi_id"`
	MemberID      string    `json:"anggota_id" db:"anggota_id"`
	Year          int       `json:"tahun" db:"tahun"`
	TotalProfit   int64     `json:"total_keuntungan" db:"total_keuntungan"`
	MemberPart    int64     `json:"bagian_anggota" db:"bagian_anggota"`
	ReservePart   int64     `json:"bagian_cadangan" db:"bagian_cadangan"`
	OtherPart     int64     `json:"bagian_lainnya" db:"bagian_lainnya"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Balanced reports whether the parts add up to the profit. A loss carries
// zero parts.
func (d SHUDistribution) Balanced() bool {
	if d.TotalProfit < 0 {
		return d.MemberPart == 0 && d.ReservePart == 0 && d.OtherPart == 0
	}
	return d.MemberPart+d.ReservePart+d.OtherPart == d.TotalProfit
}

type SHUSummary struct {
	Tahun          int   `json:"tahun" db:"tahun"`
	Transaksi      int   `json:"transaksi" db:"transaksi"`
	TotalProfit    int64 `json:"total_keuntungan" db:"total_keuntungan"`
	BagianAnggota  int64 `json:"bagian_anggota" db:"bagian_anggota"`
	BagianCadangan int64 `json:"bagian_cadangan" db:"bagian_cadangan"`
	BagianLainnya  int64 `json:"bagian_lainnya" db:"bagian_lainnya"`
}

type MemberSHUResponse struct {
	SHU           int64             `json:"shu"`
	Distributions []SHUDistribution `json:"distribusi"`
}

type CreditLimitResponse struct {
	Limit          int64 `json:"limit"`
	Hutang         int64 `json:"hutang"`
	Tersedia       int64 `json:"tersedia"`
	RataRataBulan  int64 `json:"rata_rata_bulanan"`
	BelanjaEnamBln int64 `json:"belanja_6_bulan"`
}

type StockOpname struct {
	ID        string            `json:"id" db:"id"`
	CashierID string            `json:"kasir_id" db:"kasir_id"`
	Notes     string            `json:"catatan,omitempty" db:"catatan"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	Lines     []StockOpnameLine `json:"items" db:"-"`
}

type StockOpnameLine struct {
	ItemID      string `json:"barang_id" db:"barang_id"`
	ItemName    string `json:"nama_barang" db:"nama_barang"`
	SystemStock int    `json:"stok_sistem" db:"stok_sistem"`
	PhysicalQty int    `json:"stok_fisik" db:"stok_fisik"`
	Difference  int    `json:"selisih" db:"selisih"`
}

type StockOpnameRequest struct {
	Items []StockOpnameItem `json:"items"`
	Notes string            `json:"catatan,omitempty"`
}

type StockOpnameItem struct {
	ItemID      string `json:"barang_id"`
	PhysicalQty int    `json:"stok_fisik"`
}

// BalanceRequest is a pending top-up, debt payment or cash deposit (pengajuan).
type BalanceRequest struct {
	ID          string     `json:"id" db:"id"`
	Kind        string     `json:"jenis" db:"jenis"`
	MemberID    string     `json:"anggota_id,omitempty" db:"anggota_id"`
	RequestedBy string     `json:"diajukan_oleh" db:"diajukan_oleh"`
	Amount      int64      `json:"nominal" db:"nominal"`
	Method      string     `json:"metode,omitempty" db:"metode"`
	Notes       string     `json:"keterangan,omitempty" db:"keterangan"`
	Status      string     `json:"status" db:"status"`
	ProcessedBy string     `json:"diproses_oleh,omitempty" db:"diproses_oleh"`
	ProcessedAt *time.Time `json:"diproses_at,omitempty" db:"diproses_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

type BalanceRequestCreate struct {
	Amount int64  `json:"nominal"`
	Method string `json:"metode,omitempty"`
	Notes  string `json:"keterangan,omitempty"`
}

type BalanceRequestFilter struct {
	Kind     string
	Status   string
	MemberID string
	Limit    int
}

type AdminDashboard struct {
	JumlahAnggota     int       `json:"jumlah_anggota"`
	JumlahBarang      int       `json:"jumlah_barang"`
	StokMenipis       []Item    `json:"stok_menipis"`
	TransaksiHariIni  int       `json:"transaksi_hari_ini"`
	OmzetHariIni      int64     `json:"omzet_hari_ini"`
	KeuntunganHariIni int64     `json:"keuntungan_hari_ini"`
	TotalSaldo        int64     `json:"total_saldo"`
	TotalHutang       int64     `json:"total_hutang"`
	TotalSHU          int64     `json:"total_shu"`
	TransaksiPending  int       `json:"transaksi_pending"`
	PengajuanPending  int       `json:"pengajuan_pending"`
	KasKoperasi       int64     `json:"kas_koperasi"`
	GeneratedAt       time.Time `json:"generated_at"`
}

type CashierDashboard struct {
	TransaksiHariIni int           `json:"transaksi_hari_ini"`
	OmzetHariIni     int64         `json:"omzet_hari_ini"`
	Pending          []Transaction `json:"transaksi_pending"`
	StokMenipis      []Item        `json:"stok_menipis"`
}

// MemberTotals aggregates live balances across every member.
type MemberTotals struct {
	Count  int   `db:"jumlah"`
	Saldo  int64 `db:"saldo"`
	Hutang int64 `db:"hutang"`
	SHU    int64 `db:"shu"`
}

type SalesReport struct {
	From         string          `json:"from"`
	To           string          `json:"to"`
	Transaksi    int             `json:"transaksi"`
	Omzet        int64           `json:"omzet"`
	Keuntungan   int64           `json:"keuntungan"`
	PerMetode    []SalesByMethod `json:"per_metode"`
	Transactions []Transaction   `json:"daftar_transaksi"`
}

type SalesByMethod struct {
	Metode     string `json:"metode"`
	Transaksi  int    `json:"transaksi"`
	Omzet      int64  `json:"omzet"`
	Keuntungan int64  `json:"keuntungan"`
}
