package httpapi

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"koperasi/backend/internal/domain"
)

var salesHeader = []string{"ID", "Tanggal", "Anggota", "Kasir", "Metode", "Total", "Keuntungan"}

func salesRow(trx domain.Transaction) []any {
	return []any{
		trx.ID,
		trx.CreatedAt.In(time.Local).Format("2006-01-02 15:04"),
		trx.MemberID,
		trx.CashierID,
		trx.PaymentMethod,
		trx.Total,
		trx.TotalProfit,
	}
}

func salesReportCSV(report domain.SalesReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write(salesHeader)
	for _, trx := range report.Transactions {
		row := salesRow(trx)
		record := make([]string, len(row))
		for i, v := range row {
			switch v := v.(type) {
			case string:
				record[i] = v
			case int64:
				record[i] = strconv.FormatInt(v, 10)
			}
		}
		_ = w.Write(record)
	}
	_ = w.Write(nil)
	_ = w.Write([]string{"Metode", "Transaksi", "Omzet", "Keuntungan"})
	for _, m := range report.PerMetode {
		_ = w.Write([]string{m.Metode, strconv.Itoa(m.Transaksi), strconv.FormatInt(m.Omzet, 10), strconv.FormatInt(m.Keuntungan, 10)})
	}
	_ = w.Write([]string{"TOTAL", strconv.Itoa(report.Transaksi), strconv.FormatInt(report.Omzet, 10), strconv.FormatInt(report.Keuntungan, 10)})

	w.Flush()
	return buf.Bytes(), w.Error()
}

// salesReportXLSX renders the report as a workbook with a transaction sheet
// and a per-method summary sheet.
func salesReportXLSX(report domain.SalesReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Transaksi"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	_ = f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	for c, v := range salesHeader {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for r, trx := range report.Transactions {
		for c, v := range salesRow(trx) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 40)
	_ = f.SetColWidth(sheet, "B", "B", 18)
	_ = f.SetColWidth(sheet, "C", "D", 40)
	_ = f.SetColWidth(sheet, "E", "G", 14)

	summary := "Ringkasan"
	if _, err := f.NewSheet(summary); err != nil {
		return nil, err
	}
	rows := [][]any{
		{"Periode", report.From + " s/d " + report.To},
		{},
		{"Metode", "Transaksi", "Omzet", "Keuntungan"},
	}
	for _, m := range report.PerMetode {
		rows = append(rows, []any{m.Metode, m.Transaksi, m.Omzet, m.Keuntungan})
	}
	rows = append(rows, []any{"TOTAL", report.Transaksi, report.Omzet, report.Keuntungan})
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(summary, cell, v)
		}
	}
	_ = f.SetColWidth(summary, "A", "D", 16)

	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(sheet, "A1", "G1", style)
	_ = f.SetCellStyle(summary, "A3", "D3", style)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
