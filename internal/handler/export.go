package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"

	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"Date", "Status", "Gross Sales", "Cash Sales", "Cash Expenses", "Online Expenses",
	"Opening Cash", "Expected Closing", "Actual Closing", "Variance", "Variance Type",
}

func (h RegisterHandler) export(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	shopID, ok := shopFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "shopId is required")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	from, to := register.DefaultRange(h.now())
	start, err := parseDateQuery(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	end, err := parseDateQuery(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}
	if start != nil {
		from = *start
	}
	if end != nil {
		to = *end
	}

	rows, shop, err := h.Engine.History(r.Context(), caller, shopID, from, to)
	if err != nil {
		writeRegisterError(w, err)
		return
	}

	filename := fmt.Sprintf("register_%s_%s_%s", shop.Code, from.Format("20060102"), to.Format("20060102"))
	switch format {
	case "csv":
		data, err := exportRegisterCSV(rows)
		if err != nil {
			writeErrorWithErr(w, http.StatusInternalServerError, "export failed", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
		_, _ = w.Write(data)
	case "xlsx", "excel":
		data, err := exportRegisterXLSX(shop.Name, rows)
		if err != nil {
			writeErrorWithErr(w, http.StatusInternalServerError, "export failed", err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, "invalid format (use csv or xlsx)")
	}
}

func nullable(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

func exportValues(l domain.DailySalesLog) []decimal.Decimal {
	return []decimal.Decimal{
		l.GrossSales,
		l.CashSales,
		l.TotalCashExpenses,
		l.TotalOnlineExpenses,
		nullable(l.OpeningCash),
		l.ExpectedClosing,
		nullable(l.ActualClosing),
		l.Variance,
	}
}

func exportRegisterCSV(rows []domain.DailySalesLog) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write(exportHeader)
	for _, l := range rows {
		record := []string{l.LogDate.Format(register.DateLayout), string(l.Status)}
		for _, v := range exportValues(l) {
			record = append(record, v.StringFixed(2))
		}
		record = append(record, register.VarianceType(l.Variance))
		_ = w.Write(record)
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportRegisterXLSX(shopName string, rows []domain.DailySalesLog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "Register"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)
	_ = f.SetDocProps(&excelize.DocProperties{Title: "Daily register - " + shopName})

	for c, v := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for i, l := range rows {
		row := i + 2
		values := []any{l.LogDate.Format(register.DateLayout), string(l.Status)}
		for _, v := range exportValues(l) {
			values = append(values, v.InexactFloat64())
		}
		values = append(values, register.VarianceType(l.Variance))
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 12)
	_ = f.SetColWidth(sheet, "C", "J", 16)
	_ = f.SetColWidth(sheet, "K", "K", 14)

	header, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", "K1", header)
	if len(rows) > 0 {
		money, _ := f.NewStyle(&excelize.Style{NumFmt: 4})
		last, _ := excelize.CoordinatesToCellName(10, len(rows)+1)
		_ = f.SetCellStyle(sheet, "C2", last, money)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
