/*
export.go - Spreadsheet report for offline review

PURPOSE:
  GET /api/export streams an xlsx workbook so clinic staff can audit the
  ledger outside the web UI:

  Sheet "Balances":      one row per catalog material with current
                         quantity and stock status.
  Sheet "Transactions":  the most recent transactions, one row per
                         material line, newest first.

The workbook is built in memory with excelize and streamed with an
attachment disposition; nothing is written to disk.

SEE ALSO:
  - handlers.go: Error mapping helpers used here
*/
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/medadmin/stock-ledger/ledger"
)

// exportPageSize caps how much history the workbook carries. Older
// transactions stay queryable through the paginated API.
const exportPageSize = 200

// ExportReport handles GET /api/export.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	f := excelize.NewFile()
	defer f.Close()

	if err := h.writeBalancesSheet(r, f); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.writeTransactionsSheet(r, f); err != nil {
		h.writeError(w, r, err)
		return
	}

	// Drop the default sheet left over from NewFile.
	_ = f.DeleteSheet("Sheet1")

	filename := fmt.Sprintf("stock-report-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	if err := f.Write(w); err != nil {
		h.Logger.Error("write export", zap.Error(err))
	}
}

func (h *Handler) writeBalancesSheet(r *http.Request, f *excelize.File) error {
	const sheet = "Balances"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Material", "Code", "Kind", "Current Quantity", "Status", "As Of"}
	for i, title := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}

	balances, err := h.Query.Balances(r.Context())
	if err != nil {
		return err
	}
	materials, err := h.Catalog.Materials(r.Context())
	if err != nil {
		return err
	}
	byID := make(map[ledger.MaterialID]ledger.Material, len(materials))
	for _, m := range materials {
		byID[m.ID] = m
	}

	for i, b := range balances {
		m := byID[b.MaterialID]
		row := i + 2
		setRow(f, sheet, row,
			m.Name,
			m.Code,
			string(m.Kind),
			b.CurrentQuantity,
			string(b.Status),
			b.AsOf.Format(time.RFC3339),
		)
	}
	return nil
}

func (h *Handler) writeTransactionsSheet(r *http.Request, f *excelize.File) error {
	const sheet = "Transactions"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Date", "Direction", "Counterparty", "Material", "Quantity", "Unit Price", "Amount", "Paid", "Note"}
	for i, title := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}

	page, err := h.Query.Search(r.Context(), ledger.Filter{}, ledger.PageRequest{Index: 0, Size: exportPageSize})
	if err != nil {
		return err
	}

	row := 2
	for _, entry := range page.Items {
		paid := ""
		if entry.IsPaid != nil {
			paid = fmt.Sprintf("%t", *entry.IsPaid)
		}
		counterparty := entry.CounterpartyName
		if counterparty == "" {
			counterparty = entry.CounterpartyID
		}
		for _, line := range entry.Lines {
			material := line.MaterialName
			if material == "" {
				material = string(line.MaterialID)
			}
			setRow(f, sheet, row,
				entry.CreatedAt.Format("2006-01-02 15:04"),
				string(entry.Direction),
				counterparty,
				material,
				line.Quantity,
				line.UnitPrice.InexactFloat64(),
				line.Amount.InexactFloat64(),
				paid,
				line.Note,
			)
			row++
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
