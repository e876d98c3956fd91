package report

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/fitscore-cli/internal/model"
)

var exportHeader = []string{
	"Scored At", "Record Kind", "Record ID", "Score", "Cost (USD)",
}

// ExportScoreEventsXLSX writes one portal's scoring ledger to an XLSX file,
// newest event first, one row per event.
func ExportScoreEventsXLSX(path string, events []model.ScoreEvent) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Score Events")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().SetString(h)
	}

	for _, ev := range events {
		row := sheet.AddRow()
		row.AddCell().SetString(ev.CreatedAt.UTC().Format(time.RFC3339))
		row.AddCell().SetString(string(ev.RecordKind))
		row.AddCell().SetString(ev.RecordID)
		row.AddCell().SetString(strconv.FormatFloat(ev.Score, 'f', -1, 64))
		row.AddCell().SetString(strconv.FormatFloat(ev.CostUSD, 'f', 4, 64))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save xlsx")
	}
	return nil
}
