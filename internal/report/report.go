// Package report renders stored extractions as an xlsx review workbook.
package report

import (
	"io"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/oasis-extract/internal/model"
)

// Sheet names.
const (
	SheetExtractions = "Extractions"
	SheetModes       = "Modes"
)

// Header returns the extraction sheet column titles.
func Header() []string {
	h := []string{"ID", "Interaction", "Created", "Mode", "Model", "Trials", "Votes", "Confidence"}
	for _, k := range model.ItemKeys {
		h = append(h, string(k)+" "+k.Label(), string(k)+" source", string(k)+" evidence")
	}
	return append(h, "Summary", "Digest")
}

// Build returns the workbook for results.
func Build(results []model.ExtractionResult) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SheetExtractions)
	if err != nil {
		return nil, eris.Wrap(err, "report: add extractions sheet")
	}
	addStrings(sheet.AddRow(), Header())

	modes := map[model.Mode]int{}
	for i := range results {
		r := &results[i]
		modes[r.Meta.Mode]++

		row := sheet.AddRow()
		addStrings(row, []string{r.ID, r.InteractionID, r.CreatedAt.UTC().Format(time.RFC3339), string(r.Meta.Mode), r.Meta.Model})
		row.AddCell().SetInt(r.Meta.TrialsAttempted)
		row.AddCell().SetInt(r.Meta.Votes)
		if r.OASIS.Confidence != nil {
			row.AddCell().SetFloat(*r.OASIS.Confidence)
		} else {
			row.AddCell().SetString("")
		}
		for _, k := range model.ItemKeys {
			it := r.OASIS.Get(k)
			addStrings(row, []string{string(it.Value), source(r, k), it.Evidence})
		}
		addStrings(row, []string{r.Summary, r.Meta.Digest})
	}

	summary, err := f.AddSheet(SheetModes)
	if err != nil {
		return nil, eris.Wrap(err, "report: add modes sheet")
	}
	addStrings(summary.AddRow(), []string{"Mode", "Extractions"})
	keys := make([]string, 0, len(modes))
	for m := range modes {
		keys = append(keys, string(m))
	}
	sort.Strings(keys)
	for _, m := range keys {
		row := summary.AddRow()
		row.AddCell().SetString(m)
		row.AddCell().SetInt(modes[model.Mode(m)])
	}
	return f, nil
}

// Write renders results to w.
func Write(w io.Writer, results []model.ExtractionResult) error {
	f, err := Build(results)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "report: write workbook")
}

// WriteFile renders results to path.
func WriteFile(path string, results []model.ExtractionResult) error {
	f, err := Build(results)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

// source is the provenance tag, or the mode for single-call results.
func source(r *model.ExtractionResult, k model.ItemKey) string {
	if s, ok := r.Meta.Provenance[k]; ok {
		return string(s)
	}
	return string(r.Meta.Mode)
}

func addStrings(row *xlsx.Row, vals []string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}
