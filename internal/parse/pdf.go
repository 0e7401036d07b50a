package parse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/perr"
)

const cutoutHeaderPrefix = "Date Loads Carcass Loin Butt Pic Rib Ham Belly"

// PDFExtract implements the PK600 morning cutout PDF strategy: extract the
// first page's text, locate the cutout table header, find the data line
// whose prefix matches targetDateStr (MM/DD/YYYY), and split out the
// numeric columns plus the optional following change line. found reports
// whether a row for targetDateStr was located — the caller treats a miss as
// waiting_for_publication rather than a parse failure.
//
// Grounded in original_source's pk600_morning_cutout_pdf.py.
func PDFExtract(schema domain.ReportSchema, body []byte, targetDateStr string) (fields map[string]any, found bool, err error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, false, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("open pdf: %w", err)}
	}

	pageCount := reader.NumPage()
	pageText := ""
	if pageCount > 0 {
		page := reader.Page(1)
		if !page.V.IsNull() {
			text, err := page.GetPlainText(nil)
			if err == nil {
				pageText = text
			}
		}
	}
	textExcerpt := truncateRunes(pageText, 1000)

	rowFields, found := extractCutoutFields(pageText, targetDateStr)
	out := map[string]any{
		"report_date":  isoFromUSDate(targetDateStr),
		"text_excerpt": textExcerpt,
		"page_count":   pageCount,
	}
	for k, v := range rowFields {
		out[k] = v
	}
	return out, found, nil
}

func extractCutoutFields(text, targetDateStr string) (map[string]any, bool) {
	lines := nonEmptyLines(text)
	headerIdx := -1
	for i, line := range lines {
		if strings.HasPrefix(line, cutoutHeaderPrefix) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return nil, false
	}

	var dataLine, changeLine string
	for i := headerIdx + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], targetDateStr) {
			dataLine = lines[i]
			if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "Change:") {
				changeLine = lines[i+1]
			}
			break
		}
	}
	if dataLine == "" {
		return nil, false
	}

	parts := strings.Fields(dataLine)
	if len(parts) < 9 {
		return nil, false
	}

	fields := map[string]any{
		"loads":   parts[1],
		"carcass": parts[2],
		"loin":    parts[3],
		"butt":    parts[4],
		"pic":     parts[5],
		"rib":     parts[6],
		"ham":     parts[7],
		"belly":   parts[8],
	}

	if changeLine != "" {
		changeParts := strings.Fields(strings.TrimPrefix(changeLine, "Change:"))
		switch len(changeParts) {
		case 7:
			fields["change_carcass"] = changeParts[0]
			fields["change_loin"] = changeParts[1]
			fields["change_butt"] = changeParts[2]
			fields["change_pic"] = changeParts[3]
			fields["change_rib"] = changeParts[4]
			fields["change_ham"] = changeParts[5]
			fields["change_belly"] = changeParts[6]
		default:
			if len(changeParts) >= 8 {
				fields["change_loads"] = changeParts[0]
				fields["change_carcass"] = changeParts[1]
				fields["change_loin"] = changeParts[2]
				fields["change_butt"] = changeParts[3]
				fields["change_pic"] = changeParts[4]
				fields["change_rib"] = changeParts[5]
				fields["change_ham"] = changeParts[6]
				fields["change_belly"] = changeParts[7]
			}
		}
	}

	return fields, true
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
