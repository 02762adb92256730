package utils

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ContactRow is one parsed row of an uploaded contact sheet: the phone number
// from the first column and the position-keyed template variables from the
// remaining columns.
type ContactRow struct {
	Phone     string
	Variables []string
}

// ParseContactSheet reads an .xlsx workbook whose first sheet lists one contact
// per row: column A is the phone number, columns B..N are template variables in
// position order. A header row is skipped when column A of the first row does
// not look like a phone number. Empty rows are ignored.
func ParseContactSheet(r io.Reader) ([]ContactRow, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open contact sheet: %w", err)
	}
	defer xl.Close()

	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("contact sheet has no worksheets")
	}

	rows, err := xl.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read contact sheet rows: %w", err)
	}

	contacts := make([]ContactRow, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if i == 0 && !looksLikePhone(row[0]) {
			continue
		}

		contact := ContactRow{Phone: NormalizePhone(row[0])}
		for _, cell := range row[1:] {
			contact.Variables = append(contact.Variables, strings.TrimSpace(cell))
		}
		// Drop trailing empty variable columns
		for len(contact.Variables) > 0 && contact.Variables[len(contact.Variables)-1] == "" {
			contact.Variables = contact.Variables[:len(contact.Variables)-1]
		}
		contacts = append(contacts, contact)
	}

	return contacts, nil
}

func looksLikePhone(s string) bool {
	s = NormalizePhone(s)
	if s == "" {
		return false
	}
	digits := 0
	for i, r := range s {
		if r == '+' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
		digits++
	}
	return digits >= 7
}
