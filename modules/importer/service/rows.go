package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"

	"github.com/xuri/excelize/v2"
)

// rowTimeLayout is the start-time format accepted in uploaded files,
// interpreted in the business timezone.
const rowTimeLayout = "2006-01-02 15:04"

var requiredColumns = []string{"customer_name", "customer_email", "pet_name", "service_name", "start_time"}

// RowParseError reports one unusable file row; the rest of the file still
// imports.
type RowParseError struct {
	RowNumber int    `json:"row_number"`
	Reason    string `json:"reason"`
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
}

// ParseCSV reads candidate rows from an uploaded CSV. The first record is
// the header; unknown columns are ignored.
func ParseCSV(r io.Reader, loc *time.Location) ([]CandidateRow, []RowParseError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	return parseRecords(records, loc)
}

// ParseXLSX reads candidate rows from the first sheet of an uploaded
// workbook.
func ParseXLSX(r io.Reader, loc *time.Location) ([]CandidateRow, []RowParseError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return parseRecords(records, loc)
}

func parseRecords(records [][]string, loc *time.Location) ([]CandidateRow, []RowParseError, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("file is empty")
	}

	columns := map[string]int{}
	for i, name := range records[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", required)
		}
	}

	cell := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []CandidateRow
	var rowErrs []RowParseError
	for i, record := range records[1:] {
		rowNumber := i + 2 // 1-based, after the header
		if isBlank(record) {
			continue
		}

		row := CandidateRow{
			RowNumber:     rowNumber,
			CustomerName:  cell(record, "customer_name"),
			CustomerEmail: cell(record, "customer_email"),
			CustomerPhone: cell(record, "customer_phone"),
			PetName:       cell(record, "pet_name"),
			ServiceName:   cell(record, "service_name"),
			Notes:         cell(record, "notes"),
			Status:        apptEntity.StatusScheduled,
		}

		missing := ""
		switch {
		case row.CustomerName == "":
			missing = "customer_name"
		case row.CustomerEmail == "":
			missing = "customer_email"
		case row.PetName == "":
			missing = "pet_name"
		case row.ServiceName == "":
			missing = "service_name"
		}
		if missing != "" {
			rowErrs = append(rowErrs, RowParseError{RowNumber: rowNumber, Reason: "missing " + missing})
			continue
		}

		start, err := time.ParseInLocation(rowTimeLayout, cell(record, "start_time"), loc)
		if err != nil {
			rowErrs = append(rowErrs, RowParseError{RowNumber: rowNumber, Reason: "bad start_time, expected YYYY-MM-DD HH:MM"})
			continue
		}
		row.StartTime = start

		if raw := cell(record, "status"); raw != "" {
			status := apptEntity.AppointmentStatus(strings.ToLower(raw))
			switch status {
			case apptEntity.StatusScheduled, apptEntity.StatusConfirmed, apptEntity.StatusCheckedIn,
				apptEntity.StatusCompleted, apptEntity.StatusCancelled, apptEntity.StatusNoShow:
				row.Status = status
			default:
				rowErrs = append(rowErrs, RowParseError{RowNumber: rowNumber, Reason: "unknown status " + raw})
				continue
			}
		}
		if raw := cell(record, "add_ons"); raw != "" {
			for _, name := range strings.Split(raw, ",") {
				if trimmed := strings.TrimSpace(name); trimmed != "" {
					row.AddOnNames = append(row.AddOnNames, trimmed)
				}
			}
		}

		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
