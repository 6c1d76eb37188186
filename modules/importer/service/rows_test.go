package service

import (
	"strings"
	"testing"
	"time"

	apptEntity "github.com/jonlee90/thepuppyday-sub014/modules/appointment/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvHeader = "customer_name,customer_email,customer_phone,pet_name,service_name,start_time,status,add_ons,notes\n"

func TestParseCSV(t *testing.T) {
	body := csvHeader +
		"Sarah Chen,sarah@example.com,555-0142,Biscuit,Full Groom,2025-06-20 10:00,confirmed,\"Nail Trim, Teeth Brushing\",gentle please\n" +
		"John Lee,john@example.com,,Max,Bath & Brush,2025-06-20 14:30,,,\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(body), time.UTC)
	require.NoError(t, err)
	require.Empty(t, rowErrs)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, 2, first.RowNumber)
	assert.Equal(t, "Sarah Chen", first.CustomerName)
	assert.Equal(t, "sarah@example.com", first.CustomerEmail)
	assert.Equal(t, "Biscuit", first.PetName)
	assert.Equal(t, "Full Groom", first.ServiceName)
	assert.Equal(t, time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC), first.StartTime)
	assert.Equal(t, apptEntity.StatusConfirmed, first.Status)
	assert.Equal(t, []string{"Nail Trim", "Teeth Brushing"}, first.AddOnNames)
	assert.Equal(t, "gentle please", first.Notes)

	second := rows[1]
	assert.Equal(t, 3, second.RowNumber)
	assert.Equal(t, apptEntity.StatusScheduled, second.Status, "status defaults to scheduled")
	assert.Empty(t, second.AddOnNames)
}

func TestParseCSVMissingRequiredColumn(t *testing.T) {
	body := "customer_name,pet_name,service_name,start_time\nSarah,Biscuit,Groom,2025-06-20 10:00\n"

	_, _, err := ParseCSV(strings.NewReader(body), time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer_email")
}

func TestParseCSVRowLevelErrors(t *testing.T) {
	body := csvHeader +
		",sarah@example.com,,Biscuit,Full Groom,2025-06-20 10:00,,,\n" +
		"John Lee,john@example.com,,Max,Bath,junk time,,,\n" +
		"Ana Ruiz,ana@example.com,,Luna,Bath,2025-06-21 09:00,arrived,,\n" +
		"Ok Row,ok@example.com,,Rex,Bath,2025-06-21 11:00,,,\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ok Row", rows[0].CustomerName)

	require.Len(t, rowErrs, 3)
	assert.Equal(t, 2, rowErrs[0].RowNumber)
	assert.Contains(t, rowErrs[0].Reason, "customer_name")
	assert.Equal(t, 3, rowErrs[1].RowNumber)
	assert.Contains(t, rowErrs[1].Reason, "start_time")
	assert.Equal(t, 4, rowErrs[2].RowNumber)
	assert.Contains(t, rowErrs[2].Reason, "unknown status")
}

func TestParseCSVSkipsBlankRows(t *testing.T) {
	body := csvHeader +
		"Sarah Chen,sarah@example.com,,Biscuit,Full Groom,2025-06-20 10:00,,,\n" +
		",,,,,,,,\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(body), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Len(t, rows, 1)
}

func TestParseCSVTimesUseBusinessTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	body := csvHeader +
		"Sarah Chen,sarah@example.com,,Biscuit,Full Groom,2025-06-20 10:00,,,\n"

	rows, _, err := ParseCSV(strings.NewReader(body), loc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, time.Date(2025, 6, 20, 10, 0, 0, 0, loc), rows[0].StartTime)
}

func TestParseCSVEmptyFile(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader(""), time.UTC)
	require.Error(t, err)
}

func TestParseCSVHeaderIsCaseInsensitive(t *testing.T) {
	body := "Customer_Name,CUSTOMER_EMAIL,Pet_Name,Service_Name,Start_Time\n" +
		"Sarah Chen,sarah@example.com,Biscuit,Full Groom,2025-06-20 10:00\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(body), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 1)
	assert.Equal(t, "Sarah Chen", rows[0].CustomerName)
}
