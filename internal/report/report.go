package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/xuri/excelize/v2"

	"classattend/internal/attendance"
)

var (
	dayHeader   = []string{"id", "name", "status"}
	monthHeader = []string{"id", "name", "presents", "total_marked"}
)

// DayFileName names the CSV download of a day report.
func DayFileName(class, section string, date civil.Date) string {
	return fmt.Sprintf("%s_%s_%s.csv", class, section, date)
}

// MonthFileName names a month report download; ext is "csv" or "xlsx".
func MonthFileName(class, section string, month attendance.Month, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", class, section, month, ext)
}

// WriteDayCSV writes rows with an id,name,status header.
func WriteDayCSV(w io.Writer, rows []attendance.DayRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(dayHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{strconv.FormatInt(r.ID, 10), r.Name, string(r.Status)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMonthCSV writes rows with an id,name,presents,total_marked header.
func WriteMonthCSV(w io.Writer, rows []attendance.MonthRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(monthHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{strconv.FormatInt(r.ID, 10), r.Name, strconv.Itoa(r.Presents), strconv.Itoa(r.TotalMarked)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMonthXLSX writes the month report as a workbook with a single sheet
// named after the month.
func WriteMonthXLSX(w io.Writer, month attendance.Month, rows []attendance.MonthRow) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := month.String()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(monthHeader))
	for i, h := range monthHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{r.ID, r.Name, r.Presents, r.TotalMarked}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
