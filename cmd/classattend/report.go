package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"classattend/internal/attendance"
	"classattend/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write day or month attendance reports",
}

var reportDayCmd = &cobra.Command{
	Use:   "day",
	Short: "Write the day report of a class/section as CSV",
	Long:  `Every student of the class/section appears once; students without a record read as Absent.`,
	Args:  cobra.NoArgs,
	RunE:  runReportDay,
}

var reportMonthCmd = &cobra.Command{
	Use:   "month",
	Short: "Write the month report of a class/section as CSV or Excel",
	Long:  `Counts Present records and all stored records per student within the month.`,
	Args:  cobra.NoArgs,
	RunE:  runReportMonth,
}

func init() {
	reportDayCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
	reportDayCmd.Flags().String("out", "", `Output file (default <class>_<section>_<date>.csv, "-" for stdout)`)
	addClassFlags(reportDayCmd)

	reportMonthCmd.Flags().String("month", "", "Month as YYYY-MM")
	reportMonthCmd.Flags().String("format", "csv", "csv or xlsx")
	reportMonthCmd.Flags().String("out", "", `Output file (default <class>_<section>_<month>.<format>, "-" for stdout)`)
	addClassFlags(reportMonthCmd)
	_ = reportMonthCmd.MarkFlagRequired("month")

	reportCmd.AddCommand(reportDayCmd, reportMonthCmd)
	rootCmd.AddCommand(reportCmd)
}

// writeOutput writes via fn to path, or to stdout for "-".
func writeOutput(path string, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	return nil
}

func runReportDay(cmd *cobra.Command, args []string) error {
	date, err := dateFlag(cmd)
	if err != nil {
		return err
	}
	class, section := mustGetString(cmd, "class"), mustGetString(cmd, "section")
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.Service.Repo().DayReport(cmd.Context(), class, section, date)
	if err != nil {
		return err
	}
	out := mustGetString(cmd, "out")
	if out == "" {
		out = report.DayFileName(class, section, date)
	}
	return writeOutput(out, func(w io.Writer) error { return report.WriteDayCSV(w, rows) })
}

func runReportMonth(cmd *cobra.Command, args []string) error {
	month, err := attendance.ParseMonth(mustGetString(cmd, "month"))
	if err != nil {
		return err
	}
	format := mustGetString(cmd, "format")
	if format != "csv" && format != "xlsx" {
		return fmt.Errorf("--format must be csv or xlsx, got %q", format)
	}
	class, section := mustGetString(cmd, "class"), mustGetString(cmd, "section")
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.Service.Repo().MonthReport(cmd.Context(), class, section, month)
	if err != nil {
		return err
	}
	out := mustGetString(cmd, "out")
	if out == "" {
		out = report.MonthFileName(class, section, month, format)
	}
	return writeOutput(out, func(w io.Writer) error {
		if format == "xlsx" {
			return report.WriteMonthXLSX(w, month, rows)
		}
		return report.WriteMonthCSV(w, rows)
	})
}
