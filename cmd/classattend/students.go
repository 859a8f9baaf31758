package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"classattend/internal/attendance"
)

var addStudentCmd = &cobra.Command{
	Use:   "add-student",
	Short: "Enroll a student from a photo and retrain the classifier",
	Args:  cobra.NoArgs,
	RunE:  runAddStudent,
}

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List enrolled students",
	Long:  `Lists the whole roster, or one class/section when both --class and --section are given.`,
	Args:  cobra.NoArgs,
	RunE:  runStudents,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show one student's attendance for a month",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	addStudentCmd.Flags().String("name", "", "Student name")
	addStudentCmd.Flags().String("photo", "", "Path to the student's photo (JPEG, PNG or BMP)")
	addStudentCmd.Flags().String("qr-out", "", "Also write the student's QR code PNG to this path")
	addClassFlags(addStudentCmd)
	_ = addStudentCmd.MarkFlagRequired("name")
	_ = addStudentCmd.MarkFlagRequired("photo")

	studentsCmd.Flags().String("class", "", "Filter by class")
	studentsCmd.Flags().String("section", "", "Filter by section")

	historyCmd.Flags().Int64("id", 0, "Student id")
	historyCmd.Flags().String("month", "", "Month as YYYY-MM")
	_ = historyCmd.MarkFlagRequired("id")
	_ = historyCmd.MarkFlagRequired("month")

	rootCmd.AddCommand(addStudentCmd, studentsCmd, historyCmd)
}

func runAddStudent(cmd *cobra.Command, args []string) error {
	photo, err := readFile(mustGetString(cmd, "photo"), "photo")
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Service.AddStudent(cmd.Context(), attendance.EnrollRequest{
		Name:    mustGetString(cmd, "name"),
		Class:   mustGetString(cmd, "class"),
		Section: mustGetString(cmd, "section"),
		Photo:   photo,
	})
	if res.Student.ID > 0 {
		fmt.Printf("Enrolled %s in %s-%s with id %d\n", res.Student.Name, res.Student.Class, res.Student.Section, res.Student.ID)
	}
	if err != nil {
		return err
	}
	fmt.Printf("QR code: %s\n", res.QRRef)
	if out := mustGetString(cmd, "qr-out"); out != "" {
		if err := os.WriteFile(out, res.QRImage, 0o644); err != nil {
			return fmt.Errorf("write qr: %w", err)
		}
		fmt.Printf("QR code written to %s\n", out)
	}
	if res.RetrainErr != nil {
		fmt.Printf("Warning: retraining failed: %v\n", res.RetrainErr)
	} else {
		fmt.Printf("Classifier retrained (version %d, %d photos)\n", res.Model.Version, res.Model.Samples)
	}
	return nil
}

func runStudents(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	students, err := a.Service.Repo().ListStudents(cmd.Context(), mustGetString(cmd, "class"), mustGetString(cmd, "section"))
	if err != nil {
		return err
	}
	if len(students) == 0 {
		fmt.Println("No students enrolled.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCLASS\tSECTION\tQR\tENROLLED")
	for _, s := range students {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Class, s.Section, s.QRRef, s.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	month, err := attendance.ParseMonth(mustGetString(cmd, "month"))
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id := mustGetInt64(cmd, "id")
	st, err := a.Service.Repo().GetStudent(cmd.Context(), id)
	if err != nil {
		return err
	}
	rows, err := a.Service.Repo().StudentHistory(cmd.Context(), id, month)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d), class %s-%s, %s\n", st.Name, st.ID, st.Class, st.Section, month)
	present := 0
	for _, r := range rows {
		fmt.Printf("  %s  %s\n", r.Date, r.Status)
		if r.Status == attendance.StatusPresent {
			present++
		}
	}
	fmt.Printf("Present %d of %d recorded days\n", present, len(rows))
	return nil
}
