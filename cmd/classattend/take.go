package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classattend/internal/attendance"
)

var takeCmd = &cobra.Command{
	Use:   "take",
	Short: "Take attendance for a class/section from a class photo",
	Long: `Detects and recognises every face in the photo. Recognised students are
marked Present; every other student of the class/section is marked Absent.
Rerunning for the same date overwrites the earlier result.`,
	Args: cobra.NoArgs,
	RunE: runTake,
}

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Mark one student present by id or QR code image",
	Long:  `Marks a student Present for the date. A typed --id wins over --qr when both are given.`,
	Args:  cobra.NoArgs,
	RunE:  runOverride,
}

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Retrain the classifier over the whole roster",
	Args:  cobra.NoArgs,
	RunE:  runRetrain,
}

func init() {
	takeCmd.Flags().String("photo", "", "Path to the class photo")
	takeCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
	addClassFlags(takeCmd)
	_ = takeCmd.MarkFlagRequired("photo")

	overrideCmd.Flags().String("id", "", "Student id")
	overrideCmd.Flags().String("qr", "", "Path to an image of the student's QR code")
	overrideCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
	overrideCmd.MarkFlagsOneRequired("id", "qr")

	rootCmd.AddCommand(takeCmd, overrideCmd, retrainCmd)
}

func runTake(cmd *cobra.Command, args []string) error {
	date, err := dateFlag(cmd)
	if err != nil {
		return err
	}
	photo, err := readFile(mustGetString(cmd, "photo"), "photo")
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, finish := progress("Recognising faces", "faces")
	res, err := a.Service.TakeAttendance(cmd.Context(), attendance.PassRequest{
		Image:    photo,
		Class:    mustGetString(cmd, "class"),
		Section:  mustGetString(cmd, "section"),
		Date:     date,
		Progress: report,
	})
	finish()
	if err != nil {
		return err
	}

	fmt.Printf("Class %s-%s on %s: %d face(s), model version %d\n", res.Class, res.Section, res.Date, res.FacesDetected, res.ModelVersion)
	for _, m := range res.Matches {
		fmt.Printf("  face #%d  %s (%d)  confidence %.1f\n", m.FaceIndex, m.Name, m.StudentID, m.Confidence)
	}
	for _, u := range res.Unknown {
		fmt.Printf("  face #%d  unknown  confidence %.1f\n", u.Index, u.Confidence)
	}
	fmt.Printf("Present %d, absent %d, total %d\n", res.Present, res.Absent, res.Total)
	return nil
}

func runOverride(cmd *cobra.Command, args []string) error {
	date, err := dateFlag(cmd)
	if err != nil {
		return err
	}
	qrImage, err := readFile(mustGetString(cmd, "qr"), "qr image")
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Service.Override(cmd.Context(), attendance.OverrideInput{
		QRImage: qrImage,
		Typed:   mustGetString(cmd, "id"),
	}, date)
	if err != nil {
		return err
	}
	fmt.Printf("Marked %s (%d, %s-%s) present on %s\n", st.Name, st.ID, st.Class, st.Section, date)
	return nil
}

func runRetrain(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, finish := progress("Reading photos", "students")
	m, err := a.Service.Retrain(cmd.Context(), report)
	finish()
	if err != nil {
		return err
	}
	fmt.Printf("Classifier retrained: version %d from %d photos\n", m.Version, m.Samples)
	return nil
}
