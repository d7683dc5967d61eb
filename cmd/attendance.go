package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/export"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect and edit the attendance ledger",
}

var attendanceMarkCmd = &cobra.Command{
	Use:   "mark <matric>",
	Short: "Mark a student present today",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceMark,
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceList,
}

var attendanceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export attendance records to CSV",
	Long: `Export attendance records to a CSV file with the columns
Matric, Name, Date and Timestamp.
Without --out the file is named attendance_YYYYmmdd_HHMMSS.csv.`,
	Args: cobra.NoArgs,
	RunE: runAttendanceExport,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceMarkCmd)
	attendanceCmd.AddCommand(attendanceListCmd)
	attendanceCmd.AddCommand(attendanceExportCmd)

	attendanceListCmd.Flags().String("date", "", "Only show records of this date (YYYY-MM-DD)")
	attendanceListCmd.Flags().String("matric", "", "Only show records of this student")
	attendanceListCmd.Flags().Int("limit", constants.DefaultAttendanceLimit, "Maximum number of records (0 = no limit)")

	attendanceExportCmd.Flags().String("date", "", "Only export records of this date (YYYY-MM-DD)")
	attendanceExportCmd.Flags().String("out", "", "Output file or directory")
}

func validateDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse(database.DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return nil
}

func runAttendanceMark(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	matric := args[0]

	a, err := openLedgerApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	recorded, err := a.service.MarkAttendance(ctx, matric)
	if err != nil {
		return fmt.Errorf("failed to mark %s: %w", matric, err)
	}
	if recorded {
		fmt.Printf("%s marked present\n", matric)
	} else {
		fmt.Printf("%s was already marked today\n", matric)
	}
	return nil
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	filter := database.AttendanceFilter{
		Date:   mustGetString(cmd, "date"),
		Matric: mustGetString(cmd, "matric"),
		Limit:  mustGetInt(cmd, "limit"),
	}
	if err := validateDate(filter.Date); err != nil {
		return err
	}

	a, err := openLedgerApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.ledger.ListAttendance(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list attendance: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("No attendance records found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MATRIC\tNAME\tDATE\tTIMESTAMP")
	fmt.Fprintln(w, "------\t----\t----\t---------")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Matric, r.Name, r.Date, r.Timestamp)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d records\n", len(rows))
	return nil
}

// exportPath resolves --out: empty means the default name in the working
// directory, an existing directory gets the default name inside it.
func exportPath(out string, now time.Time) string {
	name := export.Filename(now)
	if out == "" {
		return name
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}

func runAttendanceExport(cmd *cobra.Command, args []string) (err error) {
	ctx := context.Background()
	filter := database.AttendanceFilter{Date: mustGetString(cmd, "date")}
	if err := validateDate(filter.Date); err != nil {
		return err
	}

	a, err := openLedgerApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path := exportPath(mustGetString(cmd, "out"), time.Now())
	f, err := os.Create(path) //nolint:gosec // user-chosen output path
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	n, err := export.Attendance(ctx, a.ledger, filter, f)
	if err != nil {
		return fmt.Errorf("failed to export attendance: %w", err)
	}
	fmt.Printf("Exported %d records to %s\n", n, path)
	return nil
}
