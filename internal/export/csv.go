// Package export writes attendance records as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// Header is the first CSV row.
var Header = []string{"Matric", "Name", "Date", "Timestamp"}

// Filename returns the download name for an export created at t.
func Filename(t time.Time) string {
	return "attendance_" + t.Format("20060102_150405") + ".csv"
}

// WriteCSV writes the header followed by one line per row, in the given order.
func WriteCSV(w io.Writer, rows []database.AttendanceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Matric, r.Name, r.Date, r.Timestamp}); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Attendance loads the records matching filter and writes them as CSV,
// newest date first. It returns the number of data rows written.
func Attendance(ctx context.Context, reader database.AttendanceReader, filter database.AttendanceFilter, w io.Writer) (int, error) {
	rows, err := reader.ListAttendance(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("listing attendance: %w", err)
	}
	if err := WriteCSV(w, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
