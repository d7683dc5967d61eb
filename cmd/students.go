package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/spf13/cobra"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Manage the student roster",
}

var studentsRegisterCmd = &cobra.Command{
	Use:   "register <matric> <name>",
	Short: "Register a student",
	Long: `Register a student in the roster.
An existing student keeps their name; registering the same matric again is a no-op.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runStudentsRegister,
}

var studentsImportCmd = &cobra.Command{
	Use:   "import <roster.yaml>",
	Short: "Register every student listed in a YAML roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsImport,
}

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered students",
	Args:  cobra.NoArgs,
	RunE:  runStudentsList,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(studentsRegisterCmd)
	studentsCmd.AddCommand(studentsImportCmd)
	studentsCmd.AddCommand(studentsListCmd)

	studentsListCmd.Flags().String("search", "", "Only list students whose matric or name matches (accents ignored)")
}

func runStudentsRegister(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	matric := args[0]
	name := strings.Join(args[1:], " ")

	a, err := openLedgerApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	inserted, err := a.service.RegisterStudent(ctx, matric, name)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", matric, err)
	}
	if inserted {
		fmt.Printf("Registered %s (%s)\n", matric, name)
	} else {
		fmt.Printf("Student %s is already registered\n", matric)
	}
	return nil
}

func runStudentsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	roster, err := attendance.LoadRoster(args[0])
	if err != nil {
		return err
	}

	a, err := openLedgerApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	inserted, err := a.service.ImportRoster(ctx, roster)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d students (%d new)\n", len(roster.Students), inserted)
	return nil
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	search := mustGetString(cmd, "search")

	a, err := openLedgerApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	students, err := a.ledger.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}
	students = filterStudents(students, search)

	if len(students) == 0 {
		fmt.Println("No students found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MATRIC\tNAME")
	fmt.Fprintln(w, "------\t----")
	for _, s := range students {
		fmt.Fprintf(w, "%s\t%s\n", s.Matric, s.Name)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d students\n", len(students))
	return nil
}

func filterStudents(students []database.Student, query string) []database.Student {
	if query == "" {
		return students
	}
	var out []database.Student
	for _, s := range students {
		if facematch.MatchesStudent(s.Matric, s.Name, query) {
			out = append(out, s)
		}
	}
	return out
}
