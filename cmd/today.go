package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/camden-git/faceattend/models"
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show the attendance log of a day",
	Long: `Show who checked in on a day (default today) and who is still absent.

Examples:
  faceattend today
  faceattend today --date 2024-03-01`,
	Args: cobra.NoArgs,
	RunE: runToday,
}

func init() {
	rootCmd.AddCommand(todayCmd)
	todayCmd.Flags().String("date", "", "Day to show as YYYY-MM-DD (default today)")
}

func runToday(cmd *cobra.Command, args []string) error {
	date := mustGetString(cmd, "date")
	if date == "" {
		date = time.Now().Format(models.DateLayout)
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	repo, err := a.openEmployees()
	if err != nil {
		return err
	}

	ctx := context.Background()
	employees, err := repo.ListAll(ctx)
	if err != nil {
		return err
	}
	records, err := repo.ListAttendanceByDate(ctx, date)
	if err != nil {
		return err
	}

	present := make(map[uint]bool, len(records))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Attendance for %s\n\n", date)
	fmt.Fprintln(w, "TIME\tNAME")
	for _, r := range records {
		present[r.EmployeeID] = true
		fmt.Fprintf(w, "%s\t%s\n", r.Time, r.EmployeeName)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	var absent []string
	for _, e := range employees {
		if !present[e.ID] {
			absent = append(absent, e.Name)
		}
	}
	fmt.Printf("\nTotal %d, present %d, absent %d\n", len(employees), len(present), len(absent))
	for _, n := range absent {
		fmt.Printf("  absent: %s\n", n)
	}
	return nil
}
