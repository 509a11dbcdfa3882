package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/repository"
)

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "Manage the employee directory",
}

var employeesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List employees and their status",
	Args:  cobra.NoArgs,
	RunE:  runEmployeesList,
}

var employeesImportCmd = &cobra.Command{
	Use:   "import <roster.yaml>",
	Short: "Create or update employees from a YAML roster",
	Long: `Create or update employees from a YAML roster. Existing employees (matched
by name) get their department updated; aliases are added when missing.

Roster format:
  employees:
    - name: Alice Smith
      department: Engineering
      aliases: [Alice]
    - name: Bob
      department: Sales`,
	Args: cobra.ExactArgs(1),
	RunE: runEmployeesImport,
}

var employeesResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mark every employee absent for a new day",
	Long: `Mark every employee absent. Attendance rows are kept; only the status
column shown on the dashboard is reset. Intended to run from a daily timer.`,
	Args: cobra.NoArgs,
	RunE: runEmployeesReset,
}

func init() {
	rootCmd.AddCommand(employeesCmd)
	employeesCmd.AddCommand(employeesListCmd, employeesImportCmd, employeesResetCmd)
}

type rosterEntry struct {
	Name       string   `yaml:"name"`
	Department string   `yaml:"department"`
	Aliases    []string `yaml:"aliases"`
}

type roster struct {
	Employees []rosterEntry `yaml:"employees"`
}

// parseRoster decodes and validates a roster file. names are trimmed and must
// be unique across employees and aliases.
func parseRoster(data []byte) ([]rosterEntry, error) {
	var r roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	seen := make(map[string]bool)
	claim := func(name string, idx int) error {
		if seen[name] {
			return fmt.Errorf("roster entry %d: name %q is used more than once", idx+1, name)
		}
		seen[name] = true
		return nil
	}

	entries := make([]rosterEntry, 0, len(r.Employees))
	for i, e := range r.Employees {
		e.Name = strings.TrimSpace(e.Name)
		e.Department = strings.TrimSpace(e.Department)
		if e.Name == "" {
			return nil, fmt.Errorf("roster entry %d: name is required", i+1)
		}
		if err := claim(e.Name, i); err != nil {
			return nil, err
		}
		aliases := make([]string, 0, len(e.Aliases))
		for _, a := range e.Aliases {
			if a = strings.TrimSpace(a); a == "" {
				continue
			}
			if err := claim(a, i); err != nil {
				return nil, err
			}
			aliases = append(aliases, a)
		}
		e.Aliases = aliases
		entries = append(entries, e)
	}
	return entries, nil
}

// importRoster upserts every entry and reports how many employees were created and updated.
func importRoster(ctx context.Context, repo repository.EmployeeRepositoryInterface, entries []rosterEntry) (created, updated int, err error) {
	for _, e := range entries {
		employee := &models.Employee{Name: e.Name, Department: e.Department}
		isNew, err := repo.Upsert(ctx, employee)
		if err != nil {
			return created, updated, err
		}
		if isNew {
			created++
		} else {
			updated++
		}
		for _, alias := range e.Aliases {
			if err := repo.AddAlias(ctx, employee.ID, alias); err != nil {
				return created, updated, err
			}
		}
	}
	return created, updated, nil
}

func runEmployeesImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read roster: %w", err)
	}
	entries, err := parseRoster(data)
	if err != nil {
		return err
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

	created, updated, err := importRoster(context.Background(), repo, entries)
	if err != nil {
		return err
	}
	fmt.Printf("Imported roster: %d created, %d updated\n", created, updated)
	return nil
}

func runEmployeesList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	repo, err := a.openEmployees()
	if err != nil {
		return err
	}

	employees, err := repo.ListAll(context.Background())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tPRESENT\tALIASES")
	for _, e := range employees {
		aliases := make([]string, len(e.Aliases))
		for i, al := range e.Aliases {
			aliases[i] = al.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Department, e.Status, strings.Join(aliases, ", "))
	}
	return w.Flush()
}

func runEmployeesReset(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	repo, err := a.openEmployees()
	if err != nil {
		return err
	}

	n, err := repo.ResetStatuses(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Marked %d employee(s) absent\n", n)
	return nil
}
