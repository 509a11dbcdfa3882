package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List people enrolled in the gallery",
	Args:  cobra.NoArgs,
	RunE:  runPeople,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
	peopleCmd.Flags().Bool("json", false, "Output as JSON")
}

func runPeople(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	g, err := a.openGallery()
	if err != nil {
		return err
	}

	people, err := g.ListPersons(context.Background())
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(people)
	}
	if len(people) == 0 {
		fmt.Println("No people enrolled yet. Use 'faceattend train' to add samples.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSAMPLES")
	for _, p := range people {
		fmt.Fprintf(w, "%s\t%d\n", p.Name, p.SampleCount)
	}
	return w.Flush()
}
