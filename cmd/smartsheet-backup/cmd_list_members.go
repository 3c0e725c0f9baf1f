/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/toothbrush/smartsheet-backup/internal/termfmt"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
	"golang.org/x/exp/maps"
)

var listMembersCmd = &cobra.Command{
	Use:   "members",
	Short: "List all members of the organization",
	Long: `
Lists every member the access token can see, with their status.  Only ACTIVE members are backed up.
`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListMembers(cmd.Context(), os.Stdout)
	},
}

func init() {
	listCmd.AddCommand(listMembersCmd)
}

func runListMembers(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	api, stop, err := newAPI(false)
	if err != nil {
		return err
	}
	defer stop()

	members, err := smartsheet.ListAllMembers(ctx, smartsheet.NewResilientService(api, smartsheet.DefaultRetryOptions()))
	if err != nil {
		return fmt.Errorf("smartsheet-backup: couldn't list members: %w", err)
	}

	printMembers(out, members)
	return nil
}

func printMembers(out io.Writer, members []smartsheet.User) {
	slices.SortFunc(members, func(a, b smartsheet.User) int {
		return strings.Compare(strings.ToLower(a.Email), strings.ToLower(b.Email))
	})

	counts := map[smartsheet.UserStatus]int{}
	for _, m := range members {
		counts[m.Status]++
		status := termfmt.Fg(termfmt.Green).V(m.Status)
		if m.Status != smartsheet.StatusActive {
			status = termfmt.Fg(termfmt.Yellow).V(m.Status)
		}
		name := m.Name
		if name == "" {
			name = strings.TrimSpace(m.FirstName + " " + m.LastName)
		}
		fmt.Fprintf(out, "  - %-40s %-10v %s\n", m.Email, status, name)
	}

	statuses := maps.Keys(counts)
	slices.Sort(statuses)
	fmt.Fprintf(out, "\n%v members:", termfmt.Bold().V(len(members)))
	for _, status := range statuses {
		fmt.Fprintf(out, " %d %s", counts[status], status)
	}
	fmt.Fprintln(out)
}
