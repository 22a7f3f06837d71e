package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/database"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Manage tracked persons",
}

var personsAddCmd = &cobra.Command{
	Use:   "add <display-name>",
	Short: "Register a person",
	Long: `Register a person that face profiles can be enrolled for.

Examples:
  facegate persons add "Jana Nováková"
  facegate persons add "Jana Nováková" --id emp-0042`,
	Args: cobra.ExactArgs(1),
	RunE: runPersonsAdd,
}

var personsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active persons",
	Args:  cobra.NoArgs,
	RunE:  runPersonsList,
}

var personsStatusCmd = &cobra.Command{
	Use:   "status <person>",
	Short: "Show the attendance status of a person on a day",
	Long: `Show the status of the latest attendance record of a person on a day in the
reference timezone. <person> is an ID or a display name (accents and case are ignored).`,
	Args: cobra.ExactArgs(1),
	RunE: runPersonsStatus,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.AddCommand(personsAddCmd)
	personsCmd.AddCommand(personsListCmd)
	personsCmd.AddCommand(personsStatusCmd)

	personsAddCmd.Flags().String("id", "", "Person ID (defaults to a random UUID)")
	personsAddCmd.Flags().Bool("inactive", false, "Register the person as inactive")
	personsAddCmd.Flags().Bool("json", false, "Output as JSON")

	personsListCmd.Flags().Bool("json", false, "Output as JSON")

	personsStatusCmd.Flags().String("date", "", "Day as YYYY-MM-DD (default today)")
}

type personOutput struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPersonOutput(p database.Person) personOutput {
	return personOutput{ID: p.ID, DisplayName: p.DisplayName, Active: p.Active, CreatedAt: p.CreatedAt}
}

func runPersonsAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	name := strings.TrimSpace(args[0])
	if name == "" {
		return errors.New("display name must not be empty")
	}
	id := mustGetString(cmd, "id")
	if id == "" {
		id = uuid.NewString()
	}

	person := database.Person{
		ID:          id,
		DisplayName: name,
		Active:      !mustGetBool(cmd, "inactive"),
		CreatedAt:   time.Now(),
	}
	if err := a.store.SavePerson(ctx, person); err != nil {
		return fmt.Errorf("saving person: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return printJSON(toPersonOutput(person))
	}
	fmt.Printf("Registered %s (%s)\n", person.DisplayName, person.ID)
	return nil
}

func runPersonsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	persons, err := a.store.ListActivePersons(ctx)
	if err != nil {
		return fmt.Errorf("listing persons: %w", err)
	}

	if mustGetBool(cmd, "json") {
		out := make([]personOutput, len(persons))
		for i, p := range persons {
			out[i] = toPersonOutput(p)
		}
		return printJSON(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED")
	for _, p := range persons {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.DisplayName, p.CreatedAt.Format(time.DateOnly))
	}
	return w.Flush()
}

func runPersonsStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	person, err := resolvePerson(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	day, err := parseDay(mustGetString(cmd, "date"), a.engine.Location())
	if err != nil {
		return err
	}

	status, err := a.engine.CurrentStatus(ctx, person.ID, day)
	if err != nil {
		return err
	}
	fmt.Printf("%s on %s: %s\n", person.DisplayName, day.Format(time.DateOnly), status)
	return nil
}

// resolvePerson looks a person up by ID first and then by normalized display name.
func resolvePerson(ctx context.Context, store database.PersonReader, ref string) (*database.Person, error) {
	person, err := store.GetPerson(ctx, ref)
	if err == nil {
		return person, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("loading person %s: %w", ref, err)
	}

	matches, err := store.FindPersonsByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("searching persons: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("person %q not found", ref)
	case 1:
		return &matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, fmt.Errorf("name %q matches several persons (%s), use an ID", ref, strings.Join(ids, ", "))
	}
}

// parseDay parses YYYY-MM-DD in loc. Empty means now.
func parseDay(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Now().In(loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", value, err)
	}
	return day, nil
}
