package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/database"
)

var clearanceCmd = &cobra.Command{
	Use:   "clearance",
	Short: "Compute weekly clearance",
}

var clearanceComputeCmd = &cobra.Command{
	Use:   "compute <person> <site-id>",
	Short: "Recompute the clearance of one person at one site",
	Long: `Recompute and store the weekly clearance of a person at a site from the
stored attendance records. The week is Monday 00:00 to the next Monday 00:00
in the reference timezone (CLEARANCE_TIMEZONE).`,
	Args: cobra.ExactArgs(2),
	RunE: runClearanceCompute,
}

var clearanceRecomputeAllCmd = &cobra.Command{
	Use:   "recompute-all",
	Short: "Recompute every active person at every site with a weekly requirement",
	Args:  cobra.NoArgs,
	RunE:  runClearanceRecomputeAll,
}

func init() {
	rootCmd.AddCommand(clearanceCmd)
	clearanceCmd.AddCommand(clearanceComputeCmd)
	clearanceCmd.AddCommand(clearanceRecomputeAllCmd)

	clearanceComputeCmd.Flags().String("week", "", "Any day of the week as YYYY-MM-DD (default this week)")
	clearanceComputeCmd.Flags().Bool("json", false, "Output as JSON")

	clearanceRecomputeAllCmd.Flags().String("week", "", "Any day of the week as YYYY-MM-DD (default last week)")
	clearanceRecomputeAllCmd.Flags().Int("concurrency", 0, "Parallel recomputations (0 = CLEARANCE_CONCURRENCY)")
	clearanceRecomputeAllCmd.Flags().Bool("json", false, "Output as JSON")
}

type clearanceOutput struct {
	PersonID        string    `json:"person_id"`
	SiteID          string    `json:"site_id"`
	WeekStart       time.Time `json:"week_start"`
	WeekEnd         time.Time `json:"week_end"`
	AttendanceCount int       `json:"attendance_count"`
	RequiredCount   int       `json:"required_count"`
	Granted         bool      `json:"granted"`
	Level           int       `json:"level"`
	ComputedAt      time.Time `json:"computed_at"`
}

func runClearanceCompute(cmd *cobra.Command, args []string) error {
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
	week, err := parseDay(mustGetString(cmd, "week"), a.clearance.Location())
	if err != nil {
		return err
	}

	rec, err := a.clearance.Recompute(ctx, person.ID, args[1], week)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return printJSON(clearanceOutput(rec))
	}
	printClearance(person.DisplayName, rec)
	return nil
}

func printClearance(name string, rec database.ClearanceRecord) {
	verdict := "not granted"
	if rec.Granted {
		verdict = "granted"
	}
	fmt.Printf("%s at %s, week of %s: %s\n", name, rec.SiteID, rec.WeekStart.Format(time.DateOnly), verdict)
	fmt.Printf("  Attendance: %d of %d required\n", rec.AttendanceCount, rec.RequiredCount)
	fmt.Printf("  Level:      %d\n", rec.Level)
}

type recomputeOutput struct {
	WeekStart time.Time `json:"week_start"`
	Pairs     int       `json:"pairs"`
	Computed  int       `json:"computed"`
	Granted   int       `json:"granted"`
}

func runClearanceRecomputeAll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	loc := a.clearance.Location()
	week := attendance.WeekStart(time.Now(), loc).AddDate(0, 0, -7)
	if value := mustGetString(cmd, "week"); value != "" {
		week, err = parseDay(value, loc)
		if err != nil {
			return err
		}
	}
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency <= 0 {
		concurrency = a.cfg.Clearance.Concurrency
	}
	asJSON := mustGetBool(cmd, "json")

	// The pair count is only known inside RecomputeWeek, so the bar starts indeterminate.
	var onDone func()
	var bar *progressbar.ProgressBar
	if !asJSON {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Recomputing clearance"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("pairs"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		onDone = func() { _ = bar.Add(1) }
	}

	summary, err := a.clearance.RecomputeWeek(ctx, week, concurrency, onDone)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("recomputing week of %s: %w", summary.WeekStart.Format(time.DateOnly), err)
	}

	if asJSON {
		return printJSON(recomputeOutput{
			WeekStart: summary.WeekStart,
			Pairs:     summary.Pairs,
			Computed:  summary.Computed,
			Granted:   summary.Granted,
		})
	}
	fmt.Printf("Week of %s: computed %d of %d, granted %d\n",
		summary.WeekStart.Format(time.DateOnly), summary.Computed, summary.Pairs, summary.Granted)
	return nil
}
