package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/encoder"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Evaluate and record attendance captures",
}

var attendanceEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Decide an attendance capture",
	Long: `Decide whether a capture becomes an attendance record. Nothing is stored
unless --submit is given.

Examples:
  # Preview the decision for an image
  facegate attendance evaluate --image gate.jpg --lat 50.0755 --lon 14.4378

  # Record it, restricted to one person
  facegate attendance evaluate --encoding probe.json --lat 50.0755 --lon 14.4378 --person "Jana Nováková" --submit`,
	Args: cobra.NoArgs,
	RunE: runAttendanceEvaluate,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceEvaluateCmd)

	attendanceEvaluateCmd.Flags().String("image", "", "Capture image to detect and encode")
	attendanceEvaluateCmd.Flags().String("encoding", "", "JSON file with the encoding (- for stdin)")
	attendanceEvaluateCmd.Flags().Float64("lat", 0, "Reported latitude in degrees")
	attendanceEvaluateCmd.Flags().Float64("lon", 0, "Reported longitude in degrees")
	attendanceEvaluateCmd.Flags().String("person", "", "Restrict matching to this person (ID or name)")
	attendanceEvaluateCmd.Flags().String("status", "", "IN, OUT, BREAK or LUNCH (default: next after the day's last)")
	attendanceEvaluateCmd.Flags().Float64("tolerance", 0, "Match tolerance (0 = policy default)")
	attendanceEvaluateCmd.Flags().String("at", "", "Capture time in RFC 3339 (default now)")
	attendanceEvaluateCmd.Flags().String("actor", "", "Device or operator recorded with the capture")
	attendanceEvaluateCmd.Flags().Bool("submit", false, "Persist the record when accepted")
	attendanceEvaluateCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceEvaluateCmd.MarkFlagsMutuallyExclusive("image", "encoding")
	attendanceEvaluateCmd.MarkFlagsOneRequired("image", "encoding")
	_ = attendanceEvaluateCmd.MarkFlagRequired("lat")
	_ = attendanceEvaluateCmd.MarkFlagRequired("lon")
}

type outcomeOutput struct {
	Accepted        bool       `json:"accepted"`
	Reason          string     `json:"reason"`
	PersonID        string     `json:"person_id,omitempty"`
	ProfileID       string     `json:"profile_id,omitempty"`
	Distance        float64    `json:"distance"`
	Confidence      float64    `json:"confidence"`
	SiteID          *string    `json:"site_id,omitempty"`
	SiteDistance    float64    `json:"site_distance_meters,omitempty"`
	IsValidLocation bool       `json:"is_valid_location"`
	RecordID        string     `json:"record_id,omitempty"`
	Status          string     `json:"status,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	Persisted       bool       `json:"persisted"`
}

func runAttendanceEvaluate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	req := attendance.Request{
		Latitude:  mustGetFloat64(cmd, "lat"),
		Longitude: mustGetFloat64(cmd, "lon"),
		Status:    database.Status(mustGetString(cmd, "status")),
		Tolerance: mustGetFloat64(cmd, "tolerance"),
		Actor:     mustGetString(cmd, "actor"),
	}
	if at := mustGetString(cmd, "at"); at != "" {
		req.Timestamp, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at %q: %w", at, err)
		}
	}
	if ref := mustGetString(cmd, "person"); ref != "" {
		person, err := resolvePerson(ctx, a.store, ref)
		if err != nil {
			return err
		}
		req.PersonHint = person.ID
	}

	if imagePath := mustGetString(cmd, "image"); imagePath != "" {
		c, err := captureFromImage(ctx, encoder.NewClient(a.cfg.Embedding.URL), imagePath)
		if err != nil {
			return err
		}
		if c.Faces > 1 {
			fmt.Fprintf(os.Stderr, "Warning: %d faces detected, using the most confident one\n", c.Faces)
		}
		req.Encoding = c.Encoding
	} else {
		req.Encoding, err = loadEncoding(mustGetString(cmd, "encoding"))
		if err != nil {
			return err
		}
	}

	submit := mustGetBool(cmd, "submit")
	var outcome attendance.Outcome
	if submit {
		outcome, err = a.engine.Submit(ctx, req)
	} else {
		outcome, err = a.engine.EvaluateAttendance(ctx, req)
	}
	if err != nil && outcome.Reason == "" {
		return err
	}

	out := outcomeOutput{
		Accepted:        outcome.Accepted,
		Reason:          string(outcome.Reason),
		PersonID:        outcome.PersonID,
		ProfileID:       outcome.ProfileID,
		Distance:        outcome.Distance,
		Confidence:      outcome.Confidence,
		SiteID:          outcome.SiteID,
		SiteDistance:    outcome.SiteDistance,
		IsValidLocation: outcome.IsValidLocation,
		Persisted:       submit && outcome.Accepted,
	}
	if rec := outcome.Record; rec != nil {
		out.RecordID = rec.ID
		out.Status = string(rec.Status)
		out.Timestamp = &rec.Timestamp
	}

	if mustGetBool(cmd, "json") {
		if jerr := printJSON(out); jerr != nil {
			return jerr
		}
		return err
	}
	printOutcome(out)
	return err
}

func printOutcome(out outcomeOutput) {
	if !out.Accepted {
		fmt.Printf("Rejected: %s\n", out.Reason)
		if out.PersonID != "" {
			fmt.Printf("  Person:     %s (confidence %.2f)\n", out.PersonID, out.Confidence)
		} else if out.Distance > 0 {
			fmt.Printf("  Closest:    %.4f\n", out.Distance)
		}
		return
	}

	verb := "Would record"
	if out.Persisted {
		verb = "Recorded"
	}
	fmt.Printf("%s %s for %s\n", verb, out.Status, out.PersonID)
	fmt.Printf("  Profile:    %s (distance %.4f, confidence %.2f)\n", out.ProfileID, out.Distance, out.Confidence)
	if out.SiteID != nil {
		fmt.Printf("  Site:       %s (%.0fm from center)\n", *out.SiteID, out.SiteDistance)
	} else {
		fmt.Println("  Site:       none (outside every active geofence)")
	}
	if out.Timestamp != nil {
		fmt.Printf("  Time:       %s\n", out.Timestamp.Format(time.RFC3339))
	}
}
