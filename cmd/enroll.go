package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/encoder"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <person>",
	Short: "Enroll a face profile for a person",
	Long: `Enroll a face profile for a person. The capture passes through the quality
gate; the first accepted profile becomes primary and later ones replace it only
with a strictly higher quality score.

With --image the face is detected and encoded by the embedding server
(EMBEDDING_URL) and the quality signal is measured on the face crop.
With --encoding the encoding is read as a JSON array and the quality signal
comes from the flags.

Examples:
  facegate enroll emp-0042 --image capture.jpg
  facegate enroll "Jana Nováková" --encoding face.json --sharpness 0.8 --contrast 0.6 --luminance 0.5 --width-ratio 0.4 --height-ratio 0.5`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("image", "", "Capture image to detect and encode")
	enrollCmd.Flags().String("encoding", "", "JSON file with the encoding (- for stdin)")
	enrollCmd.Flags().Int("faces", 1, "Faces in the frame (with --encoding)")
	enrollCmd.Flags().Float64("width-ratio", 0, "Face width / frame width (with --encoding)")
	enrollCmd.Flags().Float64("height-ratio", 0, "Face height / frame height (with --encoding)")
	enrollCmd.Flags().Float64("luminance", 0, "Mean face luminance in [0, 1] (with --encoding)")
	enrollCmd.Flags().Float64("sharpness", 0, "Normalized sharpness in [0, 1] (with --encoding)")
	enrollCmd.Flags().Float64("contrast", 0, "Normalized contrast in [0, 1] (with --encoding)")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	enrollCmd.MarkFlagsMutuallyExclusive("image", "encoding")
	enrollCmd.MarkFlagsOneRequired("image", "encoding")
}

type enrollOutput struct {
	PersonID     string  `json:"person_id"`
	Accepted     bool    `json:"accepted"`
	Reason       string  `json:"reason"`
	QualityScore float64 `json:"quality_score"`
	ProfileID    string  `json:"profile_id,omitempty"`
	Primary      bool    `json:"primary"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
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

	req := attendance.EnrollRequest{PersonID: person.ID}
	if imagePath := mustGetString(cmd, "image"); imagePath != "" {
		c, err := captureFromImage(ctx, encoder.NewClient(a.cfg.Embedding.URL), imagePath)
		if err != nil {
			return err
		}
		req.Encoding = c.Encoding
		req.Signal = c.Signal
		req.SourceImage = imagePath
	} else {
		req.Encoding, err = loadEncoding(mustGetString(cmd, "encoding"))
		if err != nil {
			return err
		}
		req.Signal = attendance.QualitySignal{
			FaceCount:       mustGetInt(cmd, "faces"),
			FaceWidthRatio:  mustGetFloat64(cmd, "width-ratio"),
			FaceHeightRatio: mustGetFloat64(cmd, "height-ratio"),
			Luminance:       mustGetFloat64(cmd, "luminance"),
			Sharpness:       mustGetFloat64(cmd, "sharpness"),
			Contrast:        mustGetFloat64(cmd, "contrast"),
		}
	}

	result, err := a.engine.Enroll(ctx, req)
	if err != nil && !errors.Is(err, attendance.ErrQualityRejected) {
		return err
	}

	out := enrollOutput{
		PersonID:     person.ID,
		Accepted:     result.Assessment.Accepted,
		Reason:       string(result.Assessment.Reason),
		QualityScore: result.Assessment.Score,
		Primary:      result.Promoted,
	}
	if result.Profile != nil {
		out.ProfileID = result.Profile.ID
	}

	if mustGetBool(cmd, "json") {
		if jerr := printJSON(out); jerr != nil {
			return jerr
		}
		return err
	}
	if !out.Accepted {
		fmt.Printf("Rejected capture for %s: %s (score %.2f)\n", person.DisplayName, out.Reason, out.QualityScore)
		return err
	}
	role := "secondary"
	if out.Primary {
		role = "primary"
	}
	fmt.Printf("Enrolled %s profile %s for %s (score %.2f)\n", role, out.ProfileID, person.DisplayName, out.QualityScore)
	return nil
}
