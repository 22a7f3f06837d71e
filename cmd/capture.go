package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/encoder"
	"github.com/kozaktomas/facegate/internal/imagequality"
)

// maxCaptureSize is the longest edge sent to the embedding server.
const maxCaptureSize = 1920

// capture is a face encoding with the quality signal of the image it came from.
type capture struct {
	Encoding []float64
	Signal   attendance.QualitySignal
	Faces    int
}

// captureFromImage detects the face in an image file and measures its quality.
// The box of the highest scoring face is measured; the signal still carries the
// total face count so multi-face frames are rejected by the quality gate.
func captureFromImage(ctx context.Context, client *encoder.Client, path string) (*capture, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is a CLI argument
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	data, err := imagequality.Downscale(raw, maxCaptureSize)
	if err != nil {
		return nil, err
	}

	resp, err := client.DetectFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	face, err := resp.Single()
	if err != nil {
		return nil, err
	}
	x1, y1, x2, y2, ok := face.Box()
	if !ok {
		return nil, errors.New("embedding server returned a malformed bounding box")
	}

	img, err := imagequality.Decode(data)
	if err != nil {
		return nil, err
	}
	return &capture{
		Encoding: face.Encoding(),
		Signal:   imagequality.Measure(img, imagequality.Box(x1, y1, x2, y2), resp.FacesCount),
		Faces:    resp.FacesCount,
	}, nil
}

// loadEncoding reads a JSON array of numbers from a file, or stdin when path is "-".
func loadEncoding(path string) ([]float64, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // path is a CLI argument
		if err != nil {
			return nil, fmt.Errorf("opening encoding file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var encoding []float64
	if err := json.NewDecoder(r).Decode(&encoding); err != nil {
		return nil, fmt.Errorf("parsing encoding (want a JSON array of numbers): %w", err)
	}
	return encoding, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
