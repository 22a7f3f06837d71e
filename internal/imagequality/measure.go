// Package imagequality derives an enrollment quality signal from a decoded capture.
package imagequality

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/kozaktomas/facegate/internal/attendance"
)

const (
	// cropSize is the edge of the grayscale face crop every measurement runs on.
	cropSize = 128

	// sharpnessSaturation is the Laplacian variance mapped to sharpness 1.
	sharpnessSaturation = 500.0

	// contrastSaturation is the luminance standard deviation mapped to contrast 1.
	contrastSaturation = 127.5
)

// Decode decodes JPEG, PNG, GIF or BMP data.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Box converts a detector bounding box [x1, y1, x2, y2] to a rectangle.
func Box(x1, y1, x2, y2 float64) image.Rectangle {
	return image.Rect(int(math.Floor(x1)), int(math.Floor(y1)), int(math.Ceil(x2)), int(math.Ceil(y2)))
}

// Measure computes the quality signal of the face inside bbox. faceCount is what the
// detector reported for the whole frame.
func Measure(img image.Image, bbox image.Rectangle, faceCount int) attendance.QualitySignal {
	signal := attendance.QualitySignal{FaceCount: faceCount}

	frame := img.Bounds()
	face := bbox.Intersect(frame)
	if face.Empty() || frame.Dx() == 0 || frame.Dy() == 0 {
		return signal
	}

	signal.FaceWidthRatio = float64(face.Dx()) / float64(frame.Dx())
	signal.FaceHeightRatio = float64(face.Dy()) / float64(frame.Dy())

	gray := image.NewGray(image.Rect(0, 0, cropSize, cropSize))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, face, draw.Src, nil)

	mean, stddev := meanStdDev(gray)
	signal.Luminance = mean / 255
	signal.Contrast = math.Min(1, stddev/contrastSaturation)
	signal.Sharpness = math.Min(1, laplacianVariance(gray)/sharpnessSaturation)
	return signal
}

func meanStdDev(g *image.Gray) (float64, float64) {
	n := float64(len(g.Pix))
	var sum float64
	for _, v := range g.Pix {
		sum += float64(v)
	}
	mean := sum / n

	var sq float64
	for _, v := range g.Pix {
		d := float64(v) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

// laplacianVariance is the variance of the 4-neighbour Laplacian over interior pixels.
func laplacianVariance(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	at := func(x, y int) float64 { return float64(g.Pix[y*g.Stride+x]) }

	values := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := 4*at(x, y) - at(x-1, y) - at(x+1, y) - at(x, y-1) - at(x, y+1)
			values = append(values, lap)
		}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values))
}

// Downscale resizes an image to fit within maxSize while keeping aspect ratio.
// Returns JPEG-encoded bytes, or the input unchanged when it already fits.
func Downscale(data []byte, maxSize int) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= maxSize && height <= maxSize {
		return data, nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}
