package attendance

import (
	"math"

	"github.com/kozaktomas/facegate/internal/database"
)

// QualitySignal describes an enrollment capture. Ratios and levels are in [0, 1].
type QualitySignal struct {
	FaceCount       int
	FaceWidthRatio  float64 // Face box width / frame width
	FaceHeightRatio float64 // Face box height / frame height
	Luminance       float64 // Mean luminance of the face crop
	Sharpness       float64 // Normalized Laplacian variance
	Contrast        float64 // Normalized luminance standard deviation
}

// valid reports whether the face count is non-negative and every measurement is finite.
func (s QualitySignal) valid() bool {
	if s.FaceCount < 0 {
		return false
	}
	for _, v := range []float64{s.FaceWidthRatio, s.FaceHeightRatio, s.Luminance, s.Sharpness, s.Contrast} {
		if !finite(v) {
			return false
		}
	}
	return true
}

// QualityReason explains an assessment.
type QualityReason string

const (
	QualityAccepted      QualityReason = "accepted"
	QualityNoFace        QualityReason = "no_face"
	QualityMultipleFaces QualityReason = "multiple_faces"
	QualityFaceTooSmall  QualityReason = "face_too_small"
	QualityTooDark       QualityReason = "too_dark"
	QualityTooBright     QualityReason = "too_bright"
	QualityLowScore      QualityReason = "low_score"
	QualityInvalidSignal QualityReason = "invalid_signal"
)

// Assessment is the outcome of the enrollment quality gate.
type Assessment struct {
	Accepted bool
	Score    float64
	Reason   QualityReason
}

// sizeSaturation is the face ratio at which the size sub-score reaches 1.
const sizeSaturation = 0.5

// QualityAssessor gates which captures may become face profiles.
type QualityAssessor struct {
	policy   QualityPolicy
	minScore float64
}

// NewQualityAssessor creates an assessor for the given gate and minimum score.
func NewQualityAssessor(policy QualityPolicy, minScore float64) *QualityAssessor {
	return &QualityAssessor{policy: policy, minScore: minScore}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Score combines the sub-scores into [0, 1]. Each sub-score is monotonic in its input;
// luminance peaks at the middle of the accepted band.
func (q *QualityAssessor) Score(s QualitySignal) float64 {
	p := q.policy
	ratio := math.Min(s.FaceWidthRatio, s.FaceHeightRatio)

	mid := (p.MinLuminance + p.MaxLuminance) / 2
	halfBand := (p.MaxLuminance - p.MinLuminance) / 2
	luminanceScore := 0.0
	if halfBand > 0 {
		luminanceScore = clamp01(1 - math.Abs(s.Luminance-mid)/halfBand)
	}

	weighted := p.SharpnessWeight*clamp01(s.Sharpness) +
		p.LuminanceWeight*luminanceScore +
		p.ContrastWeight*clamp01(s.Contrast) +
		p.SizeWeight*clamp01(ratio/sizeSaturation)
	total := p.SharpnessWeight + p.LuminanceWeight + p.ContrastWeight + p.SizeWeight
	if total <= 0 {
		return 0
	}
	return clamp01(weighted / total)
}

// Assess applies the explicit rejections first, then the minimum score.
func (q *QualityAssessor) Assess(s QualitySignal) Assessment {
	if !s.valid() {
		return Assessment{Reason: QualityInvalidSignal}
	}
	switch {
	case s.FaceCount == 0:
		return Assessment{Reason: QualityNoFace}
	case s.FaceCount > 1:
		return Assessment{Reason: QualityMultipleFaces}
	}

	score := q.Score(s)
	if math.Min(s.FaceWidthRatio, s.FaceHeightRatio) < q.policy.MinFaceRatio {
		return Assessment{Score: score, Reason: QualityFaceTooSmall}
	}
	if s.Luminance < q.policy.MinLuminance {
		return Assessment{Score: score, Reason: QualityTooDark}
	}
	if s.Luminance > q.policy.MaxLuminance {
		return Assessment{Score: score, Reason: QualityTooBright}
	}
	if score < q.minScore {
		return Assessment{Score: score, Reason: QualityLowScore}
	}
	return Assessment{Accepted: true, Score: score, Reason: QualityAccepted}
}

// ShouldPromote reports whether a new profile with score replaces the current primary.
func ShouldPromote(score float64, current *database.FaceProfile) bool {
	return current == nil || score > current.QualityScore
}
