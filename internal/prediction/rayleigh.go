// Package prediction simulates a project's defect discovery curve.
package prediction

import (
	"errors"
	"math"
)

const (
	DefaultDuration = 12
	DefaultPeak     = 4
	DefaultTotal    = 100

	// MaxDuration caps the curve at fifty years of monthly points.
	MaxDuration = 600
)

var ErrInvalidInput = errors.New("estimated_duration, peak_month and total_defects_estimate must be positive and estimated_duration at most 600")

type Input struct {
	EstimatedDuration    int `json:"estimated_duration"`
	PeakMonth            int `json:"peak_month"`
	TotalDefectsEstimate int `json:"total_defects_estimate"`
}

// WithDefaults fills zero fields. Negative values are left for Validate.
func (in Input) WithDefaults() Input {
	if in.EstimatedDuration == 0 {
		in.EstimatedDuration = DefaultDuration
	}
	if in.PeakMonth == 0 {
		in.PeakMonth = DefaultPeak
	}
	if in.TotalDefectsEstimate == 0 {
		in.TotalDefectsEstimate = DefaultTotal
	}
	return in
}

func (in Input) Validate() error {
	if in.EstimatedDuration <= 0 || in.PeakMonth <= 0 || in.TotalDefectsEstimate <= 0 {
		return ErrInvalidInput
	}
	if in.EstimatedDuration > MaxDuration {
		return ErrInvalidInput
	}
	return nil
}

type Point struct {
	Month            int     `json:"month"`
	PredictedDefects float64 `json:"predicted_defects"`
}

// Curve returns one point per month from 0 through EstimatedDuration. The
// Rayleigh density with scale PeakMonth is scaled by the total estimate and
// by duration/peak, then rounded to two decimals. The peak may lie beyond the
// duration.
func Curve(in Input) ([]Point, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	sigma := float64(in.PeakMonth)
	scale := float64(in.TotalDefectsEstimate) * float64(in.EstimatedDuration) / sigma

	points := make([]Point, 0, in.EstimatedDuration+1)
	for m := 0; m <= in.EstimatedDuration; m++ {
		points = append(points, Point{
			Month:            m,
			PredictedDefects: round2(density(float64(m), sigma) * scale),
		})
	}
	return points, nil
}

func density(x, sigma float64) float64 {
	if x < 0 {
		return 0
	}
	s2 := sigma * sigma
	return x / s2 * math.Exp(-x*x/(2*s2))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
