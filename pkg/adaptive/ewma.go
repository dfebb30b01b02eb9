// Package adaptive implements the bandwidth estimator and variant
// selector that drive the playback engine's adaptive bitrate logic.
package adaptive

import "math"

// Ewma is an exponentially-weighted moving average with a configurable
// half-life, in seconds. More recent, heavier-weighted samples count
// more toward the current estimate.
type Ewma struct {
	alpha        float64
	lastEstimate float64
	totalWeight  float64
}

// NewEwma creates an Ewma with the given half-life in seconds.
func NewEwma(halfLife float64) *Ewma {
	return &Ewma{
		alpha: math.Exp(math.Log(0.5) / halfLife),
	}
}

// AddSample feeds a new (weight, value) pair into the average.
func (e *Ewma) AddSample(weight, value float64) {
	adjAlpha := math.Pow(e.alpha, weight)
	e.lastEstimate = value*(1-adjAlpha) + adjAlpha*e.lastEstimate
	e.totalWeight += weight
}

// Estimate returns the current debiased estimate, or 0 if no sample has
// been added yet.
func (e *Ewma) Estimate() float64 {
	if e.totalWeight == 0 {
		return 0
	}
	zeroFactor := 1 - math.Pow(e.alpha, e.totalWeight)
	return e.lastEstimate / zeroFactor
}
