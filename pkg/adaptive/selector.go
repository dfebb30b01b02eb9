package adaptive

// DefaultSafetyFactor is applied to the raw bandwidth estimate before
// variant selection.
const DefaultSafetyFactor = 0.8

// AdaptiveQualitySelector wraps a BandwidthEstimator, applies a safety
// factor, and picks a variant index from an ascending-by-bandwidth list
//. A manual lock overrides
// selection and disables estimator-driven updates, matching the
// Dispatcher API's lock_variant/unlock_variant.
type AdaptiveQualitySelector struct {
	estimator    *BandwidthEstimator
	safetyFactor float64

	locked      bool
	lockedIndex int
}

// NewAdaptiveQualitySelector creates a selector with the given safety
// factor.
func NewAdaptiveQualitySelector(safetyFactor float64) *AdaptiveQualitySelector {
	if safetyFactor <= 0 {
		safetyFactor = DefaultSafetyFactor
	}
	return &AdaptiveQualitySelector{
		estimator:    NewBandwidthEstimator(),
		safetyFactor: safetyFactor,
	}
}

// AddMetric feeds a completed download's (duration, size) into the
// underlying estimator, unless the selector is locked to a manual
// variant.
func (s *AdaptiveQualitySelector) AddMetric(durationMs float64, sizeBytes uint32) {
	if s.locked {
		return
	}
	s.estimator.AddSample(durationMs, sizeBytes)
}

// GetEstimate returns the safety-factored bandwidth estimate in
// bits/second, and false if the underlying estimator has not yet seen
// enough data.
func (s *AdaptiveQualitySelector) GetEstimate() (float64, bool) {
	raw, ok := s.estimator.Estimate()
	if !ok {
		return 0, false
	}
	return raw * s.safetyFactor, true
}

// Lock overrides selection with a fixed variant index and stops feeding
// the estimator new samples.
func (s *AdaptiveQualitySelector) Lock(index int) {
	s.locked = true
	s.lockedIndex = index
}

// Unlock resumes estimator-driven selection.
func (s *AdaptiveQualitySelector) Unlock() {
	s.locked = false
}

// Locked reports whether a manual variant lock is in effect, and the
// locked index if so.
func (s *AdaptiveQualitySelector) Locked() (int, bool) {
	return s.lockedIndex, s.locked
}

// Reset restores the selector to its initial, zero-information state.
// A manual lock, if any, is preserved — resetting bandwidth history does
// not change an explicit operator choice.
func (s *AdaptiveQualitySelector) Reset() {
	s.estimator.Reset()
}

// SelectVariant chooses an index into bandwidthsAscending (which must be
// sorted ascending): the highest variant whose bandwidth is
// at most the current estimate, or the lowest variant if none qualifies.
// A manual lock overrides this and always wins, clamped to a valid index.
func (s *AdaptiveQualitySelector) SelectVariant(bandwidthsAscending []int) int {
	if len(bandwidthsAscending) == 0 {
		return -1
	}

	if s.locked {
		idx := s.lockedIndex
		if idx < 0 {
			idx = 0
		}
		if idx >= len(bandwidthsAscending) {
			idx = len(bandwidthsAscending) - 1
		}
		return idx
	}

	estimate, ok := s.GetEstimate()
	if !ok {
		return 0
	}

	selected := 0
	for i, bw := range bandwidthsAscending {
		if float64(bw) <= estimate {
			selected = i
		} else {
			break
		}
	}
	return selected
}
