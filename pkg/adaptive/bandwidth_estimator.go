package adaptive

const (
	fastEwmaHalfLife  = 2.0
	slowEwmaHalfLife  = 10.0
	minimumChunkSize  = 16_000
	minimumTotalBytes = 150_000
)

// BandwidthEstimator combines a fast and a slow EWMA, each fed every
// sampled download, and reports the minimum of the two so that a sudden
// drop in throughput has a lasting effect while a rise must hold before
// it is trusted.
type BandwidthEstimator struct {
	fast         *Ewma
	slow         *Ewma
	bytesSampled uint64
}

// NewBandwidthEstimator creates a BandwidthEstimator with no samples.
func NewBandwidthEstimator() *BandwidthEstimator {
	return &BandwidthEstimator{
		fast: NewEwma(fastEwmaHalfLife),
		slow: NewEwma(slowEwmaHalfLife),
	}
}

// AddSample records a completed download of sizeBytes over durationMs.
// Samples smaller than 16,000 bytes are ignored.
func (b *BandwidthEstimator) AddSample(durationMs float64, sizeBytes uint32) {
	if sizeBytes < minimumChunkSize {
		return
	}
	if durationMs <= 0 {
		return
	}

	bandwidth := float64(sizeBytes) * 8000 / durationMs
	weight := durationMs / 1000

	b.bytesSampled += uint64(sizeBytes)
	b.fast.AddSample(weight, bandwidth)
	b.slow.AddSample(weight, bandwidth)
}

// Estimate returns the current bandwidth estimate in bits/second, and
// false if fewer than 150,000 cumulative bytes have been sampled.
func (b *BandwidthEstimator) Estimate() (float64, bool) {
	if b.bytesSampled < minimumTotalBytes {
		return 0, false
	}
	return min(b.fast.Estimate(), b.slow.Estimate()), true
}

// Reset restores the estimator to its initial, zero-information state.
func (b *BandwidthEstimator) Reset() {
	b.fast = NewEwma(fastEwmaHalfLife)
	b.slow = NewEwma(slowEwmaHalfLife)
	b.bytesSampled = 0
}
