// Package binning maps the continuous difficulty metrics onto three
// categorical levels.
package binning

import "github.com/JakeFAU/newsroom-builder/internal/dataset"

// Cutoffs are the two ascending thresholds separating three levels.
type Cutoffs [2]float64

// Labels name the three levels, lowest first.
type Labels [3]string

// Bin returns the label of the first cutoff that value does not exceed.
// Values above every cutoff, and NaN, take the last label.
func Bin(value float64, cutoffs Cutoffs, labels Labels) string {
	for i, cut := range cutoffs {
		if value <= cut {
			return labels[i]
		}
	}
	return labels[len(labels)-1]
}

// Measure is the binning rule for one metric.
type Measure struct {
	Cutoffs Cutoffs
	Labels  Labels
}

// Bin applies the measure to value.
func (m Measure) Bin(value float64) string {
	return Bin(value, m.Cutoffs, m.Labels)
}

// Scheme holds the rules for all three metrics.
type Scheme struct {
	Coverage    Measure
	Density     Measure
	Compression Measure
}

// DefaultScheme returns the cutoffs the published dataset was binned with.
func DefaultScheme() Scheme {
	return Scheme{
		Coverage: Measure{
			Cutoffs: Cutoffs{0.7857142857, 0.9444444444},
			Labels:  Labels{"low", "medium", "high"},
		},
		Density: Measure{
			Cutoffs: Cutoffs{1.5, 8.1875},
			Labels:  Labels{"abstractive", "mixed", "extractive"},
		},
		Compression: Measure{
			Cutoffs: Cutoffs{15.5, 35.4285714286},
			Labels:  Labels{"low", "medium", "high"},
		},
	}
}

// Apply sets the three bin fields from the record's metrics. Records
// without metrics are left untouched.
func (s Scheme) Apply(r *dataset.Record) {
	if r == nil || r.Density == nil || r.Coverage == nil || r.Compression == nil {
		return
	}
	r.DensityBin = s.Density.Bin(*r.Density)
	r.CoverageBin = s.Coverage.Bin(*r.Coverage)
	r.CompressionBin = s.Compression.Bin(*r.Compression)
}
