package master

import (
	"fmt"
	"sort"

	"braindrain/internal/acs"
)

// Segment is the four-way policy classification of a state.
type Segment uint8

const (
	Unclassified Segment = iota
	TalentHub
	RisingGainer
	AtRiskRetainer
	BrainDrainRisk
)

var segmentLabels = map[Segment]string{
	Unclassified:   "",
	TalentHub:      "Talent Hub",
	RisingGainer:   "Rising Gainer",
	AtRiskRetainer: "At-Risk Retainer",
	BrainDrainRisk: "Brain Drain Risk",
}

// Segments lists the classified segments in display order.
func Segments() []Segment {
	return []Segment{TalentHub, RisingGainer, AtRiskRetainer, BrainDrainRisk}
}

func (s Segment) String() string { return segmentLabels[s] }

// ParseSegment maps a label back to its Segment.
func ParseSegment(label string) (Segment, error) {
	for s, l := range segmentLabels {
		if l == label {
			return s, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown segment %q", label)
}

// MarshalText encodes the segment as its label.
func (s Segment) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a label.
func (s *Segment) UnmarshalText(b []byte) error {
	v, err := ParseSegment(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Classify places a state against the national medians. Only a value
// strictly above its median counts as high, so a state sitting exactly on
// the median lands in the low bucket. Nulls are never high.
func Classify(netRate, concentration, medianRate, medianConcentration acs.Num) Segment {
	highNet := netRate.Greater(medianRate)
	highConc := concentration.Greater(medianConcentration)

	switch {
	case highNet && highConc:
		return TalentHub
	case highNet:
		return RisingGainer
	case highConc:
		return AtRiskRetainer
	default:
		return BrainDrainRisk
	}
}

// Median of the non-null values; the mean of the two middle values for an
// even count; null when there are none.
func Median(vals []acs.Num) acs.Num {
	xs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if f, ok := v.Float(); ok {
			xs = append(xs, f)
		}
	}
	if len(xs) == 0 {
		return acs.Null
	}
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return acs.Of(xs[mid])
	}
	return acs.Of((xs[mid-1] + xs[mid]) / 2)
}
