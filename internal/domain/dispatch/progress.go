package dispatch

import (
	"math"
	"strconv"
)

// Progress counts files of one job. Processed always equals Succeeded+Failed
// and never exceeds TotalFiles.
type Progress struct {
	TotalFiles int
	Processed  int
	Succeeded  int
	Failed     int
}

// Percentage is Processed/TotalFiles*100 rounded to two decimals, 0 for an empty job.
func (p Progress) Percentage() float64 {
	if p.TotalFiles <= 0 {
		return 0
	}
	raw := float64(p.Processed) / float64(p.TotalFiles) * 100
	return math.Round(raw*100) / 100
}

// PercentageString renders Percentage with at most two decimals, e.g. "33.33%" or "50%".
func (p Progress) PercentageString() string {
	return strconv.FormatFloat(p.Percentage(), 'f', -1, 64) + "%"
}

func (p Progress) Remaining() int {
	return p.TotalFiles - p.Processed
}
