package domain

import "sort"

type ReleaseStatus string

const (
	ReleaseStatusInProgress ReleaseStatus = "inProgress"
	ReleaseStatusCompleted  ReleaseStatus = "completed"
)

// ReleaseDescriptor is the single release pushed to a track in one run.
type ReleaseDescriptor struct {
	Name                string            `json:"name,omitempty"`
	VersionCodes        []int64           `json:"version_codes"`
	RolloutFraction     *float64          `json:"rollout_fraction,omitempty"`
	ReleaseNotes        map[string]string `json:"release_notes,omitempty"`
	Status              ReleaseStatus     `json:"status"`
	InAppUpdatePriority *int64            `json:"in_app_update_priority,omitempty"`
}

// NewReleaseDescriptor builds a descriptor over the given version codes,
// sorted ascending and de-duplicated, and applies the rollout fraction.
func NewReleaseDescriptor(versionCodes []int64, fraction *float64, notes map[string]string) ReleaseDescriptor {
	seen := make(map[int64]bool, len(versionCodes))
	codes := make([]int64, 0, len(versionCodes))
	for _, vc := range versionCodes {
		if seen[vc] {
			continue
		}
		seen[vc] = true
		codes = append(codes, vc)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	d := ReleaseDescriptor{VersionCodes: codes, ReleaseNotes: notes}
	return d.WithRollout(fraction)
}

// WithRollout returns a copy of d with status and fraction set. A fraction
// strictly between 0 and 1 is a staged rollout; 0, 1 or no fraction at all
// all mean a completed release without a fraction.
func (d ReleaseDescriptor) WithRollout(fraction *float64) ReleaseDescriptor {
	if fraction != nil && *fraction > 0 && *fraction < 1 {
		f := *fraction
		d.RolloutFraction = &f
		d.Status = ReleaseStatusInProgress
		return d
	}
	d.RolloutFraction = nil
	d.Status = ReleaseStatusCompleted
	return d
}

// FractionFromPercentage converts a 0-100 rollout percentage to a fraction.
func FractionFromPercentage(pct float64) *float64 {
	f := pct / 100
	return &f
}
