package radar

import "sort"

// Merge cutoff scales: two targets closer than unit normalized distance,
// with velocity and distance deltas normalized by these, are treated as one
// physical object seen twice.
const (
	MergeSpeedMPS  = 0.1
	MergeDistanceM = 0.1
)

// MergeTargets collapses duplicate detections of the same physical object
// seen across subsweeps. Greedy agglomerative clustering with a fixed
// cutoff: repeatedly merge the closest pair under unit normalized distance,
// averaging members, until no such pair remains. Ties break first-found.
// A list with no pair inside the cutoff is returned unchanged.
func MergeTargets(targets []Target) []Target {
	merged := make([]Target, len(targets))
	copy(merged, targets)

	for len(merged) > 1 {
		bi, bj := -1, -1
		best := 1.0
		for i := 0; i < len(merged); i++ {
			for j := i + 1; j < len(merged); j++ {
				if d := normalizedDistance(merged[i], merged[j]); d < best {
					best = d
					bi, bj = i, j
				}
			}
		}
		if bi < 0 {
			break
		}

		merged[bi] = Target{
			DistanceM:   (merged[bi].DistanceM + merged[bj].DistanceM) / 2,
			VelocityMPS: (merged[bi].VelocityMPS + merged[bj].VelocityMPS) / 2,
			StrengthDB:  (merged[bi].StrengthDB + merged[bj].StrengthDB) / 2,
		}
		merged = append(merged[:bj], merged[bj+1:]...)
	}
	return merged
}

func normalizedDistance(a, b Target) float64 {
	dv := (a.VelocityMPS - b.VelocityMPS) / MergeSpeedMPS
	dd := (a.DistanceM - b.DistanceM) / MergeDistanceM
	return dv*dv + dd*dd
}

// SortTargets orders the merged list by the configured consumption policy.
// The policy is validated at configuration time; an unknown value here
// leaves the list untouched.
func SortTargets(targets []Target, policy PeakSorting) {
	switch policy {
	case SortClosest:
		sort.SliceStable(targets, func(i, j int) bool {
			return targets[i].DistanceM < targets[j].DistanceM
		})
	case SortStrongest:
		sort.SliceStable(targets, func(i, j int) bool {
			return targets[i].StrengthDB > targets[j].StrengthDB
		})
	}
}
