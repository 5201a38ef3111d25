package matcher

import (
	"sort"
)

// AmbiguityMargin is the confidence gap under which two candidates of one
// outflow are considered equally likely
const AmbiguityMargin = 0.05

// AmbiguousOutflow is an outflow with more than one near-equal inflow
// candidate. The greedy pass still links the best one; callers may want a
// human to confirm.
type AmbiguousOutflow struct {
	OutflowID    int64   `json:"outflowId"`
	CandidateIDs []int64 `json:"candidateIds"`
	BestScore    float64 `json:"bestScore"`
	Ambiguity    float64 `json:"ambiguity"`
}

// findAmbiguous reports outflows whose top candidates lie within
// AmbiguityMargin of each other. Candidate lists must be sorted best first.
func findAmbiguous(perOutflow map[int64][]*TransferCandidate) []*AmbiguousOutflow {
	var result []*AmbiguousOutflow

	for outflowID, candidates := range perOutflow {
		if len(candidates) < 2 {
			continue
		}

		best := candidates[0].Confidence
		var tied []int64
		for _, c := range candidates {
			if best-c.Confidence <= AmbiguityMargin {
				tied = append(tied, c.To.ID)
			}
		}
		if len(tied) < 2 {
			continue
		}

		result = append(result, &AmbiguousOutflow{
			OutflowID:    outflowID,
			CandidateIDs: tied,
			BestScore:    best,
			Ambiguity:    calculateAmbiguityScore(len(tied), len(candidates)),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OutflowID < result[j].OutflowID
	})
	return result
}

// calculateAmbiguityScore grows with the share of candidates that are tied
// at the top, 0 for a single clear winner
func calculateAmbiguityScore(tied, total int) float64 {
	if total <= 1 || tied <= 1 {
		return 0.0
	}
	return float64(tied-1) / float64(total)
}
