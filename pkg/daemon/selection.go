package daemon

import (
	"math/rand"
	"sort"
	"time"

	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/types"
)

// SelectRequest is the selection input (spec.md §4.3 step 1).
type SelectRequest struct {
	RequiredRuntime    types.Runtime
	SlotsRequested     int
	ProjectFingerprint string
}

// candidate is a scored, still-eligible worker.
type candidate struct {
	view  WorkerView
	score float64
}

// eligible reports whether a worker passes the filter step: not Disabled,
// Draining, or Unreachable; circuit not Open (HalfOpen admits at most one
// in-flight reservation); enough free slots; capability match.
func eligible(v WorkerView, req SelectRequest) bool {
	switch v.State.Health {
	case types.HealthDisabled, types.HealthDraining, types.HealthUnreachable:
		return false
	}
	switch v.State.Circuit.State {
	case types.CircuitOpen:
		return false
	case types.CircuitHalfOpen:
		if v.State.UsedSlots > 0 {
			return false
		}
	}
	if !v.Worker.Enabled {
		return false
	}
	if v.State.FreeSlots(v.Worker.SlotsTotal) < req.SlotsRequested {
		return false
	}
	if req.RequiredRuntime != "" && req.RequiredRuntime != types.RuntimeGeneric {
		if !v.Worker.Capabilities[req.RequiredRuntime] {
			return false
		}
	}
	return true
}

// score computes spec.md §4.3's weighted score:
// w_s*(free_slots/S_total) + w_v*(speed_score/speed_ref) + w_c*cache_hit + w_p*priority_norm
func score(v WorkerView, req SelectRequest, sel config.Selection, maxPriority int) float64 {
	slotsTotal := v.Worker.SlotsTotal
	slotRatio := 0.0
	if slotsTotal > 0 {
		slotRatio = float64(v.State.FreeSlots(slotsTotal)) / float64(slotsTotal)
	}

	speedRatio := 0.0
	if sel.SpeedRef > 0 {
		speedRatio = v.State.SpeedScore / sel.SpeedRef
	}

	cacheHit := 0.0
	if v.State.CacheSet != nil && v.State.CacheSet[req.ProjectFingerprint] {
		cacheHit = 1.0
	}

	priorityNorm := 0.0
	if maxPriority > 0 {
		priorityNorm = float64(v.Worker.Priority) / float64(maxPriority)
	}

	return sel.WeightSlots*slotRatio + sel.WeightSpeed*speedRatio + sel.WeightCache*cacheHit + sel.WeightPriority*priorityNorm
}

// rankCandidates filters and scores the fleet snapshot for one request.
func rankCandidates(views []WorkerView, req SelectRequest, sel config.Selection) []candidate {
	maxPriority := 0
	for _, v := range views {
		if v.Worker.Priority > maxPriority {
			maxPriority = v.Worker.Priority
		}
	}

	candidates := make([]candidate, 0, len(views))
	for _, v := range views {
		if !eligible(v, req) {
			continue
		}
		candidates = append(candidates, candidate{view: v, score: score(v, req, sel, maxPriority)})
	}
	return candidates
}

// pickFastest returns the arg-max candidate, breaking ties deterministically
// by worker_id ascending.
func pickFastest(candidates []candidate) candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score || (c.score == best.score && c.view.Worker.ID < best.view.Worker.ID) {
			best = c
		}
	}
	return best
}

// pickFairFastest uses each candidate's score as a weight for randomized
// selection. A non-positive total score (e.g. every weight zeroed) falls
// back to uniform choice over the candidate set rather than dividing by
// zero.
func pickFairFastest(candidates []candidate, rng *rand.Rand) candidate {
	total := 0.0
	for _, c := range candidates {
		if c.score > 0 {
			total += c.score
		}
	}
	if total <= 0 {
		return candidates[rng.Intn(len(candidates))]
	}

	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].view.Worker.ID < sorted[j].view.Worker.ID })

	target := rng.Float64() * total
	cum := 0.0
	for _, c := range sorted {
		w := c.score
		if w < 0 {
			w = 0
		}
		cum += w
		if target <= cum {
			return c
		}
	}
	return sorted[len(sorted)-1]
}

// pick chooses one candidate according to the configured strategy.
func pick(candidates []candidate, strategy config.Strategy, rng *rand.Rand) candidate {
	if strategy == config.StrategyFastest {
		return pickFastest(candidates)
	}
	return pickFairFastest(candidates, rng)
}

func newSelectionRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
