package leaderboard

import (
	"github.com/tokenboard/tokenboard/internal/timeutil"
)

// Aggregate folds records whose effective date falls inside the window into
// one aggregate per user. The fold is commutative and associative: any
// permutation of the input produces identical sums.
//
// Aggregation is deliberately tenant-agnostic; team filtering happens
// afterwards at the identity level so one pass can serve multiple views.
func Aggregate(records []UsageRecord, window timeutil.Window) map[UserID]*UserAggregate {
	out := make(map[UserID]*UserAggregate)
	for _, r := range records {
		if !window.Contains(r.EffectiveDate()) {
			continue
		}
		agg, ok := out[r.UserID]
		if !ok {
			agg = &UserAggregate{UserID: r.UserID}
			out[r.UserID] = agg
		}
		agg.add(r)
	}
	return out
}

// FilterMembers drops aggregates for users outside the membership set.
// Applied after aggregation, never before.
func FilterMembers(aggregates map[UserID]*UserAggregate, members map[UserID]struct{}) {
	for id := range aggregates {
		if _, ok := members[id]; !ok {
			delete(aggregates, id)
		}
	}
}
