package sync

import (
	"sort"

	"prwatch/internal/model"
)

// Merge combines the involved and review-requested result sets into one
// deduplicated collection keyed by owner/repo#number. The involved parse
// wins on conflict; a duplicate from the review-requested set only promotes
// isRequestedReviewer to true.
func Merge(involved, reviewRequested []*model.PullRequest) []*model.PullRequest {
	byKey := make(map[string]*model.PullRequest, len(involved)+len(reviewRequested))

	for _, pr := range involved {
		if pr == nil {
			continue
		}
		if _, ok := byKey[pr.Key()]; !ok {
			byKey[pr.Key()] = pr
		}
	}

	for _, pr := range reviewRequested {
		if pr == nil {
			continue
		}
		if existing, ok := byKey[pr.Key()]; ok {
			existing.IsRequestedReviewer = true
			continue
		}
		byKey[pr.Key()] = pr
	}

	merged := make([]*model.PullRequest, 0, len(byKey))
	for _, pr := range byKey {
		merged = append(merged, pr)
	}

	// Newest activity first; ties break on the composite key so the order
	// is deterministic across fetches.
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].UpdatedAt.Equal(merged[j].UpdatedAt) {
			return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
		}
		return merged[i].Key() < merged[j].Key()
	})

	return merged
}
