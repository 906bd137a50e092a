// Copyright 2025 cinerec Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logics

import (
	"sort"

	"github.com/cinerec-io/cinerec/base/log"
	"github.com/cinerec-io/cinerec/dataset"
	"github.com/cinerec-io/cinerec/model"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// LikeThreshold is the minimum rating for an item to anchor content
// based candidate retrieval.
const LikeThreshold = 4.0

// Recommendation is the outcome of a ranking run. SeedItemId is empty
// when no rated item met the like threshold and the popularity fallback
// ordering was returned instead. Scores are raw model outputs, not
// clamped to the rating range.
type Recommendation struct {
	SeedItemId string
	Items      []ScoredItem
}

// Ranker blends the content similarity signal with the latent factor
// score: candidates similar to a seed item the user liked are scored by
// the model and re-ranked. All referenced structures are immutable, so
// a Ranker is safe for concurrent use.
type Ranker struct {
	snapshot *model.SVD
	index    *SimilarityIndex
	popular  []ScoredItem
}

func NewRanker(snapshot *model.SVD, index *SimilarityIndex, popular []ScoredItem) *Ranker {
	return &Ranker{
		snapshot: snapshot,
		index:    index,
		popular:  popular,
	}
}

// Recommend ranks up to topN items for a user given the user's own
// rating history. The profile comes from the model when the user was in
// the training sample, and from fold-in otherwise. Already rated items
// are excluded. A user without any rating at or above the like
// threshold gets the popularity fallback instead of content candidates;
// the fallback never fails.
func (ranker *Ranker) Recommend(userId string, ratings []dataset.Rating, topN, candidatePool int) (*Recommendation, error) {
	if _, found := ranker.snapshot.UserProfile(userId); !found && len(ratings) > 0 {
		profile, err := ranker.snapshot.FoldIn(ratings)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return ranker.RecommendWithProfile(profile, ratings, topN, candidatePool)
	}
	return ranker.rank(ratings, topN, candidatePool, func(itemId string) float32 {
		return ranker.snapshot.Predict(userId, itemId)
	})
}

// RecommendWithProfile ranks items scoring them against an explicit
// user profile, typically one obtained from fold-in and cached by the
// caller.
func (ranker *Ranker) RecommendWithProfile(profile model.Profile, ratings []dataset.Rating, topN, candidatePool int) (*Recommendation, error) {
	return ranker.rank(ratings, topN, candidatePool, func(itemId string) float32 {
		return ranker.snapshot.PredictWithProfile(profile, itemId)
	})
}

func (ranker *Ranker) rank(ratings []dataset.Rating, topN, candidatePool int, score func(itemId string) float32) (*Recommendation, error) {
	if topN < 0 {
		topN = 0
	}
	rated := mapset.NewThreadUnsafeSet[string]()
	for _, rating := range ratings {
		rated.Add(rating.ItemId)
	}
	seedItemId := findSeed(ratings)
	if seedItemId == "" {
		return ranker.fallback(rated, topN), nil
	}
	similar, err := ranker.index.Similar(seedItemId, candidatePool)
	if err != nil {
		if errors.IsNotFound(err) {
			// The seed item is missing from the catalog; recommendations
			// must still be served.
			log.Logger().Warn("seed item absent from catalog",
				zap.String("seed_item_id", seedItemId))
			return ranker.fallback(rated, topN), nil
		}
		return nil, errors.Trace(err)
	}
	candidates := make([]ScoredItem, 0, len(similar))
	for _, candidate := range similar {
		if !rated.Contains(candidate.ItemId) {
			candidates = append(candidates, ScoredItem{
				ItemId: candidate.ItemId,
				Score:  score(candidate.ItemId),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ItemId < candidates[j].ItemId
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return &Recommendation{SeedItemId: seedItemId, Items: candidates}, nil
}

// findSeed returns the user's highest rated item at or above the like
// threshold, the most recently rated on ties, or "" if none qualifies.
func findSeed(ratings []dataset.Rating) string {
	seed := -1
	for i, rating := range ratings {
		if rating.Rating < LikeThreshold {
			continue
		}
		if seed < 0 ||
			rating.Rating > ratings[seed].Rating ||
			(rating.Rating == ratings[seed].Rating && rating.Timestamp.After(ratings[seed].Timestamp)) {
			seed = i
		}
	}
	if seed < 0 {
		return ""
	}
	return ratings[seed].ItemId
}

func (ranker *Ranker) fallback(rated mapset.Set[string], topN int) *Recommendation {
	items := make([]ScoredItem, 0, topN)
	for _, item := range ranker.popular {
		if len(items) >= topN {
			break
		}
		if rated.Contains(item.ItemId) {
			continue
		}
		items = append(items, item)
	}
	return &Recommendation{Items: items}
}
