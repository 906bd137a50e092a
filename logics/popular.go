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
	"github.com/cinerec-io/cinerec/base/heap"
	"github.com/cinerec-io/cinerec/base/log"
	"github.com/cinerec-io/cinerec/dataset"
	"go.uber.org/zap"
)

// MostPopular derives a static popular-items list from a rating sample:
// items with at least minRatings ratings, ranked by mean rating, top n.
// The list is used for the onboarding screen and as the ranker's
// fallback when a user has no liked seed item.
func MostPopular(ratings []dataset.Rating, minRatings, n int) []ScoredItem {
	counts := make(map[string]int)
	sums := make(map[string]float64)
	for _, rating := range ratings {
		counts[rating.ItemId]++
		sums[rating.ItemId] += float64(rating.Rating)
	}
	filter := heap.NewTopKFilter[string, float64](n)
	for itemId, count := range counts {
		if count >= minRatings {
			filter.Push(itemId, sums[itemId]/float64(count))
		}
	}
	itemIds, means := filter.PopAll()
	popular := make([]ScoredItem, len(itemIds))
	for i, itemId := range itemIds {
		popular[i] = ScoredItem{ItemId: itemId, Score: float32(means[i])}
	}
	log.Logger().Info("built popular items",
		zap.Int("rated_items", len(counts)),
		zap.Int("popular_items", len(popular)),
		zap.Int("min_ratings", minRatings))
	return popular
}
