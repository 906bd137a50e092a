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
	"time"

	"github.com/chewxy/math32"
	"github.com/cinerec-io/cinerec/base/log"
	"github.com/cinerec-io/cinerec/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ScoredItem is an item id with an attached score.
type ScoredItem struct {
	ItemId string  `json:"item_id"`
	Score  float32 `json:"score"`
}

type sparseVector struct {
	indices []int32
	values  []float32
}

func (v sparseVector) dot(u sparseVector) float32 {
	var sum float32
	var i, j int
	for i < len(v.indices) && j < len(u.indices) {
		switch {
		case v.indices[i] < u.indices[j]:
			i++
		case v.indices[i] > u.indices[j]:
			j++
		default:
			sum += v.values[i] * u.values[j]
			i++
			j++
		}
	}
	return sum
}

// SimilarityIndex answers "k most similar items" queries over the item
// catalog. Items are embedded as L2-normalized TF-IDF vectors over their
// tag tokens, so the dot product of two vectors is their cosine
// similarity. The index is immutable after construction and safe for
// concurrent reads; it must be rebuilt whenever the catalog changes.
type SimilarityIndex struct {
	catalog *dataset.Catalog
	vectors []sparseVector
}

// NewSimilarityIndex builds the TF-IDF vector space over a catalog.
func NewSimilarityIndex(catalog *dataset.Catalog) *SimilarityIndex {
	start := time.Now()
	vocab := dataset.NewFreqDict()
	tokenized := make([][]int32, catalog.Len())
	documentFreq := make(map[int32]int32)
	for position, item := range catalog.Items() {
		tokens := dataset.TokenizeTags(item.Tags)
		ids := make([]int32, 0, len(tokens))
		seen := make(map[int32]struct{}, len(tokens))
		for _, token := range tokens {
			id := vocab.Add(token)
			ids = append(ids, id)
			if _, exist := seen[id]; !exist {
				seen[id] = struct{}{}
				documentFreq[id]++
			}
		}
		tokenized[position] = ids
	}
	// Smoothed inverse document frequency.
	n := float32(catalog.Len())
	idf := make([]float32, vocab.Count())
	for id := range idf {
		idf[id] = math32.Log((1+n)/(1+float32(documentFreq[int32(id)]))) + 1
	}
	vectors := make([]sparseVector, catalog.Len())
	for position, ids := range tokenized {
		termFreq := make(map[int32]float32)
		for _, id := range ids {
			termFreq[id]++
		}
		vector := sparseVector{
			indices: make([]int32, 0, len(termFreq)),
			values:  make([]float32, 0, len(termFreq)),
		}
		for id := range termFreq {
			vector.indices = append(vector.indices, id)
		}
		sort.Slice(vector.indices, func(i, j int) bool { return vector.indices[i] < vector.indices[j] })
		var norm float32
		for _, id := range vector.indices {
			value := termFreq[id] * idf[id]
			vector.values = append(vector.values, value)
			norm += value * value
		}
		if norm > 0 {
			norm = math32.Sqrt(norm)
			for i := range vector.values {
				vector.values[i] /= norm
			}
		}
		vectors[position] = vector
	}
	log.Logger().Info("built similarity index",
		zap.Int("items", catalog.Len()),
		zap.Int32("vocabulary", vocab.Count()),
		zap.Duration("build_time", time.Since(start)))
	return &SimilarityIndex{catalog: catalog, vectors: vectors}
}

// Similar returns up to k items most similar to the query item, in
// descending score order, the query item itself excluded. Ties are
// broken by catalog order so results are deterministic. Unknown item
// ids fail with a not found error.
func (index *SimilarityIndex) Similar(itemId string, k int) ([]ScoredItem, error) {
	queryPosition := index.catalog.Position(itemId)
	if queryPosition < 0 {
		return nil, errors.NotFoundf("item %v", itemId)
	}
	if k < 0 {
		k = 0
	}
	query := index.vectors[queryPosition]
	positions := make([]int, 0, index.catalog.Len()-1)
	scores := make([]float32, index.catalog.Len())
	for position := range index.vectors {
		if position == queryPosition {
			continue
		}
		positions = append(positions, position)
		scores[position] = query.dot(index.vectors[position])
	}
	sort.Slice(positions, func(i, j int) bool {
		if scores[positions[i]] != scores[positions[j]] {
			return scores[positions[i]] > scores[positions[j]]
		}
		return positions[i] < positions[j]
	})
	if len(positions) > k {
		positions = positions[:k]
	}
	items := index.catalog.Items()
	result := make([]ScoredItem, len(positions))
	for i, position := range positions {
		result[i] = ScoredItem{ItemId: items[position].ItemId, Score: scores[position]}
	}
	return result, nil
}
