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

package engine

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/cinerec-io/cinerec/base"
	"github.com/cinerec-io/cinerec/config"
	"github.com/cinerec-io/cinerec/dataset"
)

func newTestConfig() *config.RecommendConfig {
	return &config.RecommendConfig{
		NFactors:          4,
		NEpochs:           10,
		Lr:                0.005,
		Reg:               0.02,
		RandomState:       42,
		TopN:              10,
		CandidatePool:     10,
		NumPopular:        10,
		PopularMinRatings: 2,
		FoldInMinRatings:  3,
		FoldInCacheTTL:    time.Minute,
	}
}

func newTestCatalog() *dataset.Catalog {
	items := make([]dataset.Item, 0, 10)
	for i := 1; i <= 10; i++ {
		tags := []string{"drama"}
		if i%2 == 0 {
			tags = append(tags, "comedy")
		}
		items = append(items, dataset.Item{
			ItemId: fmt.Sprintf("%d", i),
			Title:  fmt.Sprintf("Movie %d", i),
			Tags:   tags,
		})
	}
	return dataset.NewCatalog(items)
}

func newTestRatings() []dataset.Rating {
	var ratings []dataset.Rating
	for u := 1; u <= 8; u++ {
		for i := 1; i <= 10; i++ {
			if (u+i)%2 != 0 {
				continue
			}
			ratings = append(ratings, dataset.Rating{
				UserId:    fmt.Sprintf("u%d", u),
				ItemId:    fmt.Sprintf("%d", i),
				Rating:    float32((u+i)%9)/2 + 0.5,
				Timestamp: time.Unix(int64(1000+u*10+i), 0).UTC(),
			})
		}
	}
	return ratings
}

func TestEngine_NoSnapshot(t *testing.T) {
	e := NewEngine(newTestConfig(), newTestCatalog())
	defer e.Close()
	_, err := e.Recommend("u1", nil, 10)
	assert.True(t, errors.IsNotAssigned(err))
	_, err = e.Popular(10)
	assert.True(t, errors.IsNotAssigned(err))
	_, err = e.Predict("u1", "1")
	assert.True(t, errors.IsNotAssigned(err))
	// The similarity index depends only on the catalog.
	items, err := e.SimilarItems("1", 3)
	assert.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestEngine_TrainAndRecommend(t *testing.T) {
	e := NewEngine(newTestConfig(), newTestCatalog())
	defer e.Close()
	ratings := newTestRatings()
	assert.NoError(t, e.Train(ratings))

	// Known user goes through the snapshot profile.
	var history []dataset.Rating
	for _, r := range ratings {
		if r.UserId == "u1" {
			history = append(history, r)
		}
	}
	rec, err := e.Recommend("u1", history, 5)
	assert.NoError(t, err)
	assert.LessOrEqual(t, len(rec.Items), 5)
	for _, item := range rec.Items {
		for _, r := range history {
			assert.NotEqual(t, r.ItemId, item.ItemId)
		}
	}

	popular, err := e.Popular(3)
	assert.NoError(t, err)
	assert.Len(t, popular, 3)

	_, err = e.Predict("u1", "1")
	assert.NoError(t, err)
}

func TestEngine_ColdUserFoldIn(t *testing.T) {
	e := NewEngine(newTestConfig(), newTestCatalog())
	defer e.Close()
	assert.NoError(t, e.Train(newTestRatings()))

	history := []dataset.Rating{
		{UserId: "stranger", ItemId: "1", Rating: 4.5, Timestamp: time.Unix(3000, 0).UTC()},
		{UserId: "stranger", ItemId: "2", Rating: 3.0, Timestamp: time.Unix(3001, 0).UTC()},
		{UserId: "stranger", ItemId: "3", Rating: 5.0, Timestamp: time.Unix(3002, 0).UTC()},
	}
	first, err := e.Recommend("stranger", history, 5)
	assert.NoError(t, err)
	assert.Equal(t, "3", first.SeedItemId)
	// The folded-in profile is cached, so a repeated request with the
	// same rating set reproduces the first answer.
	second, err := e.Recommend("stranger", history, 5)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_FoldIn(t *testing.T) {
	e := NewEngine(newTestConfig(), newTestCatalog())
	defer e.Close()
	assert.NoError(t, e.Train(newTestRatings()))
	ratings := []dataset.Rating{
		{UserId: "stranger", ItemId: "1", Rating: 4.5},
		{UserId: "stranger", ItemId: "2", Rating: 3.0},
	}
	first, err := e.FoldIn(ratings)
	assert.NoError(t, err)
	second, err := e.FoldIn(ratings)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_ColdUserBelowMinimum(t *testing.T) {
	e := NewEngine(newTestConfig(), newTestCatalog())
	defer e.Close()
	assert.NoError(t, e.Train(newTestRatings()))
	popular, err := e.Popular(1)
	assert.NoError(t, err)
	topItemId := popular[0].ItemId

	// A single sub-threshold rating gives no seed, but the rated item
	// must still be excluded from the popularity fallback.
	history := []dataset.Rating{
		{UserId: "stranger", ItemId: topItemId, Rating: 3.0, Timestamp: time.Unix(3000, 0).UTC()},
	}
	rec, err := e.Recommend("stranger", history, 5)
	assert.NoError(t, err)
	assert.Empty(t, rec.SeedItemId)
	assert.NotEmpty(t, rec.Items)
	for _, item := range rec.Items {
		assert.NotEqual(t, topItemId, item.ItemId)
	}

	// A single liked rating seeds content candidates, scored with a
	// neutral profile; the rated item must not come back either.
	history[0].Rating = 4.5
	rec, err = e.Recommend("stranger", history, 5)
	assert.NoError(t, err)
	assert.Equal(t, topItemId, rec.SeedItemId)
	for _, item := range rec.Items {
		assert.NotEqual(t, topItemId, item.ItemId)
	}
}

func TestEngine_SaveLoadModel(t *testing.T) {
	cfg := newTestConfig()
	e := NewEngine(cfg, newTestCatalog())
	defer e.Close()
	ratings := newTestRatings()
	assert.NoError(t, e.Train(ratings))
	before, err := e.Predict("u1", "2")
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cinerec.model")
	assert.NoError(t, e.SaveModel(path))

	loaded := NewEngine(cfg, newTestCatalog())
	defer loaded.Close()
	assert.NoError(t, loaded.LoadModel(path, ratings))
	after, err := loaded.Predict("u1", "2")
	assert.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_LoadModel_DimensionMismatch(t *testing.T) {
	cfg := newTestConfig()
	e := NewEngine(cfg, newTestCatalog())
	defer e.Close()
	assert.NoError(t, e.Train(newTestRatings()))
	path := filepath.Join(t.TempDir(), "cinerec.model")
	assert.NoError(t, e.SaveModel(path))

	otherCfg := newTestConfig()
	otherCfg.NFactors = 8
	other := NewEngine(otherCfg, newTestCatalog())
	defer other.Close()
	err := other.LoadModel(path, newTestRatings())
	assert.ErrorIs(t, errors.Cause(err), base.ErrModelVersionMismatch)
}
