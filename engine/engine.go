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
	"os"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/cinerec-io/cinerec/base"
	"github.com/cinerec-io/cinerec/base/log"
	"github.com/cinerec-io/cinerec/config"
	"github.com/cinerec-io/cinerec/dataset"
	"github.com/cinerec-io/cinerec/logics"
	"github.com/cinerec-io/cinerec/model"
)

// ErrNoSnapshot is returned when no model snapshot has been trained or loaded yet.
var ErrNoSnapshot = errors.NotAssignedf("model snapshot")

// snapshot bundles a trained model with the ranking state derived from it.
// A snapshot is immutable after build and replaced wholesale.
type snapshot struct {
	svd     *model.SVD
	popular []logics.ScoredItem
	ranker  *logics.Ranker
}

// Engine orchestrates training, cold-start fold-in and serving. The
// similarity index depends only on the catalog and outlives snapshots.
type Engine struct {
	cfg      *config.RecommendConfig
	catalog  *dataset.Catalog
	index    *logics.SimilarityIndex
	snapshot atomic.Pointer[snapshot]
	profiles *ttlcache.Cache[string, model.Profile]
}

// NewEngine builds the similarity index from the catalog and starts the
// fold-in profile cache.
func NewEngine(cfg *config.RecommendConfig, catalog *dataset.Catalog) *Engine {
	e := &Engine{
		cfg:     cfg,
		catalog: catalog,
		index:   logics.NewSimilarityIndex(catalog),
		profiles: ttlcache.New(
			ttlcache.WithTTL[string, model.Profile](cfg.FoldInCacheTTL)),
	}
	go e.profiles.Start()
	return e
}

// Close stops the fold-in cache janitor.
func (e *Engine) Close() {
	e.profiles.Stop()
}

func (e *Engine) params() model.Params {
	return model.Params{
		model.NFactors:    e.cfg.NFactors,
		model.NEpochs:     e.cfg.NEpochs,
		model.Lr:          e.cfg.Lr,
		model.Reg:         e.cfg.Reg,
		model.RandomState: e.cfg.RandomState,
	}
}

// Train fits a fresh model on the given ratings, rebuilds the
// popularity list from the same ratings and swaps the snapshot
// atomically. Requests in flight keep the previous snapshot.
func (e *Engine) Train(ratings []dataset.Rating) error {
	trainSet := dataset.FromRatings(ratings)
	svd := model.NewSVD(e.params())
	start := time.Now()
	if err := svd.Fit(trainSet); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("model trained",
		zap.Int("num_users", trainSet.CountUsers()),
		zap.Int("num_items", trainSet.CountItems()),
		zap.Int("num_ratings", trainSet.Count()),
		zap.Duration("elapsed", time.Since(start)))
	e.apply(svd, ratings)
	return nil
}

// apply installs a trained model together with ranking state derived
// from the given ratings.
func (e *Engine) apply(svd *model.SVD, ratings []dataset.Rating) {
	popular := logics.MostPopular(ratings, e.cfg.PopularMinRatings, e.cfg.NumPopular)
	e.snapshot.Store(&snapshot{
		svd:     svd,
		popular: popular,
		ranker:  logics.NewRanker(svd, e.index, popular),
	})
	e.profiles.DeleteAll()
}

// Ready reports whether a model snapshot has been installed.
func (e *Engine) Ready() bool {
	return e.snapshot.Load() != nil
}

func (e *Engine) current() (*snapshot, error) {
	s := e.snapshot.Load()
	if s == nil {
		return nil, ErrNoSnapshot
	}
	return s, nil
}

// Recommend returns personalized recommendations for a user. Users
// absent from the snapshot are folded in once their rating history
// reaches the configured minimum; the folded-in profile is cached per
// rating-set version. Below the minimum, the popularity fallback serves.
func (e *Engine) Recommend(userId string, ratings []dataset.Rating, n int) (*logics.Recommendation, error) {
	s, err := e.current()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if _, known := s.svd.UserProfile(userId); known {
		return s.ranker.Recommend(userId, ratings, n, e.cfg.CandidatePool)
	}
	if len(ratings) < e.cfg.FoldInMinRatings {
		// Too little history for a confident fold-in. Score with a
		// neutral profile so predictions degrade to the global mean plus
		// item bias, while the rated items stay excluded.
		neutral := model.Profile{Factor: make([]float32, s.svd.NFactors())}
		return s.ranker.RecommendWithProfile(neutral, ratings, n, e.cfg.CandidatePool)
	}
	key := fmt.Sprintf("%s/%d", userId, len(ratings))
	if item := e.profiles.Get(key); item != nil {
		return s.ranker.RecommendWithProfile(item.Value(), ratings, n, e.cfg.CandidatePool)
	}
	profile, err := s.svd.FoldIn(ratings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	e.profiles.Set(key, profile, ttlcache.DefaultTTL)
	return s.ranker.RecommendWithProfile(profile, ratings, n, e.cfg.CandidatePool)
}

// FoldIn derives an ephemeral profile against the current snapshot. The
// snapshot itself is never touched.
func (e *Engine) FoldIn(ratings []dataset.Rating) (model.Profile, error) {
	s, err := e.current()
	if err != nil {
		return model.Profile{}, errors.Trace(err)
	}
	return s.svd.FoldIn(ratings)
}

// SimilarItems returns the items closest to the given item in tag space.
func (e *Engine) SimilarItems(itemId string, n int) ([]logics.ScoredItem, error) {
	return e.index.Similar(itemId, n)
}

// Popular returns the head of the popularity list.
func (e *Engine) Popular(n int) ([]logics.ScoredItem, error) {
	s, err := e.current()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if n <= 0 || n > len(s.popular) {
		n = len(s.popular)
	}
	return s.popular[:n], nil
}

// Predict returns the raw predicted rating for a user/item pair.
func (e *Engine) Predict(userId, itemId string) (float32, error) {
	s, err := e.current()
	if err != nil {
		return 0, errors.Trace(err)
	}
	return s.svd.Predict(userId, itemId), nil
}

// SaveModel writes the current snapshot to a model file.
func (e *Engine) SaveModel(path string) error {
	s, err := e.current()
	if err != nil {
		return errors.Trace(err)
	}
	w, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer w.Close()
	return s.svd.Marshal(w)
}

// LoadModel reads a model file, verifies its factor dimension against
// the configured one and installs it with ranking state derived from
// the given ratings.
func (e *Engine) LoadModel(path string, ratings []dataset.Rating) error {
	r, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer r.Close()
	svd := model.NewSVD(nil)
	if err = svd.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	if svd.NFactors() != e.cfg.NFactors {
		return errors.Annotatef(base.ErrModelVersionMismatch,
			"model has %d factors, configured %d", svd.NFactors(), e.cfg.NFactors)
	}
	log.Logger().Info("model loaded",
		zap.String("path", path),
		zap.Int("n_factors", svd.NFactors()))
	e.apply(svd, ratings)
	return nil
}
