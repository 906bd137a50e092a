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

package model

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chewxy/math32"
	"github.com/cinerec-io/cinerec/base"
	"github.com/cinerec-io/cinerec/base/encoding"
	"github.com/cinerec-io/cinerec/base/log"
	"github.com/cinerec-io/cinerec/common/floats"
	"github.com/cinerec-io/cinerec/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	formatMagic   = "cinerec.svd"
	formatVersion = int32(1)
)

// Profile is a user-side (bias, factor) pair. Explicit profiles from
// fold-in take precedence over snapshot lookups during prediction.
type Profile struct {
	Bias   float32
	Factor []float32
}

// SVD implements the biased matrix factorization model popularized by
// Simon Funk during the Netflix Prize. The predicted rating is
//
//	r̂(u,i) = μ + b_u + b_i + p_u·q_i
//
// where μ is the mean rating of the training sample. If user u is
// unknown, the bias b_u and the factor p_u are taken as zero; the same
// applies for item i with b_i and q_i, so predictions degrade instead
// of failing. After Fit returns, the model is read-only and safe for
// concurrent use.
type SVD struct {
	BaseModel
	UserIndex *dataset.FreqDict
	ItemIndex *dataset.FreqDict
	// Model parameters
	UserFactor [][]float32 // p_u
	ItemFactor [][]float32 // q_i
	UserBias   []float32   // b_u
	ItemBias   []float32   // b_i
	GlobalMean float32     // mu
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initMean   float32
	initStdDev float32
}

// NewSVD creates a SVD model. Params:
//
//	Lr         - The learning rate of SGD. Default is 0.005.
//	Reg        - The regularization strength. Default is 0.02.
//	NFactors   - The number of latent factors. Default is 50.
//	NEpochs    - The number of SGD iterations. Default is 20.
//	InitMean   - The mean of initial random latent factors. Default is 0.
//	InitStdDev - The standard deviation of initial random latent factors. Default is 0.1.
func NewSVD(params Params) *SVD {
	svd := new(SVD)
	svd.SetParams(params)
	return svd
}

func (svd *SVD) SetParams(params Params) {
	svd.BaseModel.SetParams(params)
	svd.nFactors = svd.Params.GetInt(NFactors, 50)
	svd.nEpochs = svd.Params.GetInt(NEpochs, 20)
	svd.lr = svd.Params.GetFloat32(Lr, 0.005)
	svd.reg = svd.Params.GetFloat32(Reg, 0.02)
	svd.initMean = svd.Params.GetFloat32(InitMean, 0)
	svd.initStdDev = svd.Params.GetFloat32(InitStdDev, 0.1)
}

// NFactors returns the latent factor dimension.
func (svd *SVD) NFactors() int {
	return svd.nFactors
}

// UserProfile looks up the trained (bias, factor) pair of a user. The
// second return value reports whether the user was seen during training.
func (svd *SVD) UserProfile(userId string) (Profile, bool) {
	if svd.UserIndex == nil {
		return Profile{}, false
	}
	userIndex := svd.UserIndex.Id(userId)
	if userIndex < 0 {
		return Profile{}, false
	}
	return Profile{Bias: svd.UserBias[userIndex], Factor: svd.UserFactor[userIndex]}, true
}

// ItemProfile looks up the trained (bias, factor) pair of an item. The
// second return value reports whether the item was seen during training.
func (svd *SVD) ItemProfile(itemId string) (Profile, bool) {
	if svd.ItemIndex == nil {
		return Profile{}, false
	}
	itemIndex := svd.ItemIndex.Id(itemId)
	if itemIndex < 0 {
		return Profile{}, false
	}
	return Profile{Bias: svd.ItemBias[itemIndex], Factor: svd.ItemFactor[itemIndex]}, true
}

// Predict returns the predicted rating given by a user to an item.
// Unknown users or items contribute nothing instead of failing, so the
// prediction degrades down to the global mean. The output is not
// clamped to the rating range.
func (svd *SVD) Predict(userId, itemId string) float32 {
	ret := svd.GlobalMean
	userProfile, userFound := svd.UserProfile(userId)
	if userFound {
		ret += userProfile.Bias
	}
	itemProfile, itemFound := svd.ItemProfile(itemId)
	if itemFound {
		ret += itemProfile.Bias
	}
	if userFound && itemFound {
		ret += floats.Dot(userProfile.Factor, itemProfile.Factor)
	}
	return ret
}

// PredictWithProfile returns the predicted rating for an item given an
// explicit user profile, for users scored through fold-in instead of a
// snapshot lookup.
func (svd *SVD) PredictWithProfile(profile Profile, itemId string) float32 {
	ret := svd.GlobalMean + profile.Bias
	if itemProfile, found := svd.ItemProfile(itemId); found {
		ret += itemProfile.Bias + floats.Dot(profile.Factor, itemProfile.Factor)
	}
	return ret
}

// Fit trains the model on a rating sample with SGD. Biases start at
// zero, factors from N(initMean, initStdDev) drawn from the seeded
// generator, and the global mean is fixed at the sample mean. Training
// always runs the full epoch count; there is no convergence detection.
func (svd *SVD) Fit(trainSet *dataset.Dataset) error {
	if trainSet == nil || trainSet.Count() == 0 {
		return errors.BadRequestf("training set is empty")
	}
	if svd.nFactors <= 0 || svd.nEpochs <= 0 {
		return errors.BadRequestf("invalid hyper-parameters: NFactors=%d, NEpochs=%d", svd.nFactors, svd.nEpochs)
	}
	log.Logger().Info("fit svd",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("user_count", trainSet.CountUsers()),
		zap.Int("item_count", trainSet.CountItems()),
		zap.Any("params", svd.GetParams()))
	svd.UserIndex = trainSet.UserDict
	svd.ItemIndex = trainSet.ItemDict
	svd.GlobalMean = trainSet.Mean()
	svd.UserBias = make([]float32, trainSet.CountUsers())
	svd.ItemBias = make([]float32, trainSet.CountItems())
	svd.UserFactor = svd.GetRandomGenerator().NormalMatrix(trainSet.CountUsers(), svd.nFactors, svd.initMean, svd.initStdDev)
	svd.ItemFactor = svd.GetRandomGenerator().NormalMatrix(trainSet.CountItems(), svd.nFactors, svd.initMean, svd.initStdDev)
	// Create buffers
	userFactor := make([]float32, svd.nFactors)
	itemFactor := make([]float32, svd.nFactors)
	temp := make([]float32, svd.nFactors)
	for epoch := 1; epoch <= svd.nEpochs; epoch++ {
		var cost float32
		for _, i := range svd.GetRandomGenerator().Perm(trainSet.Count()) {
			userIndex, itemIndex, rating := trainSet.Get(i)
			e := rating - svd.internalPredict(userIndex, itemIndex)
			cost += e * e
			// Capture pre-update values so both vector updates read the
			// same state (simultaneous gradient step).
			copy(userFactor, svd.UserFactor[userIndex])
			copy(itemFactor, svd.ItemFactor[itemIndex])
			// b_u <- b_u + lr * (e - reg * b_u)
			svd.UserBias[userIndex] += svd.lr * (e - svd.reg*svd.UserBias[userIndex])
			// b_i <- b_i + lr * (e - reg * b_i)
			svd.ItemBias[itemIndex] += svd.lr * (e - svd.reg*svd.ItemBias[itemIndex])
			// p_u <- p_u + lr * (e * q_i - reg * p_u)
			floats.MulConstTo(itemFactor, e, temp)
			floats.MulConstAdd(userFactor, -svd.reg, temp)
			floats.MulConstAdd(temp, svd.lr, svd.UserFactor[userIndex])
			// q_i <- q_i + lr * (e * p_u - reg * q_i)
			floats.MulConstTo(userFactor, e, temp)
			floats.MulConstAdd(itemFactor, -svd.reg, temp)
			floats.MulConstAdd(temp, svd.lr, svd.ItemFactor[itemIndex])
		}
		rmse := math32.Sqrt(cost / float32(trainSet.Count()))
		if math32.IsNaN(rmse) || math32.IsInf(rmse, 0) {
			return errors.Annotatef(base.ErrTrainingDiverged, "epoch %d", epoch)
		}
		log.Logger().Debug(fmt.Sprintf("fit svd %v/%v", epoch, svd.nEpochs),
			zap.Float32("rmse", rmse))
	}
	if err := svd.checkFinite(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("fit svd complete", zap.Float32("global_mean", svd.GlobalMean))
	return nil
}

func (svd *SVD) internalPredict(userIndex, itemIndex int32) float32 {
	return svd.GlobalMean +
		svd.UserBias[userIndex] + svd.ItemBias[itemIndex] +
		floats.Dot(svd.UserFactor[userIndex], svd.ItemFactor[itemIndex])
}

func (svd *SVD) checkFinite() error {
	if !floats.IsFinite(svd.UserBias) || !floats.IsFinite(svd.ItemBias) {
		return errors.Trace(base.ErrTrainingDiverged)
	}
	for _, factor := range svd.UserFactor {
		if !floats.IsFinite(factor) {
			return errors.Trace(base.ErrTrainingDiverged)
		}
	}
	for _, factor := range svd.ItemFactor {
		if !floats.IsFinite(factor) {
			return errors.Trace(base.ErrTrainingDiverged)
		}
	}
	return nil
}

// FoldIn derives a profile for a user unseen at training time from the
// user's own ratings, holding every item entry fixed. The bias and the
// factor start at zero and the ratings are iterated in the given order
// without shuffling, so the result is reproducible: the same ratings
// against the same model always yield the same profile. The shared
// model is never mutated. Ratings on items absent from the model still
// contribute to the bias through the residual against the global mean.
func (svd *SVD) FoldIn(ratings []dataset.Rating) (Profile, error) {
	if len(ratings) == 0 {
		return Profile{}, errors.BadRequestf("fold-in requires at least one rating")
	}
	profile := Profile{Factor: make([]float32, svd.nFactors)}
	temp := make([]float32, svd.nFactors)
	userFactor := make([]float32, svd.nFactors)
	for epoch := 0; epoch < svd.nEpochs; epoch++ {
		for _, rating := range ratings {
			e := rating.Rating - svd.PredictWithProfile(profile, rating.ItemId)
			itemProfile, found := svd.ItemProfile(rating.ItemId)
			copy(userFactor, profile.Factor)
			profile.Bias += svd.lr * (e - svd.reg*profile.Bias)
			if found {
				floats.MulConstTo(itemProfile.Factor, e, temp)
				floats.MulConstAdd(userFactor, -svd.reg, temp)
				floats.MulConstAdd(temp, svd.lr, profile.Factor)
			} else {
				floats.MulConstAdd(userFactor, -svd.lr*svd.reg, profile.Factor)
			}
		}
	}
	if math32.IsNaN(profile.Bias) || math32.IsInf(profile.Bias, 0) || !floats.IsFinite(profile.Factor) {
		return Profile{}, errors.Trace(base.ErrTrainingDiverged)
	}
	return profile, nil
}

// Marshal writes the model into a byte stream. The layout is a magic
// string and a format version, the hyper-parameters, the global mean,
// then the user entries and the item entries, each as id, bias and
// factor.
func (svd *SVD) Marshal(w io.Writer) error {
	if err := encoding.WriteString(w, formatMagic); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, svd.Params); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, svd.GlobalMean); err != nil {
		return errors.Trace(err)
	}
	if err := svd.marshalEntries(w, svd.UserIndex, svd.UserBias, svd.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := svd.marshalEntries(w, svd.ItemIndex, svd.ItemBias, svd.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (svd *SVD) marshalEntries(w io.Writer, index *dataset.FreqDict, biases []float32, factors [][]float32) error {
	if err := binary.Write(w, binary.LittleEndian, int64(index.Count())); err != nil {
		return errors.Trace(err)
	}
	for i := int32(0); i < index.Count(); i++ {
		id, _ := index.String(i)
		if err := encoding.WriteString(w, id); err != nil {
			return errors.Trace(err)
		}
		if err := binary.Write(w, binary.LittleEndian, biases[i]); err != nil {
			return errors.Trace(err)
		}
		if err := binary.Write(w, binary.LittleEndian, factors[i]); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal reads a model from a byte stream. An unknown magic string
// or format version fails with ErrModelVersionMismatch instead of
// producing a silently corrupt model.
func (svd *SVD) Unmarshal(r io.Reader) error {
	magic, err := encoding.ReadString(r)
	if err != nil {
		return errors.Trace(err)
	}
	if magic != formatMagic {
		return errors.Annotatef(base.ErrModelVersionMismatch, "unexpected magic %q", magic)
	}
	var version int32
	if err = binary.Read(r, binary.LittleEndian, &version); err != nil {
		return errors.Trace(err)
	}
	if version != formatVersion {
		return errors.Annotatef(base.ErrModelVersionMismatch, "unsupported format version %d", version)
	}
	var params Params
	if err = encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	svd.SetParams(params)
	if err = binary.Read(r, binary.LittleEndian, &svd.GlobalMean); err != nil {
		return errors.Trace(err)
	}
	if svd.UserIndex, svd.UserBias, svd.UserFactor, err = svd.unmarshalEntries(r); err != nil {
		return errors.Trace(err)
	}
	if svd.ItemIndex, svd.ItemBias, svd.ItemFactor, err = svd.unmarshalEntries(r); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (svd *SVD) unmarshalEntries(r io.Reader) (*dataset.FreqDict, []float32, [][]float32, error) {
	var count int64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	index := dataset.NewFreqDict()
	biases := make([]float32, count)
	factors := make([][]float32, count)
	for i := int64(0); i < count; i++ {
		id, err := encoding.ReadString(r)
		if err != nil {
			return nil, nil, nil, errors.Trace(err)
		}
		entryIndex := index.Add(id)
		if err = binary.Read(r, binary.LittleEndian, &biases[entryIndex]); err != nil {
			return nil, nil, nil, errors.Trace(err)
		}
		factors[entryIndex] = make([]float32, svd.nFactors)
		if err = binary.Read(r, binary.LittleEndian, factors[entryIndex]); err != nil {
			return nil, nil, nil, errors.Trace(err)
		}
	}
	return index, biases, factors, nil
}
