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
	"github.com/cinerec-io/cinerec/base"
)

// BaseModel holds hyper-parameters and the seeded random generator shared
// by all models.
type BaseModel struct {
	Params    Params
	rng       base.RandomGenerator
	randState int64
}

// SetParams sets hyper-parameters and reseeds the random generator.
func (m *BaseModel) SetParams(params Params) {
	m.Params = params
	m.randState = m.Params.GetInt64(RandomState, 0)
	m.rng = base.NewRandomGenerator(m.randState)
}

// GetParams returns all hyper-parameters.
func (m *BaseModel) GetParams() Params {
	return m.Params
}

func (m *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return m.rng
}
