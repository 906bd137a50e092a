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

package floats

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.Equal(t, float32(32), Dot(a, b))
	assert.Panics(t, func() { Dot(a, []float32{1}) })
}

func TestZero(t *testing.T) {
	a := []float32{1, 2, 3}
	Zero(a)
	assert.Equal(t, []float32{0, 0, 0}, a)
}

func TestMatZero(t *testing.T) {
	a := [][]float32{{1, 2}, {3, 4}}
	MatZero(a)
	assert.Equal(t, [][]float32{{0, 0}, {0, 0}}, a)
}

func TestMulConst(t *testing.T) {
	a := []float32{1, 2, 3}
	MulConst(a, 2)
	assert.Equal(t, []float32{2, 4, 6}, a)
}

func TestMulConstTo(t *testing.T) {
	a := []float32{1, 2, 3}
	dst := make([]float32, 3)
	MulConstTo(a, 2, dst)
	assert.Equal(t, []float32{2, 4, 6}, dst)
	assert.Panics(t, func() { MulConstTo(a, 2, []float32{1}) })
}

func TestMulConstAdd(t *testing.T) {
	a := []float32{1, 2, 3}
	dst := []float32{1, 1, 1}
	MulConstAdd(a, 2, dst)
	assert.Equal(t, []float32{3, 5, 7}, dst)
	assert.Panics(t, func() { MulConstAdd(a, 2, []float32{1}) })
}

func TestAddTo(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	dst := make([]float32, 3)
	AddTo(a, b, dst)
	assert.Equal(t, []float32{5, 7, 9}, dst)
	assert.Panics(t, func() { AddTo(a, b, []float32{1}) })
}

func TestSubTo(t *testing.T) {
	a := []float32{4, 5, 6}
	b := []float32{1, 2, 3}
	dst := make([]float32, 3)
	SubTo(a, b, dst)
	assert.Equal(t, []float32{3, 3, 3}, dst)
	assert.Panics(t, func() { SubTo(a, b, []float32{1}) })
}

func TestNorm(t *testing.T) {
	assert.Equal(t, float32(5), Norm([]float32{3, 4}))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite([]float32{1, 2, 3}))
	assert.False(t, IsFinite([]float32{1, math32.NaN()}))
	assert.False(t, IsFinite([]float32{1, math32.Inf(1)}))
}
