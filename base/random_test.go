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

package base

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestRandomGenerator_NormalVector(t *testing.T) {
	rng := NewRandomGenerator(0)
	vec := rng.NormalVector(1000, 1, 2)
	assert.Len(t, vec, 1000)
	mean, stdDev := meanStdDev(vec)
	assert.InDelta(t, 1, mean, 0.2)
	assert.InDelta(t, 2, stdDev, 0.2)
	// same seed, same vector
	rng2 := NewRandomGenerator(0)
	assert.Equal(t, vec, rng2.NormalVector(1000, 1, 2))
}

func TestRandomGenerator_NormalMatrix(t *testing.T) {
	rng := NewRandomGenerator(42)
	mat := rng.NormalMatrix(10, 5, 0, 0.1)
	assert.Len(t, mat, 10)
	for _, row := range mat {
		assert.Len(t, row, 5)
	}
}

func TestRandomGenerator_Sample(t *testing.T) {
	rng := NewRandomGenerator(42)
	sampled := rng.Sample(10, 50, 20)
	assert.Len(t, sampled, 20)
	seen := make(map[int]bool)
	for _, v := range sampled {
		assert.GreaterOrEqual(t, v, 10)
		assert.Less(t, v, 50)
		assert.False(t, seen[v])
		seen[v] = true
	}
	// sample size is capped by the interval
	assert.Len(t, rng.Sample(0, 5, 10), 5)
}

func meanStdDev(vec []float32) (float32, float32) {
	var sum float32
	for _, v := range vec {
		sum += v
	}
	mean := sum / float32(len(vec))
	var s float32
	for _, v := range vec {
		s += (v - mean) * (v - mean)
	}
	return mean, math32.Sqrt(s / float32(len(vec)))
}
