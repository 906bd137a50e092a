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

package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKFilter(t *testing.T) {
	filter := NewTopKFilter[string, float32](3)
	filter.Push("a", 1)
	filter.Push("b", 5)
	filter.Push("c", 3)
	filter.Push("d", 4)
	filter.Push("e", 2)
	values, weights := filter.PopAll()
	assert.Equal(t, []string{"b", "d", "c"}, values)
	assert.Equal(t, []float32{5, 4, 3}, weights)
}

func TestTopKFilter_Short(t *testing.T) {
	filter := NewTopKFilter[int, int](10)
	filter.Push(1, 1)
	filter.Push(2, 2)
	values, weights := filter.PopAll()
	assert.Equal(t, []int{2, 1}, values)
	assert.Equal(t, []int{2, 1}, weights)
}
