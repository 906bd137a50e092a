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
	"container/heap"
	"sort"

	"golang.org/x/exp/constraints"
)

// Elem is an element with weight.
type Elem[E any, W constraints.Ordered] struct {
	Value  E
	Weight W
}

type _heap[T any, W constraints.Ordered] struct {
	elems []Elem[T, W]
}

func (e *_heap[T, W]) Len() int {
	return len(e.elems)
}

func (e *_heap[T, W]) Less(i, j int) bool {
	return e.elems[i].Weight < e.elems[j].Weight
}

func (e *_heap[T, W]) Swap(i, j int) {
	e.elems[i], e.elems[j] = e.elems[j], e.elems[i]
}

func (e *_heap[T, W]) Push(x interface{}) {
	it := x.(Elem[T, W])
	e.elems = append(e.elems, it)
}

func (e *_heap[T, W]) Pop() interface{} {
	old := e.elems
	item := e.elems[len(old)-1]
	e.elems = old[0 : len(old)-1]
	return item
}

// TopKFilter filters out top k elements by weight.
type TopKFilter[T any, W constraints.Ordered] struct {
	_heap[T, W]
	k int
}

// NewTopKFilter creates a top k filter.
func NewTopKFilter[T any, W constraints.Ordered](k int) *TopKFilter[T, W] {
	return &TopKFilter[T, W]{k: k}
}

// Push a new element into the filter.
func (filter *TopKFilter[T, W]) Push(value T, weight W) {
	if filter.Len() < filter.k {
		heap.Push(&filter._heap, Elem[T, W]{value, weight})
	} else if filter.k > 0 && weight > filter.elems[0].Weight {
		filter.elems[0] = Elem[T, W]{value, weight}
		heap.Fix(&filter._heap, 0)
	}
}

// PopAll pops all elements in descending order of weight.
func (filter *TopKFilter[T, W]) PopAll() ([]T, []W) {
	elems := make([]Elem[T, W], len(filter.elems))
	copy(elems, filter.elems)
	sort.Slice(elems, func(i, j int) bool {
		return elems[i].Weight > elems[j].Weight
	})
	values := make([]T, len(elems))
	weights := make([]W, len(elems))
	for i, elem := range elems {
		values[i] = elem.Value
		weights[i] = elem.Weight
	}
	return values, weights
}
