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
	"testing"

	"github.com/cinerec-io/cinerec/dataset"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog() *dataset.Catalog {
	return dataset.NewCatalog([]dataset.Item{
		{ItemId: "1", Title: "Space Battle", Tags: []string{"Action", "Sci-Fi"}},
		{ItemId: "2", Title: "Treasure Hunt", Tags: []string{"Action", "Adventure"}},
		{ItemId: "3", Title: "Quiet Lives", Tags: []string{"Drama"}},
	})
}

func TestSimilarityIndex_Similar(t *testing.T) {
	index := NewSimilarityIndex(newTestCatalog())
	similar, err := index.Similar("1", 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	// The shared "action" token ranks item 2 above item 3.
	assert.Equal(t, "2", similar[0].ItemId)
	assert.Equal(t, "3", similar[1].ItemId)
	assert.Greater(t, similar[0].Score, similar[1].Score)
	// The query item is never included.
	for _, item := range similar {
		assert.NotEqual(t, "1", item.ItemId)
	}
}

func TestSimilarityIndex_Truncates(t *testing.T) {
	index := NewSimilarityIndex(newTestCatalog())
	similar, err := index.Similar("1", 1)
	require.NoError(t, err)
	assert.Len(t, similar, 1)
	similar, err = index.Similar("1", 100)
	require.NoError(t, err)
	assert.Len(t, similar, 2)
}

func TestSimilarityIndex_NegativeK(t *testing.T) {
	index := NewSimilarityIndex(newTestCatalog())
	similar, err := index.Similar("1", -1)
	assert.NoError(t, err)
	assert.Empty(t, similar)
}

func TestSimilarityIndex_NotFound(t *testing.T) {
	index := NewSimilarityIndex(newTestCatalog())
	_, err := index.Similar("404", 2)
	assert.True(t, errors.IsNotFound(err), "%v", err)
}

func TestSimilarityIndex_TieBreak(t *testing.T) {
	// Items 2 and 3 are indistinguishable from item 1, so ties resolve
	// by catalog order.
	index := NewSimilarityIndex(dataset.NewCatalog([]dataset.Item{
		{ItemId: "1", Tags: []string{"Comedy"}},
		{ItemId: "5", Tags: []string{"Horror"}},
		{ItemId: "2", Tags: []string{"Horror"}},
	}))
	similar, err := index.Similar("1", 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, "5", similar[0].ItemId)
	assert.Equal(t, "2", similar[1].ItemId)
}

func TestSimilarityIndex_EmptyTags(t *testing.T) {
	index := NewSimilarityIndex(dataset.NewCatalog([]dataset.Item{
		{ItemId: "1", Tags: nil},
		{ItemId: "2", Tags: []string{"Drama"}},
	}))
	similar, err := index.Similar("1", 5)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Zero(t, similar[0].Score)
}
