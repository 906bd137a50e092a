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

package dataset

import (
	"encoding/csv"
	"os"
	"strings"
	"unicode"

	"github.com/juju/errors"
)

// Item is an entry of the catalog. Items are loaded once at startup and
// never mutated.
type Item struct {
	ItemId string   `json:"item_id"`
	Title  string   `json:"title"`
	Tags   []string `json:"tags"`
}

// Catalog is an immutable, ordered collection of items.
type Catalog struct {
	items     []Item
	positions map[string]int
}

// NewCatalog creates a catalog from items, preserving order. Duplicated
// item ids keep their first occurrence.
func NewCatalog(items []Item) *Catalog {
	c := &Catalog{
		items:     make([]Item, 0, len(items)),
		positions: make(map[string]int, len(items)),
	}
	for _, item := range items {
		if _, exist := c.positions[item.ItemId]; exist {
			continue
		}
		c.positions[item.ItemId] = len(c.items)
		c.items = append(c.items, item)
	}
	return c
}

// Items returns all items in catalog order.
func (c *Catalog) Items() []Item {
	return c.items
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	return len(c.items)
}

// Get returns the item with the given id.
func (c *Catalog) Get(itemId string) (Item, bool) {
	if pos, exist := c.positions[itemId]; exist {
		return c.items[pos], true
	}
	return Item{}, false
}

// Position returns the catalog order of an item, or -1 if absent.
func (c *Catalog) Position(itemId string) int {
	if pos, exist := c.positions[itemId]; exist {
		return pos
	}
	return -1
}

// TokenizeTags normalizes category tags into lowercase tokens: tags are
// split on non-alphanumeric runes and tokens shorter than two runes are
// dropped, so "Sci-Fi" becomes ["sci", "fi"].
func TokenizeTags(tags []string) []string {
	var tokens []string
	for _, tag := range tags {
		fields := strings.FieldsFunc(strings.ToLower(tag), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, field := range fields {
			if len([]rune(field)) >= 2 {
				tokens = append(tokens, field)
			}
		}
	}
	return tokens
}

// LoadCatalog reads the item catalog from a CSV file with columns
// movieId,title,genres where genres are separated by '|'. The header
// row is skipped.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Trace(err)
	}
	items := make([]Item, 0, len(records))
	for i, record := range records {
		if i == 0 && record[0] == "movieId" {
			continue
		}
		if len(record) < 3 {
			return nil, errors.Errorf("malformed catalog entry at line %d", i+1)
		}
		var tags []string
		if record[2] != "" {
			tags = strings.Split(record[2], "|")
		}
		items = append(items, Item{
			ItemId: record[0],
			Title:  record[1],
			Tags:   tags,
		})
	}
	return NewCatalog(items), nil
}
