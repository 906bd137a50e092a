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
	"io"
	"os"
	"strconv"
	"time"

	"github.com/juju/errors"
)

// Rating is a single explicit feedback event.
type Rating struct {
	UserId    string
	ItemId    string
	Rating    float32
	Timestamp time.Time
}

// Dataset is an in-memory training set of explicit ratings with dense
// user and item indices.
type Dataset struct {
	UserDict *FreqDict
	ItemDict *FreqDict
	Users    []int32
	Items    []int32
	Ratings  []float32
}

// NewDataset creates an empty dataset with capacity hint n.
func NewDataset(n int) *Dataset {
	return &Dataset{
		UserDict: NewFreqDict(),
		ItemDict: NewFreqDict(),
		Users:    make([]int32, 0, n),
		Items:    make([]int32, 0, n),
		Ratings:  make([]float32, 0, n),
	}
}

// AddRating appends a rating to the dataset.
func (d *Dataset) AddRating(userId, itemId string, rating float32) {
	d.Users = append(d.Users, d.UserDict.Add(userId))
	d.Items = append(d.Items, d.ItemDict.Add(itemId))
	d.Ratings = append(d.Ratings, rating)
}

// Count returns the number of ratings.
func (d *Dataset) Count() int {
	return len(d.Ratings)
}

// CountUsers returns the number of distinct users.
func (d *Dataset) CountUsers() int {
	return int(d.UserDict.Count())
}

// CountItems returns the number of distinct items.
func (d *Dataset) CountItems() int {
	return int(d.ItemDict.Count())
}

// Get returns the i-th rating as dense indices.
func (d *Dataset) Get(i int) (userIndex, itemIndex int32, rating float32) {
	return d.Users[i], d.Items[i], d.Ratings[i]
}

// Mean returns the arithmetic mean of rating values.
func (d *Dataset) Mean() float32 {
	if len(d.Ratings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range d.Ratings {
		sum += float64(r)
	}
	return float32(sum / float64(len(d.Ratings)))
}

// FromRatings builds a dataset from a slice of rating events.
func FromRatings(ratings []Rating) *Dataset {
	d := NewDataset(len(ratings))
	for _, r := range ratings {
		d.AddRating(r.UserId, r.ItemId, r.Rating)
	}
	return d
}

// LoadRatings reads rating events from a CSV file with columns
// userId,movieId,rating[,timestamp]. The header row is skipped.
func LoadRatings(path string) ([]Rating, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	return ReadRatings(f)
}

// ReadRatings reads rating events in the LoadRatings CSV format from a
// stream.
func ReadRatings(r io.Reader) ([]Rating, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Trace(err)
	}
	ratings := make([]Rating, 0, len(records))
	for i, record := range records {
		if i == 0 && record[0] == "userId" {
			continue
		}
		if len(record) < 3 {
			return nil, errors.Errorf("malformed rating at line %d", i+1)
		}
		value, err := strconv.ParseFloat(record[2], 32)
		if err != nil {
			return nil, errors.Annotatef(err, "malformed rating at line %d", i+1)
		}
		rating := Rating{
			UserId: record[0],
			ItemId: record[1],
			Rating: float32(value),
		}
		if len(record) > 3 {
			if unix, err := strconv.ParseInt(record[3], 10, 64); err == nil {
				rating.Timestamp = time.Unix(unix, 0).UTC()
			}
		}
		ratings = append(ratings, rating)
	}
	return ratings, nil
}
