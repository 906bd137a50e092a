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

package data

// NoDatabase means no database is attached. Every operation fails with
// ErrNoDatabase.
type NoDatabase struct{}

func (NoDatabase) Init() error {
	return ErrNoDatabase
}

func (NoDatabase) Close() error {
	return ErrNoDatabase
}

func (NoDatabase) Ping() error {
	return ErrNoDatabase
}

func (NoDatabase) InsertUser(_ User) error {
	return ErrNoDatabase
}

func (NoDatabase) GetUser(_ string) (User, error) {
	return User{}, ErrNoDatabase
}

func (NoDatabase) UpsertRating(_ Rating) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchUpsertRatings(_ []Rating) error {
	return ErrNoDatabase
}

func (NoDatabase) GetUserRatings(_ string) ([]Rating, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) CountRatings() (int64, error) {
	return 0, ErrNoDatabase
}

func (NoDatabase) SampleRatings(_ int) ([]Rating, error) {
	return nil, ErrNoDatabase
}
