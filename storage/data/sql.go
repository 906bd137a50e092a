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

import (
	"database/sql"

	"github.com/juju/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLDriver is the underlying driver of a SQLDatabase.
type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// SQLDatabase stores users and ratings in a SQL database.
type SQLDatabase struct {
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init tables and indices.
func (d *SQLDatabase) Init() error {
	return errors.Trace(d.gormDB.AutoMigrate(&User{}, &Rating{}))
}

// Close the database connection.
func (d *SQLDatabase) Close() error {
	return errors.Trace(d.client.Close())
}

// Ping the database.
func (d *SQLDatabase) Ping() error {
	return errors.Trace(d.client.Ping())
}

// InsertUser inserts a new user. Inserting an existing user id fails
// with an already exists error.
func (d *SQLDatabase) InsertUser(user User) error {
	result := d.gormDB.Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if result.Error != nil {
		return errors.Trace(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.AlreadyExistsf("user %s", user.UserId)
	}
	return nil
}

// GetUser returns a user by id.
func (d *SQLDatabase) GetUser(userId string) (User, error) {
	var user User
	if err := d.gormDB.Where("user_id = ?", userId).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, errors.Trace(ErrUserNotExist)
		}
		return User{}, errors.Trace(err)
	}
	return user, nil
}

// UpsertRating inserts a rating, overwriting any previous rating by the
// same user on the same item.
func (d *SQLDatabase) UpsertRating(rating Rating) error {
	return errors.Trace(d.gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "timestamp"}),
	}).Create(&rating).Error)
}

// BatchUpsertRatings inserts a batch of ratings.
func (d *SQLDatabase) BatchUpsertRatings(ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	return errors.Trace(d.gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "timestamp"}),
	}).Create(&ratings).Error)
}

// GetUserRatings returns all ratings of a user, oldest first.
func (d *SQLDatabase) GetUserRatings(userId string) ([]Rating, error) {
	var ratings []Rating
	if err := d.gormDB.Where("user_id = ?", userId).Order("timestamp").Find(&ratings).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return ratings, nil
}

// CountRatings returns the total number of ratings.
func (d *SQLDatabase) CountRatings() (int64, error) {
	var count int64
	if err := d.gormDB.Model(&Rating{}).Count(&count).Error; err != nil {
		return 0, errors.Trace(err)
	}
	return count, nil
}

// SampleRatings returns up to n randomly chosen ratings.
func (d *SQLDatabase) SampleRatings(n int) ([]Rating, error) {
	var random string
	switch d.driver {
	case MySQL:
		random = "RAND()"
	default:
		random = "RANDOM()"
	}
	var ratings []Rating
	if err := d.gormDB.Order(random).Limit(n).Find(&ratings).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return ratings, nil
}
