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
	"strings"
	"time"

	"github.com/cinerec-io/cinerec/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

var (
	ErrUserNotExist = errors.NotFoundf("user")
	ErrNoDatabase   = errors.NotAssignedf("database")
)

// User is a registered account.
type User struct {
	UserId         string `gorm:"primaryKey;type:varchar(256)"`
	HashedPassword string
	CreatedAt      time.Time
}

// Rating is an explicit feedback event persisted per user and item.
// Rating again overwrites the previous value.
type Rating struct {
	UserId    string `gorm:"primaryKey;type:varchar(256)"`
	ItemId    string `gorm:"primaryKey;type:varchar(256)"`
	Rating    float32
	Timestamp time.Time
}

// Database stores users and their rating events.
type Database interface {
	// Init tables and indices.
	Init() error
	// Close the database connection.
	Close() error
	// Ping the database.
	Ping() error
	// InsertUser inserts a new user. Inserting an existing user id fails
	// with an already exists error.
	InsertUser(user User) error
	// GetUser returns a user by id, or ErrUserNotExist.
	GetUser(userId string) (User, error)
	// UpsertRating inserts a rating, overwriting any previous rating by
	// the same user on the same item.
	UpsertRating(rating Rating) error
	// BatchUpsertRatings inserts a batch of ratings.
	BatchUpsertRatings(ratings []Rating) error
	// GetUserRatings returns all ratings of a user, oldest first.
	GetUserRatings(userId string) ([]Rating, error)
	// CountRatings returns the total number of ratings.
	CountRatings() (int64, error)
	// SampleRatings returns up to n randomly chosen ratings.
	SampleRatings(n int) ([]Rating, error)
}

// Open a database specified by a URL, dispatching on its scheme:
// mysql://, postgres:// (postgresql://) and sqlite://.
func Open(path, tablePrefix string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database := new(SQLDatabase)
		database.driver = MySQL
		if database.client, err = sql.Open("mysql", name); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		if database.client, err = sql.Open("postgres", path); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		if database.client, err = sql.Open("sqlite", name); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("unknown database: %s", path)
}
