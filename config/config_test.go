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

package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestUnmarshal(t *testing.T) {
	data, err := os.ReadFile("config.toml.template")
	assert.NoError(t, err)
	text := string(data)
	text = strings.Replace(text, "jwt_secret = \"\"", "jwt_secret = \"19260817\"", -1)
	viper.SetConfigType("toml")
	err = viper.ReadConfig(strings.NewReader(text))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)

	// [server]
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 8087, config.Server.Port)
	// [database]
	assert.Equal(t, "sqlite://cinerec.db", config.Database.DataStore)
	assert.Equal(t, "cinerec_", config.Database.TablePrefix)
	// [recommend]
	assert.Equal(t, "movies.csv", config.Recommend.CatalogPath)
	assert.Equal(t, "cinerec.model", config.Recommend.ModelPath)
	assert.Equal(t, "ratings.csv", config.Recommend.RatingsPath)
	assert.Equal(t, 50, config.Recommend.NFactors)
	assert.Equal(t, 20, config.Recommend.NEpochs)
	assert.Equal(t, 0.005, config.Recommend.Lr)
	assert.Equal(t, 0.02, config.Recommend.Reg)
	assert.Equal(t, int64(0), config.Recommend.RandomState)
	assert.Equal(t, 500000, config.Recommend.SampleSize)
	assert.Equal(t, 10, config.Recommend.TopN)
	assert.Equal(t, 30, config.Recommend.CandidatePool)
	assert.Equal(t, 50, config.Recommend.NumPopular)
	assert.Equal(t, 100, config.Recommend.PopularMinRatings)
	assert.Equal(t, 3, config.Recommend.FoldInMinRatings)
	assert.Equal(t, 10*time.Minute, config.Recommend.FoldInCacheTTL)
	// [auth]
	assert.Equal(t, "19260817", config.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, config.Auth.TokenExpiry)
}

func TestSetDefault(t *testing.T) {
	setDefault()
	viper.SetConfigType("toml")
	err := viper.ReadConfig(strings.NewReader(""))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), &config)
}

type environmentVariable struct {
	key   string
	value string
}

func TestBindEnv(t *testing.T) {
	variables := []environmentVariable{
		{"CINEREC_SERVER_HOST", "<server_host>"},
		{"CINEREC_SERVER_PORT", "123"},
		{"CINEREC_DATA_STORE", "<data_store>"},
		{"CINEREC_TABLE_PREFIX", "t_"},
		{"CINEREC_CATALOG_PATH", "<catalog_path>"},
		{"CINEREC_MODEL_PATH", "<model_path>"},
		{"CINEREC_RATINGS_PATH", "<ratings_path>"},
		{"CINEREC_JWT_SECRET", "<jwt_secret>"},
	}
	for _, variable := range variables {
		t.Setenv(variable.key, variable.value)
	}

	config, err := LoadConfig("config.toml.template")
	assert.NoError(t, err)
	assert.Equal(t, "<server_host>", config.Server.Host)
	assert.Equal(t, 123, config.Server.Port)
	assert.Equal(t, "<data_store>", config.Database.DataStore)
	assert.Equal(t, "t_", config.Database.TablePrefix)
	assert.Equal(t, "<catalog_path>", config.Recommend.CatalogPath)
	assert.Equal(t, "<model_path>", config.Recommend.ModelPath)
	assert.Equal(t, "<ratings_path>", config.Recommend.RatingsPath)
	assert.Equal(t, "<jwt_secret>", config.Auth.JWTSecret)

	// check default values
	assert.Equal(t, 10, config.Recommend.TopN)
}

func TestValidate(t *testing.T) {
	config := GetDefaultConfig()
	assert.NoError(t, config.Validate())

	config = GetDefaultConfig()
	config.Recommend.NFactors = 0
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Server.Port = 70000
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Database.DataStore = ""
	assert.Error(t, config.Validate())
}
