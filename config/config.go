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
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration of the recommender service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig is the configuration of the REST server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// DatabaseConfig is the configuration of the persistence layer.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// RecommendConfig is the configuration of the recommendation engine.
type RecommendConfig struct {
	CatalogPath string `mapstructure:"catalog_path" validate:"required"`
	ModelPath   string `mapstructure:"model_path" validate:"required"`
	RatingsPath string `mapstructure:"ratings_path"`
	// Hyper-parameters
	NFactors    int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gt=0"`
	Lr          float64 `mapstructure:"lr" validate:"gt=0"`
	Reg         float64 `mapstructure:"reg" validate:"gte=0"`
	RandomState int64   `mapstructure:"random_state"`
	SampleSize  int     `mapstructure:"sample_size" validate:"gt=0"`
	// Ranking
	TopN          int `mapstructure:"top_n" validate:"gt=0"`
	CandidatePool int `mapstructure:"candidate_pool" validate:"gt=0"`
	// Popularity
	NumPopular        int `mapstructure:"num_popular" validate:"gt=0"`
	PopularMinRatings int `mapstructure:"popular_min_ratings" validate:"gt=0"`
	// Fold-in
	FoldInMinRatings int           `mapstructure:"fold_in_min_ratings" validate:"gt=0"`
	FoldInCacheTTL   time.Duration `mapstructure:"fold_in_cache_ttl"`
}

// AuthConfig is the configuration of session tokens.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry" validate:"gt=0"`
}

// GetDefaultConfig returns a configuration with default values.
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8087,
		},
		Database: DatabaseConfig{
			DataStore:   "sqlite://cinerec.db",
			TablePrefix: "cinerec_",
		},
		Recommend: RecommendConfig{
			CatalogPath:       "movies.csv",
			ModelPath:         "cinerec.model",
			RatingsPath:       "ratings.csv",
			NFactors:          50,
			NEpochs:           20,
			Lr:                0.005,
			Reg:               0.02,
			RandomState:       0,
			SampleSize:        500000,
			TopN:              10,
			CandidatePool:     30,
			NumPopular:        50,
			PopularMinRatings: 100,
			FoldInMinRatings:  3,
			FoldInCacheTTL:    10 * time.Minute,
		},
		Auth: AuthConfig{
			TokenExpiry: 24 * time.Hour,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	// [database]
	viper.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [recommend]
	viper.SetDefault("recommend.catalog_path", defaultConfig.Recommend.CatalogPath)
	viper.SetDefault("recommend.model_path", defaultConfig.Recommend.ModelPath)
	viper.SetDefault("recommend.ratings_path", defaultConfig.Recommend.RatingsPath)
	viper.SetDefault("recommend.n_factors", defaultConfig.Recommend.NFactors)
	viper.SetDefault("recommend.n_epochs", defaultConfig.Recommend.NEpochs)
	viper.SetDefault("recommend.lr", defaultConfig.Recommend.Lr)
	viper.SetDefault("recommend.reg", defaultConfig.Recommend.Reg)
	viper.SetDefault("recommend.random_state", defaultConfig.Recommend.RandomState)
	viper.SetDefault("recommend.sample_size", defaultConfig.Recommend.SampleSize)
	viper.SetDefault("recommend.top_n", defaultConfig.Recommend.TopN)
	viper.SetDefault("recommend.candidate_pool", defaultConfig.Recommend.CandidatePool)
	viper.SetDefault("recommend.num_popular", defaultConfig.Recommend.NumPopular)
	viper.SetDefault("recommend.popular_min_ratings", defaultConfig.Recommend.PopularMinRatings)
	viper.SetDefault("recommend.fold_in_min_ratings", defaultConfig.Recommend.FoldInMinRatings)
	viper.SetDefault("recommend.fold_in_cache_ttl", defaultConfig.Recommend.FoldInCacheTTL)
	// [auth]
	viper.SetDefault("auth.jwt_secret", defaultConfig.Auth.JWTSecret)
	viper.SetDefault("auth.token_expiry", defaultConfig.Auth.TokenExpiry)
}

type configBinding struct {
	key string
	env string
}

func bindEnv() {
	bindings := []configBinding{
		{"server.host", "CINEREC_SERVER_HOST"},
		{"server.port", "CINEREC_SERVER_PORT"},
		{"database.data_store", "CINEREC_DATA_STORE"},
		{"database.table_prefix", "CINEREC_TABLE_PREFIX"},
		{"recommend.catalog_path", "CINEREC_CATALOG_PATH"},
		{"recommend.model_path", "CINEREC_MODEL_PATH"},
		{"recommend.ratings_path", "CINEREC_RATINGS_PATH"},
		{"auth.jwt_secret", "CINEREC_JWT_SECRET"},
	}
	for _, binding := range bindings {
		err := viper.BindEnv(binding.key, binding.env)
		if err != nil {
			panic(err)
		}
	}
}

// LoadConfig loads the configuration from a TOML file. Environment
// variables override file values and file values override defaults.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	bindEnv()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}

// Validate checks constraints on configuration values.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			return errors.BadRequestf("invalid config: field %s fails constraint %q",
				strings.ToLower(first.Namespace()), first.Tag())
		}
		return errors.Trace(err)
	}
	return nil
}
