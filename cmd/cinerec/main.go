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

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/emicklei/go-restful/v3"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cinerec-io/cinerec/base"
	"github.com/cinerec-io/cinerec/base/log"
	"github.com/cinerec-io/cinerec/cmd/version"
	"github.com/cinerec-io/cinerec/config"
	"github.com/cinerec-io/cinerec/dataset"
	"github.com/cinerec-io/cinerec/engine"
	"github.com/cinerec-io/cinerec/server"
	"github.com/cinerec-io/cinerec/storage/data"
)

var rootCommand = &cobra.Command{
	Use:   "cinerec",
	Short: "A hybrid movie recommendation engine.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Train the rating model from a ratings CSV and write the model file.",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd)
		cfg := loadConfig(cmd)
		if err := train(cfg); err != nil {
			log.Logger().Fatal("failed to train", zap.Error(err))
		}
	},
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over the REST API.",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd)
		cfg := loadConfig(cmd)
		if err := serve(cfg); err != nil {
			log.Logger().Fatal("failed to serve", zap.Error(err))
		}
	},
}

func init() {
	rootCommand.PersistentFlags().BoolP("version", "v", false, "cinerec version")
	rootCommand.PersistentFlags().StringP("config", "c", "config.toml", "path of configuration file")
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.AddCommand(trainCommand)
	rootCommand.AddCommand(serveCommand)
}

func setupLogger(cmd *cobra.Command) {
	debugMode, _ := cmd.Root().PersistentFlags().GetBool("debug")
	log.SetLogger(cmd.Root().PersistentFlags(), debugMode)
}

func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config",
			zap.String("config_path", configPath), zap.Error(err))
	}
	return cfg
}

// loadRatings reads a ratings CSV with a byte progress bar.
func loadRatings(path string) ([]dataset.Rating, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, errors.Trace(err)
	}
	pbReader := progressbar.NewReader(f, progressbar.DefaultBytes(
		stat.Size(),
		"Loading ratings",
	))
	return dataset.ReadRatings(&pbReader)
}

func train(cfg *config.Config) error {
	catalog, err := dataset.LoadCatalog(cfg.Recommend.CatalogPath)
	if err != nil {
		return errors.Trace(err)
	}
	ratings, err := loadRatings(cfg.Recommend.RatingsPath)
	if err != nil {
		return errors.Trace(err)
	}
	if len(ratings) > cfg.Recommend.SampleSize {
		rng := base.NewRandomGenerator(cfg.Recommend.RandomState)
		sampled := make([]dataset.Rating, 0, cfg.Recommend.SampleSize)
		for _, i := range rng.Sample(0, len(ratings), cfg.Recommend.SampleSize) {
			sampled = append(sampled, ratings[i])
		}
		log.Logger().Info("subsampled ratings",
			zap.Int("total", len(ratings)), zap.Int("sampled", len(sampled)))
		ratings = sampled
	}
	e := engine.NewEngine(&cfg.Recommend, catalog)
	defer e.Close()
	if err = e.Train(ratings); err != nil {
		return errors.Trace(err)
	}
	if err = e.SaveModel(cfg.Recommend.ModelPath); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("model written", zap.String("path", cfg.Recommend.ModelPath))
	return nil
}

func serve(cfg *config.Config) error {
	catalog, err := dataset.LoadCatalog(cfg.Recommend.CatalogPath)
	if err != nil {
		return errors.Trace(err)
	}
	e := engine.NewEngine(&cfg.Recommend, catalog)
	defer e.Close()
	ratings, err := loadRatings(cfg.Recommend.RatingsPath)
	if err != nil {
		return errors.Trace(err)
	}
	if err = e.LoadModel(cfg.Recommend.ModelPath, ratings); err != nil {
		return errors.Trace(err)
	}
	database, err := data.Open(cfg.Database.DataStore, cfg.Database.TablePrefix)
	if err != nil {
		return errors.Trace(err)
	}
	if err = database.Init(); err != nil {
		return errors.Trace(err)
	}
	defer database.Close()
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = randomSecret()
		log.Logger().Warn("auth.jwt_secret is empty, sessions will not survive restarts")
	}
	s := &server.RestServer{
		DataClient: database,
		Engine:     e,
		Catalog:    catalog,
		Config:     cfg,
		Tokens:     server.NewTokenManager(secret, cfg.Auth.TokenExpiry),
		WebService: new(restful.WebService),
	}
	s.StartHttpServer()
	return nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Logger().Fatal("failed to generate secret", zap.Error(err))
	}
	return hex.EncodeToString(buf)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
