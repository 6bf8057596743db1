// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/trackfolio/tf-engine/common"
	"github.com/trackfolio/tf-engine/database"
	"github.com/trackfolio/tf-engine/fees"
	"github.com/trackfolio/tf-engine/pnl"
	"github.com/trackfolio/tf-engine/position"
	"github.com/trackfolio/tf-engine/scheduler"
	"github.com/trackfolio/tf-engine/store"
)

func configureViper() {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath("/etc/tf-engine/")
	viper.AddConfigPath("$HOME/.config/tf-engine")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("tfengine")
	viper.AutomaticEnv()

	common.SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("no config file found; using defaults")
	}
}

func main() {
	configureViper()
	common.SetupLogging()

	ctx := context.Background()
	if err := database.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}

	transactions := store.NewTransactionStore()
	positions := store.NewPositionStore()
	feeCalc := fees.NewFromConfig()

	reconciler := position.NewReconciler(transactions, positions,
		position.WithFeeCalculator(feeCalc))
	aggregator := pnl.NewAggregator(transactions,
		pnl.WithFeeCalculator(feeCalc))

	cache, err := pnl.NewCache(aggregator)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build summary cache")
	}

	jobs := scheduler.New(reconciler, cache, transactions)
	if err := jobs.Start(); err != nil {
		log.Fatal().Err(err).Msg("could not start scheduled jobs")
	}

	log.Info().Msg("reconciliation engine running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	jobs.Stop()
	log.Info().Msg("shutdown complete")
}
