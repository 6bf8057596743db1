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

package common

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/viper"
)

// SetDefaults registers the engine's configuration defaults with viper.
// Call once at startup, before any component reads its settings.
func SetDefaults() {
	viper.SetDefault("fees.per_contract", 0.35)
	viper.SetDefault("pnl.neutral_threshold", 0.01)
	viper.SetDefault("cache.ttl", 300)
	viper.SetDefault("cache.local_size", 128)
	viper.SetDefault("calendar.timezone", "America/New_York")
	viper.SetDefault("scheduler.reconcile_at", "21:30")
	viper.SetDefault("scheduler.sweep_interval", 60)
	viper.SetDefault("log.level", "warning")
}

func SetupLogging() {
	// Set level
	level := viper.GetString("log.level")
	level = strings.ToLower(level)

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	// Set report caller
	if viper.GetBool("log.report_caller") {
		log.Logger = log.With().Caller().Logger()
	}

	// Setup output
	output := viper.GetString("log.output")
	switch output {
	case "stderr":
		if viper.GetBool("log.pretty") {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		} else {
			log.Logger = log.Output(os.Stderr)
		}
	default:
		if viper.GetBool("log.pretty") {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
		} else {
			log.Logger = log.Output(os.Stdout)
		}
	}

	// setup stack marshaler
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// Timezone returns the reporting timezone used when bucketing transactions
// into calendar days. All P&L calendars are rendered in this zone.
func Timezone() *time.Location {
	name := viper.GetString("calendar.timezone")
	if name == "" {
		name = "America/New_York"
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		log.Panic().Err(err).Str("Timezone", name).Msg("could not load timezone")
	}
	return tz
}
