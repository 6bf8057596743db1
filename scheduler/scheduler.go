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

// Package scheduler runs the engine's recurring jobs: the nightly
// reconciliation sweep across all portfolios and the periodic cache
// eviction pass.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/trackfolio/tf-engine/common"
	"github.com/trackfolio/tf-engine/pnl"
	"github.com/trackfolio/tf-engine/position"
)

// PortfolioLister enumerates the portfolios due for reconciliation.
type PortfolioLister interface {
	ListPortfolioIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Scheduler owns the gocron instance and the jobs registered on it.
type Scheduler struct {
	cron       *gocron.Scheduler
	reconciler *position.Reconciler
	cache      *pnl.Cache
	portfolios PortfolioLister
}

func New(reconciler *position.Reconciler, cache *pnl.Cache, portfolios PortfolioLister) *Scheduler {
	return &Scheduler{
		cron:       gocron.NewScheduler(common.Timezone()),
		reconciler: reconciler,
		cache:      cache,
		portfolios: portfolios,
	}
}

// Start registers the recurring jobs and begins running them
// asynchronously. Reconciliation runs once daily after market close at
// scheduler.reconcile_at; cache sweeps run every scheduler.sweep_interval
// seconds.
func (s *Scheduler) Start() error {
	if _, err := s.cron.Every(1).Day().At(viper.GetString("scheduler.reconcile_at")).Do(s.reconcileAll); err != nil {
		log.Error().Stack().Err(err).Msg("could not schedule nightly reconciliation")
		return err
	}

	sweepInterval := viper.GetInt("scheduler.sweep_interval")
	if sweepInterval <= 0 {
		sweepInterval = 60
	}
	if _, err := s.cron.Every(sweepInterval).Seconds().Do(s.cache.Sweep); err != nil {
		log.Error().Stack().Err(err).Msg("could not schedule cache sweep")
		return err
	}

	s.cron.StartAsync()
	return nil
}

// Stop blocks until any running job finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) reconcileAll() {
	ctx := context.Background()

	ids, err := s.portfolios.ListPortfolioIDs(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not list portfolios for reconciliation")
		return
	}

	start := time.Now()
	var degraded, failed int
	for _, id := range ids {
		report, err := s.reconciler.Reconcile(ctx, id)
		if err != nil {
			log.Error().Stack().Err(err).Str("PortfolioID", id.String()).Msg("reconciliation failed")
		}
		switch report.Outcome {
		case position.OutcomeDegraded:
			degraded++
		case position.OutcomeFailed:
			failed++
		}

		// stale monthly figures for the reconciled portfolio are dropped
		// immediately rather than waiting out the TTL
		now := time.Now().In(common.Timezone())
		s.cache.Invalidate(id, now.Year(), now.Month())
	}

	log.Info().
		Int("Portfolios", len(ids)).
		Int("Degraded", degraded).
		Int("Failed", failed).
		Dur("Elapsed", time.Since(start)).
		Msg("nightly reconciliation complete")
}
