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

package position

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/common"
	"github.com/trackfolio/tf-engine/fees"
	"github.com/trackfolio/tf-engine/ledger"
)

// Outcome is the explicit three-state result of a reconciliation pass, so
// callers choose their own policy instead of inheriting a hidden default.
type Outcome int

const (
	// OutcomeSucceeded means every transaction reconciled cleanly.
	OutcomeSucceeded Outcome = iota
	// OutcomeDegraded means the pass finished but quarantined orphans or
	// skipped auto-expiration for assets with unparseable symbols.
	OutcomeDegraded
	// OutcomeFailed means the pass aborted; no positions were written.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Report describes one reconciliation pass.
type Report struct {
	PortfolioID            uuid.UUID
	Outcome                Outcome
	Positions              []*Position
	Deleted                []uuid.UUID
	Orphans                []*ledger.Orphan
	SkippedSymbols         []string
	SynthesizedExpirations int
	ReconciledAt           time.Time
}

// Reconciler rebuilds all of a portfolio's positions from its full
// transaction history. It is a stateless computation layer: all positions
// are computed in memory first and writes are only issued after the
// computation succeeds, so a mid-pass failure never leaves partial
// persisted state.
type Reconciler struct {
	transactions TransactionStore
	positions    Store

	clock      clockwork.Clock
	loc        *time.Location
	classifier ledger.StrategyClassifier
	feeCalc    *fees.Calculator
}

type ReconcilerOption func(*Reconciler)

// WithClock injects the clock used for the auto-expiration cutoff.
func WithClock(clock clockwork.Clock) ReconcilerOption {
	return func(r *Reconciler) { r.clock = clock }
}

// WithTimezone overrides the reporting timezone.
func WithTimezone(loc *time.Location) ReconcilerOption {
	return func(r *Reconciler) { r.loc = loc }
}

// WithClassifier sets the covered-call strategy classifier.
func WithClassifier(c ledger.StrategyClassifier) ReconcilerOption {
	return func(r *Reconciler) { r.classifier = c }
}

// WithFeeCalculator backfills option trade fees during replay.
func WithFeeCalculator(c *fees.Calculator) ReconcilerOption {
	return func(r *Reconciler) { r.feeCalc = c }
}

func NewReconciler(transactions TransactionStore, positions Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		transactions: transactions,
		positions:    positions,
		clock:        clockwork.NewRealClock(),
		classifier:   ledger.TagClassifier{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loc == nil {
		r.loc = common.Timezone()
	}
	return r
}

// assetGroup preserves first-seen order so reconciliation output is stable.
type assetGroup struct {
	assetID uuid.UUID
	symbol  string
	class   asset.Class
	trxs    []*ledger.Transaction
}

func groupByAsset(trxs []*ledger.Transaction) []*assetGroup {
	index := make(map[uuid.UUID]*assetGroup)
	groups := make([]*assetGroup, 0, 8)
	for _, trx := range trxs {
		g, ok := index[trx.AssetID]
		if !ok {
			g = &assetGroup{assetID: trx.AssetID, symbol: trx.Symbol, class: trx.Class}
			index[trx.AssetID] = g
			groups = append(groups, g)
		}
		g.trxs = append(g.trxs, trx)
	}
	return groups
}

func (r *Reconciler) ledgerOptions() []ledger.Option {
	opts := []ledger.Option{ledger.WithClassifier(r.classifier)}
	if r.feeCalc != nil {
		opts = append(opts, ledger.WithFeeCalculator(r.feeCalc))
	}
	return opts
}

// Reconcile rebuilds every position for the portfolio. Repository failures
// and malformed transactions return an error with OutcomeFailed; data
// quality issues degrade the report but never abort the pass.
func (r *Reconciler) Reconcile(ctx context.Context, portfolioID uuid.UUID) (*Report, error) {
	subLog := log.With().Str("PortfolioID", portfolioID.String()).Logger()
	now := r.clock.Now()

	report := &Report{
		PortfolioID:  portfolioID,
		ReconciledAt: now,
	}

	trxs, err := r.transactions.ListTransactions(ctx, portfolioID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not list transactions")
		report.Outcome = OutcomeFailed
		return report, err
	}

	active := make(map[uuid.UUID]bool)
	for _, group := range groupByAsset(trxs) {
		stream, synth, perr := ExpirationPrePass(group.symbol, group.class, group.trxs,
			now, r.loc, r.ledgerOptions()...)
		if perr != nil {
			report.SkippedSymbols = append(report.SkippedSymbols, group.symbol)
		}
		if synth != nil {
			report.SynthesizedExpirations++
		}

		result, err := ledger.Replay(group.symbol, group.class, stream, r.ledgerOptions()...)
		if err != nil {
			subLog.Error().Stack().Err(err).Str("Symbol", group.symbol).Msg("ledger pass failed")
			report.Outcome = OutcomeFailed
			report.Positions = nil
			return report, err
		}

		report.Orphans = append(report.Orphans, result.Orphans...)

		quantity := result.NetQuantity()
		if quantity.IsZero() {
			continue
		}
		active[group.assetID] = true
		report.Positions = append(report.Positions, &Position{
			PortfolioID:    portfolioID,
			AssetID:        group.assetID,
			Symbol:         group.symbol,
			Class:          group.class,
			Quantity:       quantity,
			AverageCost:    result.AverageCost(),
			TotalCostBasis: result.TotalCostBasis(),
			RealizedPL:     result.RealizedPL,
			IsActive:       true,
			ReconciledAt:   now,
		})
	}

	// Computation is complete; only now touch the position store.
	existing, err := r.positions.ListPositions(ctx, portfolioID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not list positions")
		report.Outcome = OutcomeFailed
		return report, err
	}

	for _, p := range report.Positions {
		if err := r.positions.UpsertPosition(ctx, p); err != nil {
			subLog.Error().Stack().Err(err).Object("Position", p).Msg("could not upsert position")
			report.Outcome = OutcomeFailed
			return report, err
		}
	}

	for _, p := range existing {
		if active[p.AssetID] {
			continue
		}
		if err := r.positions.DeletePosition(ctx, portfolioID, p.AssetID); err != nil {
			subLog.Error().Stack().Err(err).Str("AssetID", p.AssetID.String()).Msg("could not delete position")
			report.Outcome = OutcomeFailed
			return report, err
		}
		report.Deleted = append(report.Deleted, p.AssetID)
	}

	if len(report.Orphans) > 0 || len(report.SkippedSymbols) > 0 {
		report.Outcome = OutcomeDegraded
	} else {
		report.Outcome = OutcomeSucceeded
	}

	subLog.Info().
		Str("Outcome", report.Outcome.String()).
		Int("Positions", len(report.Positions)).
		Int("Deleted", len(report.Deleted)).
		Int("Orphans", len(report.Orphans)).
		Int("SynthesizedExpirations", report.SynthesizedExpirations).
		Msg("reconciliation pass complete")

	return report, nil
}
