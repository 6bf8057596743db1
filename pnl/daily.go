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

// Package pnl builds calendar-oriented profit-and-loss read models by
// replaying the cost-basis ledger day by day. Summaries are always
// recomputed wholesale over a date range, never mutated incrementally, so a
// month's numbers are provably consistent with a single whole-month ledger
// pass over the same seed state.
package pnl

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/common"
	"github.com/trackfolio/tf-engine/fees"
	"github.com/trackfolio/tf-engine/ledger"
	"github.com/trackfolio/tf-engine/position"
)

// Category classifies a calendar day's net P&L.
type Category string

const (
	CategoryNoTransactions Category = "no-transactions"
	CategoryNeutral        Category = "neutral"
	CategoryPositive       Category = "positive"
	CategoryNegative       Category = "negative"
)

// DailyPLRecord is the realized activity for one calendar day in the
// reporting timezone. Days with no activity still get a record.
type DailyPLRecord struct {
	Date             time.Time       `json:"date"`
	RealizedPL       decimal.Decimal `json:"realizedPL"`
	Dividends        decimal.Decimal `json:"dividends"`
	Fees             decimal.Decimal `json:"fees"`
	Volume           decimal.Decimal `json:"volume"`
	TransactionCount int             `json:"transactionCount"`
	Category         Category        `json:"category"`
}

// MonthlySummary aggregates one portfolio's daily records for a month.
type MonthlySummary struct {
	PortfolioID      uuid.UUID        `json:"portfolioId"`
	Year             int              `json:"year"`
	Month            time.Month       `json:"month"`
	Days             []*DailyPLRecord `json:"days"`
	RealizedPL       decimal.Decimal  `json:"realizedPL"`
	Dividends        decimal.Decimal  `json:"dividends"`
	Fees             decimal.Decimal  `json:"fees"`
	Volume           decimal.Decimal  `json:"volume"`
	TransactionCount int              `json:"transactionCount"`
	ProfitableDays   int              `json:"profitableDays"`
	LossDays         int              `json:"lossDays"`
	Orphans          []*ledger.Orphan `json:"orphans,omitempty"`
	SeedOrphans      []*ledger.Orphan `json:"seedOrphans,omitempty"`
	ComputedOn       time.Time        `json:"computedOn"`
}

// MarshalBinary serializes the summary for caching or transport.
func (s *MonthlySummary) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalBinary restores a serialized summary.
func (s *MonthlySummary) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}

// Aggregator computes daily and monthly realized P&L for a portfolio by
// replaying its cost-basis ledgers one calendar day at a time, carrying the
// open-lot queues across day boundaries. Transactions before the requested
// month only seed the opening lot state and are never reported.
type Aggregator struct {
	transactions position.TransactionStore

	clock      clockwork.Clock
	loc        *time.Location
	classifier ledger.StrategyClassifier
	feeCalc    *fees.Calculator
	threshold  decimal.Decimal
}

type AggregatorOption func(*Aggregator)

// WithClock injects the clock used for the expiration cutoff and the
// ComputedOn stamp.
func WithClock(clock clockwork.Clock) AggregatorOption {
	return func(a *Aggregator) { a.clock = clock }
}

// WithTimezone overrides the reporting timezone.
func WithTimezone(loc *time.Location) AggregatorOption {
	return func(a *Aggregator) { a.loc = loc }
}

// WithClassifier sets the covered-call strategy classifier.
func WithClassifier(c ledger.StrategyClassifier) AggregatorOption {
	return func(a *Aggregator) { a.classifier = c }
}

// WithFeeCalculator backfills option trade fees during replay.
func WithFeeCalculator(c *fees.Calculator) AggregatorOption {
	return func(a *Aggregator) { a.feeCalc = c }
}

// WithNeutralThreshold overrides the |net P&L| band, in dollars, inside
// which a day counts as neutral rather than positive or negative.
func WithNeutralThreshold(t decimal.Decimal) AggregatorOption {
	return func(a *Aggregator) { a.threshold = t }
}

func NewAggregator(transactions position.TransactionStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		transactions: transactions,
		clock:        clockwork.NewRealClock(),
		classifier:   ledger.TagClassifier{},
		threshold:    neutralThreshold(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.loc == nil {
		a.loc = common.Timezone()
	}
	return a
}

func neutralThreshold() decimal.Decimal {
	t := viper.GetFloat64("pnl.neutral_threshold")
	if t <= 0 {
		t = 0.01
	}
	return decimal.NewFromFloat(t)
}

func (a *Aggregator) ledgerOptions() []ledger.Option {
	opts := []ledger.Option{ledger.WithClassifier(a.classifier)}
	if a.feeCalc != nil {
		opts = append(opts, ledger.WithFeeCalculator(a.feeCalc))
	}
	return opts
}

// assetReplay carries one symbol's ledger across day boundaries.
type assetReplay struct {
	ledger *ledger.Ledger
	byDay  map[int][]*ledger.Transaction

	prevRealized  decimal.Decimal
	prevDividends decimal.Decimal
	prevFees      decimal.Decimal
	prevVolume    decimal.Decimal
	prevCount     int
}

// MonthlySummary computes the per-day and whole-month realized P&L for
// (portfolioID, year, month). Every calendar day of the month gets a
// record, including days with no activity.
func (a *Aggregator) MonthlySummary(ctx context.Context, portfolioID uuid.UUID, year int, month time.Month) (*MonthlySummary, error) {
	subLog := log.With().Str("PortfolioID", portfolioID.String()).
		Int("Year", year).Int("Month", int(month)).Logger()

	trxs, err := a.transactions.ListTransactions(ctx, portfolioID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not list transactions")
		return nil, err
	}

	now := a.clock.Now()
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, a.loc)
	monthEnd := monthStart.AddDate(0, 1, 0)
	daysInMonth := monthEnd.AddDate(0, 0, -1).Day()

	summary := &MonthlySummary{
		PortfolioID: portfolioID,
		Year:        year,
		Month:       month,
		ComputedOn:  now,
	}

	replays := make([]*assetReplay, 0, 8)
	for _, trx := range trxs {
		if err := trx.Validate(); err != nil {
			return nil, err
		}
	}

	for _, group := range groupStreams(trxs) {
		stream, _, _ := position.ExpirationPrePass(group.symbol, group.class, group.trxs,
			now, a.loc, a.ledgerOptions()...)

		before := make([]*ledger.Transaction, 0, len(stream))
		byDay := make(map[int][]*ledger.Transaction)
		for _, trx := range stream {
			at := trx.OccurredAt.In(a.loc)
			switch {
			case at.Before(monthStart):
				before = append(before, trx)
			case at.Before(monthEnd):
				byDay[at.Day()] = append(byDay[at.Day()], trx)
			}
			// transactions after the month do not exist yet from the
			// month's point of view
		}

		seed, err := ledger.Replay(group.symbol, group.class, before, a.ledgerOptions()...)
		if err != nil {
			return nil, err
		}
		summary.SeedOrphans = append(summary.SeedOrphans, seed.Orphans...)

		opts := append(a.ledgerOptions(), ledger.WithOpeningLots(seed.OpenLots))
		replays = append(replays, &assetReplay{
			ledger: ledger.New(group.symbol, group.class, opts...),
			byDay:  byDay,
		})
	}

	for day := 1; day <= daysInMonth; day++ {
		record := &DailyPLRecord{
			Date: time.Date(year, month, day, 0, 0, 0, 0, a.loc),
		}

		for _, r := range replays {
			for _, trx := range r.byDay[day] {
				if err := r.ledger.Apply(trx); err != nil {
					return nil, err
				}
			}

			record.RealizedPL = record.RealizedPL.Add(r.ledger.RealizedPL().Sub(r.prevRealized))
			record.Dividends = record.Dividends.Add(r.ledger.Dividends().Sub(r.prevDividends))
			record.Fees = record.Fees.Add(r.ledger.Fees().Sub(r.prevFees))
			record.Volume = record.Volume.Add(r.ledger.Volume().Sub(r.prevVolume))
			record.TransactionCount += r.ledger.TransactionCount() - r.prevCount

			r.prevRealized = r.ledger.RealizedPL()
			r.prevDividends = r.ledger.Dividends()
			r.prevFees = r.ledger.Fees()
			r.prevVolume = r.ledger.Volume()
			r.prevCount = r.ledger.TransactionCount()
		}

		record.Category = categorize(record, a.threshold)
		summary.Days = append(summary.Days, record)

		summary.RealizedPL = summary.RealizedPL.Add(record.RealizedPL)
		summary.Dividends = summary.Dividends.Add(record.Dividends)
		summary.Fees = summary.Fees.Add(record.Fees)
		summary.Volume = summary.Volume.Add(record.Volume)
		summary.TransactionCount += record.TransactionCount

		switch record.Category {
		case CategoryPositive:
			summary.ProfitableDays++
		case CategoryNegative:
			summary.LossDays++
		}
	}

	for _, r := range replays {
		summary.Orphans = append(summary.Orphans, r.ledger.Orphans()...)
	}

	subLog.Debug().Str("RealizedPL", summary.RealizedPL.String()).
		Int("TransactionCount", summary.TransactionCount).
		Int("Orphans", len(summary.Orphans)).
		Msg("computed monthly summary")

	return summary, nil
}

func categorize(record *DailyPLRecord, threshold decimal.Decimal) Category {
	if record.TransactionCount == 0 {
		return CategoryNoTransactions
	}
	net := record.RealizedPL
	if net.Abs().LessThanOrEqual(threshold) {
		return CategoryNeutral
	}
	if net.IsPositive() {
		return CategoryPositive
	}
	return CategoryNegative
}

type symbolStream struct {
	symbol string
	class  asset.Class
	trxs   []*ledger.Transaction
}

// groupStreams splits a portfolio's history into per-symbol streams,
// preserving the input order within each stream. FIFO matching is always
// per (portfolio, symbol); streams from different symbols never mix.
func groupStreams(trxs []*ledger.Transaction) []*symbolStream {
	index := make(map[string]*symbolStream)
	streams := make([]*symbolStream, 0, 8)
	for _, trx := range trxs {
		s, ok := index[trx.Symbol]
		if !ok {
			s = &symbolStream{symbol: trx.Symbol, class: trx.Class}
			index[trx.Symbol] = s
			streams = append(streams, s)
		}
		s.trxs = append(s.trxs, trx)
	}
	return streams
}
