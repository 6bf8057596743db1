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

package pnl

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrMismatchedMonths = errors.New("summaries cover different months")

type MergeOption func(*mergeSettings)

type mergeSettings struct {
	threshold decimal.Decimal
}

// WithMergeThreshold sets the neutral band used when recategorizing merged
// days. Callers that built their summaries with WithNeutralThreshold pass
// the same value here so merged days categorize consistently.
func WithMergeThreshold(t decimal.Decimal) MergeOption {
	return func(s *mergeSettings) { s.threshold = t }
}

// Merge combines independently computed per-portfolio monthly summaries
// into one cross-portfolio view by summing day by date. Transaction streams
// are never merged before FIFO matching; each portfolio's lot queues stay
// isolated and only the finished numbers are added together.
func Merge(summaries []*MonthlySummary, opts ...MergeOption) (*MonthlySummary, error) {
	if len(summaries) == 0 {
		return nil, nil
	}

	settings := mergeSettings{threshold: neutralThreshold()}
	for _, opt := range opts {
		opt(&settings)
	}

	first := summaries[0]
	merged := &MonthlySummary{
		PortfolioID: uuid.Nil,
		Year:        first.Year,
		Month:       first.Month,
		ComputedOn:  first.ComputedOn,
	}
	threshold := settings.threshold

	byDay := make(map[int]*DailyPLRecord)
	for _, s := range summaries {
		if s.Year != merged.Year || s.Month != merged.Month {
			return nil, ErrMismatchedMonths
		}
		if s.ComputedOn.After(merged.ComputedOn) {
			merged.ComputedOn = s.ComputedOn
		}

		for _, day := range s.Days {
			rec, ok := byDay[day.Date.Day()]
			if !ok {
				rec = &DailyPLRecord{Date: day.Date}
				byDay[day.Date.Day()] = rec
				merged.Days = append(merged.Days, rec)
			}
			rec.RealizedPL = rec.RealizedPL.Add(day.RealizedPL)
			rec.Dividends = rec.Dividends.Add(day.Dividends)
			rec.Fees = rec.Fees.Add(day.Fees)
			rec.Volume = rec.Volume.Add(day.Volume)
			rec.TransactionCount += day.TransactionCount
		}

		merged.Orphans = append(merged.Orphans, s.Orphans...)
		merged.SeedOrphans = append(merged.SeedOrphans, s.SeedOrphans...)
	}

	for _, rec := range merged.Days {
		rec.Category = categorize(rec, threshold)

		merged.RealizedPL = merged.RealizedPL.Add(rec.RealizedPL)
		merged.Dividends = merged.Dividends.Add(rec.Dividends)
		merged.Fees = merged.Fees.Add(rec.Fees)
		merged.Volume = merged.Volume.Add(rec.Volume)
		merged.TransactionCount += rec.TransactionCount

		switch rec.Category {
		case CategoryPositive:
			merged.ProfitableDays++
		case CategoryNegative:
			merged.LossDays++
		}
	}

	return merged, nil
}
