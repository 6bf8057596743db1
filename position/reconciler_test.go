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

package position_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/ledger"
	"github.com/trackfolio/tf-engine/position"
)

const callSymbol = "AAPL240621C00195000"

type fakeTransactionStore struct {
	trxs []*ledger.Transaction
	err  error
}

func (s *fakeTransactionStore) ListTransactions(_ context.Context, _ uuid.UUID) ([]*ledger.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.trxs, nil
}

type fakePositionStore struct {
	existing []*position.Position

	upserts   []*position.Position
	deletes   []uuid.UUID
	listErr   error
	upsertErr error
}

func (s *fakePositionStore) ListPositions(_ context.Context, _ uuid.UUID) ([]*position.Position, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.existing, nil
}

func (s *fakePositionStore) UpsertPosition(_ context.Context, p *position.Position) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, p)
	return nil
}

func (s *fakePositionStore) DeletePosition(_ context.Context, _ uuid.UUID, assetID uuid.UUID) error {
	s.deletes = append(s.deletes, assetID)
	return nil
}

var _ = Describe("Reconciler", func() {
	var (
		tz          *time.Location
		clock       clockwork.Clock
		portfolioID uuid.UUID
		stockID     uuid.UUID
		optionID    uuid.UUID
		trxStore    *fakeTransactionStore
		posStore    *fakePositionStore
		reconciler  *position.Reconciler
	)

	makeTrx := func(assetID uuid.UUID, symbol string, class asset.Class, kind string, quantity, price float64, at time.Time) *ledger.Transaction {
		return &ledger.Transaction{
			ID:          uuid.New(),
			PortfolioID: portfolioID,
			AssetID:     assetID,
			Symbol:      symbol,
			Class:       class,
			Kind:        kind,
			Quantity:    decimal.NewFromFloat(quantity),
			Price:       decimal.NewFromFloat(price),
			Currency:    "USD",
			OccurredAt:  at,
		}
	}

	newReconciler := func() *position.Reconciler {
		return position.NewReconciler(trxStore, posStore,
			position.WithClock(clock), position.WithTimezone(tz))
	}

	BeforeEach(func() {
		var err error
		tz, err = time.LoadLocation("America/New_York")
		Expect(err).To(BeNil())

		clock = clockwork.NewFakeClockAt(time.Date(2024, time.July, 1, 12, 0, 0, 0, tz))
		portfolioID = uuid.New()
		stockID = uuid.New()
		optionID = uuid.New()
		trxStore = &fakeTransactionStore{}
		posStore = &fakePositionStore{}
	})

	Describe("a clean equity history", func() {
		BeforeEach(func() {
			trxStore.trxs = []*ledger.Transaction{
				makeTrx(stockID, "AAPL", asset.Stock, ledger.BuyTransaction, 10, 10, time.Date(2024, 3, 1, 10, 0, 0, 0, tz)),
				makeTrx(stockID, "AAPL", asset.Stock, ledger.BuyTransaction, 5, 20, time.Date(2024, 3, 2, 10, 0, 0, 0, tz)),
				makeTrx(stockID, "AAPL", asset.Stock, ledger.SellTransaction, 12, 15, time.Date(2024, 3, 3, 10, 0, 0, 0, tz)),
			}
			reconciler = newReconciler()
		})

		It("derives the position from the full history", func() {
			report, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(BeNil())
			Expect(report.Outcome).To(Equal(position.OutcomeSucceeded))
			Expect(report.Positions).To(HaveLen(1))

			p := report.Positions[0]
			Expect(p.Symbol).To(Equal("AAPL"))
			Expect(p.Quantity.String()).To(Equal("3"))
			Expect(p.AverageCost.String()).To(Equal("20"))
			Expect(p.TotalCostBasis.String()).To(Equal("60"))
			Expect(p.RealizedPL.String()).To(Equal("40"))
			Expect(p.IsActive).To(BeTrue())
			Expect(p.ReconciledAt).To(Equal(clock.Now()))
		})

		It("writes positions to the store", func() {
			_, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(BeNil())
			Expect(posStore.upserts).To(HaveLen(1))
			Expect(posStore.deletes).To(BeEmpty())
		})

		It("is idempotent across repeated runs", func() {
			first, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(BeNil())
			second, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(BeNil())

			Expect(second.Positions).To(HaveLen(len(first.Positions)))
			Expect(second.Positions[0].Quantity.String()).To(Equal(first.Positions[0].Quantity.String()))
			Expect(second.Positions[0].RealizedPL.String()).To(Equal(first.Positions[0].RealizedPL.String()))
		})
	})

	Describe("stale positions", func() {
		BeforeEach(func() {
			// fully closed out
			trxStore.trxs = []*ledger.Transaction{
				makeTrx(stockID, "AAPL", asset.Stock, ledger.BuyTransaction, 10, 10, time.Date(2024, 3, 1, 10, 0, 0, 0, tz)),
				makeTrx(stockID, "AAPL", asset.Stock, ledger.SellTransaction, 10, 15, time.Date(2024, 3, 3, 10, 0, 0, 0, tz)),
			}
			posStore.existing = []*position.Position{
				{PortfolioID: portfolioID, AssetID: stockID, Symbol: "AAPL", Quantity: decimal.NewFromInt(10)},
			}
			reconciler = newReconciler()
		})

		It("deletes positions whose net quantity reached zero", func() {
			report, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(BeNil())
			Expect(report.Positions).To(BeEmpty())
			// wrap the expected ids so gomega does not unpack the uuid
			// byte array into individual elements
			Expect(report.Deleted).To(ConsistOf([]uuid.UUID{stockID}))
			Expect(posStore.deletes).To(ConsistOf([]uuid.UUID{stockID}))
		})
	})

	Describe("option auto-expiration", func() {
		BeforeEach(func() {
			trxStore.trxs = []*ledger.Transaction{
				makeTrx(optionID, callSymbol, asset.Option, ledger.BuyTransaction, 100, 3, time.Date(2024, 5, 1, 10, 0, 0, 0, tz)),
			}
		})

		Context("after the expiration date has passed", func() {
			BeforeEach(func() {
				clock = clockwork.NewFakeClockAt(time.Date(2024, time.July, 1, 12, 0, 0, 0, tz))
				reconciler = newReconciler()
			})

			It("synthesizes the expiration and closes the position", func() {
				report, err := reconciler.Reconcile(context.Background(), portfolioID)
				Expect(err).To(BeNil())
				Expect(report.Outcome).To(Equal(position.OutcomeSucceeded))
				Expect(report.SynthesizedExpirations).To(Equal(1))
				Expect(report.Positions).To(BeEmpty())
			})
		})

		Context("on the expiration day itself", func() {
			BeforeEach(func() {
				clock = clockwork.NewFakeClockAt(time.Date(2024, time.June, 21, 15, 0, 0, 0, tz))
				reconciler = newReconciler()
			})

			It("leaves the option open", func() {
				report, err := reconciler.Reconcile(context.Background(), portfolioID)
				Expect(err).To(BeNil())
				Expect(report.SynthesizedExpirations).To(Equal(0))
				Expect(report.Positions).To(HaveLen(1))
				Expect(report.Positions[0].Quantity.String()).To(Equal("100"))
			})
		})
	})

	Describe("degraded passes", func() {
		It("skips auto-expiration for an unparseable option symbol", func() {
			trxStore.trxs = []*ledger.Transaction{
				makeTrx(optionID, "BADSYMBOL", asset.Option, ledger.BuyTransaction, 100, 3, time.Date(2024, 5, 1, 10, 0, 0, 0, tz)),
			}
			reconciler = newReconciler()

			report, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(BeNil())
			Expect(report.Outcome).To(Equal(position.OutcomeDegraded))
			Expect(report.SkippedSymbols).To(ConsistOf("BADSYMBOL"))
			// the position is still computed from recorded transactions
			Expect(report.Positions).To(HaveLen(1))
		})

		It("degrades when transactions are quarantined", func() {
			trxStore.trxs = []*ledger.Transaction{
				makeTrx(stockID, "AAPL", asset.Stock, ledger.BuyTransaction, 10, 10, time.Date(2024, 3, 1, 10, 0, 0, 0, tz)),
				makeTrx(stockID, "AAPL", asset.Stock, ledger.SellTransaction, 15, 12, time.Date(2024, 3, 3, 10, 0, 0, 0, tz)),
			}
			reconciler = newReconciler()

			report, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(BeNil())
			Expect(report.Outcome).To(Equal(position.OutcomeDegraded))
			Expect(report.Orphans).To(HaveLen(1))
			Expect(report.Positions).To(HaveLen(1))
			Expect(report.Positions[0].Quantity.String()).To(Equal("10"))
		})
	})

	Describe("failed passes", func() {
		It("fails when the transaction store errors", func() {
			trxStore.err = errors.New("connection refused")
			reconciler = newReconciler()

			report, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(HaveOccurred())
			Expect(report.Outcome).To(Equal(position.OutcomeFailed))
			Expect(posStore.upserts).To(BeEmpty())
		})

		It("writes nothing when a transaction is malformed", func() {
			bad := makeTrx(stockID, "AAPL", asset.Stock, ledger.BuyTransaction, 10, 10, time.Date(2024, 3, 1, 10, 0, 0, 0, tz))
			bad.Class = asset.Class("bond")
			trxStore.trxs = []*ledger.Transaction{bad}
			reconciler = newReconciler()

			report, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(MatchError(ledger.ErrMalformedTransaction))
			Expect(report.Outcome).To(Equal(position.OutcomeFailed))
			Expect(report.Positions).To(BeEmpty())
			Expect(posStore.upserts).To(BeEmpty())
			Expect(posStore.deletes).To(BeEmpty())
		})

		It("fails when the position store cannot upsert", func() {
			trxStore.trxs = []*ledger.Transaction{
				makeTrx(stockID, "AAPL", asset.Stock, ledger.BuyTransaction, 10, 10, time.Date(2024, 3, 1, 10, 0, 0, 0, tz)),
			}
			posStore.upsertErr = errors.New("deadlock detected")
			reconciler = newReconciler()

			report, err := reconciler.Reconcile(context.Background(), portfolioID)
			Expect(err).To(HaveOccurred())
			Expect(report.Outcome).To(Equal(position.OutcomeFailed))
		})
	})
})
