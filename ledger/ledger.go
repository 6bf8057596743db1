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

// Package ledger implements FIFO cost-basis matching over a single symbol's
// transaction stream. A pass consumes ordered transactions, maintains an
// in-memory queue of open lots, and accumulates realized P&L. Long equity
// positions and bidirectional (long and short) option positions run through
// the same state machine. Inconsistent historical data never aborts a pass;
// unmatched transactions are quarantined as orphans and excluded from
// totals.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/fees"
)

var ErrSymbolMismatch = errors.New("transaction does not belong to this ledger")

// Orphan quarantine reasons
const (
	ReasonOversell        = "sell exceeds open long quantity"
	ReasonNoOpenLots      = "expiration with no open lots"
	ReasonBadQuantity     = "quantity must be positive"
	ReasonUnknownKind     = "unrecognized transaction kind"
	ReasonExcessExpiry    = "expiration exceeds open quantity"
	ReasonSeedReplayError = "carried forward from seeding pass"
)

// Orphan is a transaction that could not be reconciled against known lots.
// It is retained for diagnostics and excluded from all P&L totals.
type Orphan struct {
	TransactionID uuid.UUID
	Symbol        string
	Kind          string
	Requested     decimal.Decimal
	Available     decimal.Decimal
	OccurredAt    time.Time
	Reason        string
}

// Result is the outcome of a ledger pass: the surviving open-lot queue and
// the accumulated totals. Open lots may be carried into a subsequent pass as
// its opening state.
type Result struct {
	Symbol           string
	Class            asset.Class
	OpenLots         []*Lot
	RealizedPL       decimal.Decimal
	Dividends        decimal.Decimal
	Fees             decimal.Decimal
	Volume           decimal.Decimal
	TransactionCount int
	Orphans          []*Orphan
}

// NetQuantity is total long quantity minus total short quantity. Negative
// values represent net-short option exposure.
func (r *Result) NetQuantity() decimal.Decimal {
	net := decimal.Zero
	for _, lot := range r.OpenLots {
		switch lot.Side {
		case SideLong:
			net = net.Add(lot.Remaining)
		case SideShort:
			net = net.Sub(lot.Remaining)
		}
	}
	return net
}

// TotalCostBasis is the open lots' remaining quantity valued at unit cost.
// For short lots the unit cost is the premium received per share.
func (r *Result) TotalCostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range r.OpenLots {
		total = total.Add(lot.CostBasis())
	}
	return total
}

// AverageCost is the weighted-average unit cost of the open position, or
// zero when the position is flat.
func (r *Result) AverageCost() decimal.Decimal {
	net := r.NetQuantity()
	if net.IsZero() {
		return decimal.Zero
	}
	return r.TotalCostBasis().Div(net.Abs())
}

// Ledger runs the FIFO matching state machine for one (portfolio, symbol)
// pair. It is not safe for concurrent use; each symbol gets its own Ledger.
type Ledger struct {
	symbol string
	class  asset.Class

	lots       []*Lot
	realized   decimal.Decimal
	dividends  decimal.Decimal
	fees       decimal.Decimal
	volume     decimal.Decimal
	count      int
	orphans    []*Orphan
	classifier StrategyClassifier
	feeCalc    *fees.Calculator
}

type Option func(*Ledger)

// WithOpeningLots seeds the pass with open lots carried from before the
// transaction sequence begins. The lots are deep-copied.
func WithOpeningLots(lots []*Lot) Option {
	return func(l *Ledger) { l.lots = CloneLots(lots) }
}

// WithClassifier replaces the default covered-call classifier.
func WithClassifier(c StrategyClassifier) Option {
	return func(l *Ledger) { l.classifier = c }
}

// WithFeeCalculator backfills trade fees for option transactions recorded
// without one.
func WithFeeCalculator(c *fees.Calculator) Option {
	return func(l *Ledger) { l.feeCalc = c }
}

func New(symbol string, class asset.Class, opts ...Option) *Ledger {
	l := &Ledger{
		symbol:     symbol,
		class:      class,
		classifier: TagClassifier{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Replay runs a complete pass over an ordered transaction stream for one
// symbol. Same-day transactions are processed in the order supplied; the
// ledger never reorders.
func Replay(symbol string, class asset.Class, trxs []*Transaction, opts ...Option) (*Result, error) {
	l := New(symbol, class, opts...)
	for _, trx := range trxs {
		if err := l.Apply(trx); err != nil {
			return nil, err
		}
	}
	return l.Result(), nil
}

// LongQuantity is the total remaining quantity of open long lots.
func (l *Ledger) LongQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		if lot.Side == SideLong {
			total = total.Add(lot.Remaining)
		}
	}
	return total
}

// ShortQuantity is the total remaining quantity of open short lots.
func (l *Ledger) ShortQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		if lot.Side == SideShort {
			total = total.Add(lot.Remaining)
		}
	}
	return total
}

// NetQuantity is long minus short quantity.
func (l *Ledger) NetQuantity() decimal.Decimal {
	return l.LongQuantity().Sub(l.ShortQuantity())
}

// Running totals. The daily aggregator reads these between day boundaries
// without snapshotting the lot queue.

func (l *Ledger) RealizedPL() decimal.Decimal { return l.realized }
func (l *Ledger) Dividends() decimal.Decimal  { return l.dividends }
func (l *Ledger) Fees() decimal.Decimal       { return l.fees }
func (l *Ledger) Volume() decimal.Decimal     { return l.volume }
func (l *Ledger) TransactionCount() int       { return l.count }
func (l *Ledger) Orphans() []*Orphan          { return l.orphans }

// Apply processes one transaction. Only malformed input returns an error;
// data-quality problems are quarantined as orphans and the pass continues.
func (l *Ledger) Apply(trx *Transaction) error {
	if err := trx.Validate(); err != nil {
		return err
	}
	if trx.Symbol != l.symbol {
		return fmt.Errorf("%w: ledger holds %q, transaction %s has %q",
			ErrSymbolMismatch, l.symbol, trx.ID, trx.Symbol)
	}
	if !trx.Quantity.IsPositive() {
		l.quarantine(trx, decimal.Zero, ReasonBadQuantity)
		return nil
	}

	switch trx.Kind {
	case BuyTransaction:
		l.applyBuy(trx)
	case SellTransaction:
		l.applySell(trx)
	case OptionExpiredTransaction:
		l.applyExpiration(trx)
	case DividendTransaction:
		l.applyDividend(trx)
	default:
		l.quarantine(trx, decimal.Zero, ReasonUnknownKind)
	}
	return nil
}

// Result snapshots the pass. The returned lot queue is a deep copy; the
// ledger may continue to receive transactions afterwards, which is how the
// daily aggregator carries state across day boundaries.
func (l *Ledger) Result() *Result {
	return &Result{
		Symbol:           l.symbol,
		Class:            l.class,
		OpenLots:         CloneLots(l.lots),
		RealizedPL:       l.realized,
		Dividends:        l.dividends,
		Fees:             l.fees,
		Volume:           l.volume,
		TransactionCount: l.count,
		Orphans:          append([]*Orphan(nil), l.orphans...),
	}
}

func (l *Ledger) feeFor(trx *Transaction) decimal.Decimal {
	if !trx.Fees.IsZero() || l.feeCalc == nil {
		return trx.Fees
	}
	return l.feeCalc.ForTrade(l.class, trx.Quantity)
}

func (l *Ledger) applyBuy(trx *Transaction) {
	fee := l.feeFor(trx)

	if l.class == asset.Option && l.ShortQuantity().IsPositive() &&
		l.classifier.IsBuyToClose(trx, l.NetQuantity()) {
		// Buy-to-close: the payment is an immediate realized loss against
		// premium already collected at sale, not a new lot.
		cover := decimal.Min(trx.Quantity, l.ShortQuantity())
		l.consume(SideShort, cover)
		l.realized = l.realized.Sub(trx.Price.Mul(cover)).Sub(fee)

		if excess := trx.Quantity.Sub(cover); excess.IsPositive() {
			l.open(trx, SideLong, excess)
		}
		l.record(trx, fee)
		return
	}

	l.open(trx, SideLong, trx.Quantity)
	l.realized = l.realized.Sub(fee)
	l.record(trx, fee)
}

func (l *Ledger) applySell(trx *Transaction) {
	available := l.LongQuantity()
	fee := l.feeFor(trx)

	switch {
	case available.GreaterThanOrEqual(trx.Quantity):
		cost := l.consume(SideLong, trx.Quantity)
		l.realized = l.realized.Add(trx.GrossAmount()).Sub(cost).Sub(fee)

	case l.class == asset.Option:
		// Sell-to-open: proceeds are premium, recognized as profit
		// immediately; the short lot is matched later by buyback or
		// expiration. Any open long quantity is closed first.
		if available.IsPositive() {
			cost := l.consume(SideLong, available)
			l.realized = l.realized.Add(trx.Price.Mul(available)).Sub(cost)
		}
		remainder := trx.Quantity.Sub(available)
		l.open(trx, SideShort, remainder)
		l.realized = l.realized.Add(trx.Price.Mul(remainder)).Sub(fee)

	default:
		// Equity oversell: quarantine without touching the queue.
		l.quarantine(trx, available, ReasonOversell)
		return
	}

	l.record(trx, fee)
}

func (l *Ledger) applyExpiration(trx *Transaction) {
	net := l.NetQuantity()

	switch {
	case net.IsPositive():
		// Remaining cost basis becomes a full realized loss.
		take := decimal.Min(trx.Quantity, l.LongQuantity())
		cost := l.consume(SideLong, take)
		l.realized = l.realized.Sub(cost)
		l.count++
		if trx.Quantity.GreaterThan(take) {
			l.quarantine(trx, take, ReasonExcessExpiry)
		}

	case net.IsNegative():
		// Premium was recognized when the short lot opened; removal only.
		take := decimal.Min(trx.Quantity, l.ShortQuantity())
		l.consume(SideShort, take)
		l.count++
		if trx.Quantity.GreaterThan(take) {
			l.quarantine(trx, take, ReasonExcessExpiry)
		}

	default:
		l.quarantine(trx, decimal.Zero, ReasonNoOpenLots)
	}
}

func (l *Ledger) applyDividend(trx *Transaction) {
	amount := trx.GrossAmount().Sub(trx.Fees)
	l.realized = l.realized.Add(amount)
	l.dividends = l.dividends.Add(amount)
	l.fees = l.fees.Add(trx.Fees)
	l.count++
}

// open pushes a new lot onto the back of the FIFO queue.
func (l *Ledger) open(trx *Transaction, side LotSide, quantity decimal.Decimal) {
	l.lots = append(l.lots, &Lot{
		Side:      side,
		Remaining: quantity,
		UnitCost:  trx.Price,
		OpenedAt:  trx.OccurredAt,
		SourceID:  trx.ID,
	})
}

// consume pops quantity from the front of the queue (oldest first) for the
// given side and returns the cost basis consumed. Callers must not request
// more than the side holds.
func (l *Ledger) consume(side LotSide, quantity decimal.Decimal) decimal.Decimal {
	cost := decimal.Zero
	remaining := quantity
	kept := make([]*Lot, 0, len(l.lots))

	for _, lot := range l.lots {
		if lot.Side != side || remaining.IsZero() {
			kept = append(kept, lot)
			continue
		}
		take := decimal.Min(lot.Remaining, remaining)
		cost = cost.Add(take.Mul(lot.UnitCost))
		lot.Remaining = lot.Remaining.Sub(take)
		remaining = remaining.Sub(take)
		if lot.Remaining.IsPositive() {
			kept = append(kept, lot)
		}
	}

	l.lots = kept
	return cost
}

// record accumulates trade totals for matched buys and sells.
func (l *Ledger) record(trx *Transaction, fee decimal.Decimal) {
	l.fees = l.fees.Add(fee)
	l.volume = l.volume.Add(trx.GrossAmount())
	l.count++
}

func (l *Ledger) quarantine(trx *Transaction, available decimal.Decimal, reason string) {
	orphan := &Orphan{
		TransactionID: trx.ID,
		Symbol:        trx.Symbol,
		Kind:          trx.Kind,
		Requested:     trx.Quantity,
		Available:     available,
		OccurredAt:    trx.OccurredAt,
		Reason:        reason,
	}
	l.orphans = append(l.orphans, orphan)
	log.Warn().Object("Orphan", orphan).Msg("quarantined transaction")
}
