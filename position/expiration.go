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
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/ledger"
)

// ExpirationPrePass models the passage of time as an explicit ledger event.
// If the symbol is an option whose expiration has fully passed and the
// recorded stream leaves an open position, a synthetic OPTION_EXPIRED
// transaction for the full remaining quantity is appended to the stream.
// The synthetic event is stamped at 23:59:59 of the expiration day in the
// reporting timezone so it sorts after any same-day trades.
//
// Non-option symbols pass through untouched. An unparseable option symbol
// returns asset.ErrInvalidOptionSymbol along with the untouched stream;
// callers skip auto-expiration for that asset and mark the run degraded.
func ExpirationPrePass(symbol string, class asset.Class, trxs []*ledger.Transaction,
	now time.Time, loc *time.Location, opts ...ledger.Option) ([]*ledger.Transaction, *ledger.Transaction, error) {

	if class != asset.Option || len(trxs) == 0 {
		return trxs, nil, nil
	}

	optSym, err := asset.ParseOptionSymbol(symbol)
	if err != nil {
		log.Warn().Err(err).Str("Symbol", symbol).Msg("could not parse option symbol; skipping auto-expiration")
		return trxs, nil, err
	}

	if !optSym.ExpiredBefore(now, loc) {
		return trxs, nil, nil
	}

	result, err := ledger.Replay(symbol, class, trxs, opts...)
	if err != nil {
		return trxs, nil, err
	}

	net := result.NetQuantity()
	if net.IsZero() {
		return trxs, nil, nil
	}

	exp := optSym.Expiration
	synth := &ledger.Transaction{
		ID:          uuid.New(),
		PortfolioID: trxs[0].PortfolioID,
		AssetID:     trxs[0].AssetID,
		Symbol:      symbol,
		Class:       class,
		Kind:        ledger.OptionExpiredTransaction,
		Quantity:    net.Abs(),
		Price:       decimal.Zero,
		Currency:    trxs[0].Currency,
		OccurredAt:  time.Date(exp.Year(), exp.Month(), exp.Day(), 23, 59, 59, 0, loc),
	}

	log.Info().Str("Symbol", symbol).Str("Quantity", synth.Quantity.String()).
		Time("Expiration", synth.OccurredAt).Msg("synthesized option expiration")

	augmented := make([]*ledger.Transaction, 0, len(trxs)+1)
	augmented = append(augmented, trxs...)
	augmented = append(augmented, synth)
	return augmented, synth, nil
}
