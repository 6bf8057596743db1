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

package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"

	"github.com/trackfolio/tf-engine/asset"
)

var (
	ErrMalformedTransaction = errors.New("transaction is missing symbol or asset class")
	ErrGenerateHash         = errors.New("could not create a new hash")
)

// Transaction kinds
const (
	BuyTransaction           = "BUY"
	SellTransaction          = "SELL"
	DividendTransaction      = "DIVIDEND"
	OptionExpiredTransaction = "OPTION_EXPIRED"
)

// TagCoveredCall marks a transaction as part of a covered-call strategy; a
// tagged BUY against a net-short option position is a premium buyback.
const TagCoveredCall = "covered-call"

// Transaction is one immutable record in a portfolio's append-only ledger.
// Quantity is always a positive magnitude; direction comes from Kind. Option
// quantities are share-denominated (one contract = 100 shares).
type Transaction struct {
	ID          uuid.UUID
	PortfolioID uuid.UUID
	AssetID     uuid.UUID
	Symbol      string
	Class       asset.Class
	Kind        string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Fees        decimal.Decimal
	Currency    string
	OccurredAt  time.Time
	StrategyTag string
	SourceID    string
}

// Validate checks the hard-error conditions. Data-quality problems such as
// oversells are not validation errors; they are quarantined during the pass.
func (trx *Transaction) Validate() error {
	if trx.Symbol == "" {
		return fmt.Errorf("%w: transaction %s has no symbol", ErrMalformedTransaction, trx.ID)
	}
	if !trx.Class.Valid() {
		return fmt.Errorf("%w: transaction %s has class %q", ErrMalformedTransaction, trx.ID, trx.Class)
	}
	return nil
}

// GrossAmount is quantity * price.
func (trx *Transaction) GrossAmount() decimal.Decimal {
	return trx.Quantity.Mul(trx.Price)
}

// ComputeSourceID calculates a 16-byte blake3 hash over the fields that
// identify a transaction to its upstream source (date, portfolio, symbol,
// kind, quantity, price, fees) and stores it hex-encoded on the transaction.
// Re-ingesting the same brokerage record yields the same SourceID, which the
// store uses for idempotent upserts.
func ComputeSourceID(trx *Transaction) error {
	h := blake3.New()

	d, err := trx.OccurredAt.UTC().MarshalText()
	if err != nil {
		return err
	}

	fields := [][]byte{
		d,
		trx.PortfolioID[:],
		[]byte(trx.Symbol),
		[]byte(trx.Kind),
		[]byte(trx.Quantity.String()),
		[]byte(trx.Price.String()),
		[]byte(trx.Fees.String()),
	}
	for _, field := range fields {
		if _, err := h.Write(field); err != nil {
			log.Error().Stack().Err(err).Msg("could not write field to blake3 hasher")
			return err
		}
	}

	digest := h.Digest()
	buf := make([]byte, 16)
	n, err := digest.Read(buf)
	if err != nil {
		return err
	}
	if n != 16 {
		return ErrGenerateHash
	}

	trx.SourceID = hex.EncodeToString(buf)
	return nil
}
