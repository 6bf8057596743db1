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

// Package store provides the PostgreSQL-backed implementations of the
// engine's collaborator interfaces. The engine itself is a stateless
// computation layer; everything durable lives here.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/database"
	"github.com/trackfolio/tf-engine/ledger"
)

// TransactionStore reads and writes the append-only transaction ledger.
type TransactionStore struct{}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{}
}

const listTransactionsSQL = `SELECT
	id,
	portfolio_id,
	asset_id,
	symbol,
	asset_class,
	kind,
	quantity::text,
	price::text,
	fees::text,
	currency,
	occurred_at,
	strategy_tag,
	source_id
FROM portfolio_transactions
WHERE portfolio_id=$1
ORDER BY occurred_at, sequence_num`

// ListTransactions returns the portfolio's full history ascending by
// occurrence time; sequence_num preserves the original ingestion order for
// same-instant transactions.
func (s *TransactionStore) ListTransactions(ctx context.Context, portfolioID uuid.UUID) ([]*ledger.Transaction, error) {
	subLog := log.With().Str("PortfolioID", portfolioID.String()).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction")
		return nil, err
	}

	rows, err := trx.Query(ctx, listTransactionsSQL, portfolioID)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", listTransactionsSQL).Msg("could not list transactions")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	transactions := make([]*ledger.Transaction, 0, 1000)
	for rows.Next() {
		t := ledger.Transaction{}

		var class string
		var quantity, price, fees string
		var strategyTag pgtype.Text
		var sourceID pgtype.Text

		err := rows.Scan(&t.ID, &t.PortfolioID, &t.AssetID, &t.Symbol, &class, &t.Kind,
			&quantity, &price, &fees, &t.Currency, &t.OccurredAt, &strategyTag, &sourceID)
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("failed scanning row into transaction fields")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}

		t.Class = asset.Class(class)
		if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
			subLog.Error().Stack().Err(err).Str("Quantity", quantity).Msg("invalid quantity")
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			subLog.Error().Stack().Err(err).Str("Price", price).Msg("invalid price")
			return nil, err
		}
		if t.Fees, err = decimal.NewFromString(fees); err != nil {
			subLog.Error().Stack().Err(err).Str("Fees", fees).Msg("invalid fees")
			return nil, err
		}
		if strategyTag.Status == pgtype.Present {
			t.StrategyTag = strategyTag.String
		}
		if sourceID.Status == pgtype.Present {
			t.SourceID = sourceID.String
		}

		transactions = append(transactions, &t)
	}

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("row iteration failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	return transactions, nil
}

const saveTransactionSQL = `INSERT INTO portfolio_transactions (
	"id",
	"portfolio_id",
	"asset_id",
	"symbol",
	"asset_class",
	"kind",
	"quantity",
	"price",
	"fees",
	"currency",
	"occurred_at",
	"strategy_tag",
	"source_id",
	"sequence_num"
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
) ON CONFLICT ON CONSTRAINT portfolio_transactions_pkey
DO UPDATE SET
	symbol=$4,
	asset_class=$5,
	kind=$6,
	quantity=$7,
	price=$8,
	fees=$9,
	currency=$10,
	occurred_at=$11,
	strategy_tag=$12,
	source_id=$13,
	sequence_num=$14`

// SaveTransactions upserts a batch of ledger records. SourceIDs are filled
// in for records that arrived without one so re-ingesting the same
// brokerage export is idempotent.
func (s *TransactionStore) SaveTransactions(ctx context.Context, transactions []*ledger.Transaction) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("unable to get database transaction")
		return err
	}

	for idx, t := range transactions {
		if t.SourceID == "" {
			if err := ledger.ComputeSourceID(t); err != nil {
				log.Warn().Stack().Err(err).Object("Transaction", t).Msg("could not compute transaction source id")
			}
		}

		_, err := trx.Exec(ctx, saveTransactionSQL,
			t.ID,            // 1
			t.PortfolioID,   // 2
			t.AssetID,       // 3
			t.Symbol,        // 4
			string(t.Class), // 5
			t.Kind,          // 6
			t.Quantity,      // 7
			t.Price,         // 8
			t.Fees,          // 9
			t.Currency,      // 10
			t.OccurredAt,    // 11
			t.StrategyTag,   // 12
			t.SourceID,      // 13
			idx,             // 14
		)
		if err != nil {
			log.Error().Stack().Err(err).Object("Transaction", t).Msg("failed to save transaction")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return err
		}
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return err
	}

	return nil
}
