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

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/database"
	"github.com/trackfolio/tf-engine/position"
)

// PositionStore persists reconciled position snapshots.
type PositionStore struct{}

func NewPositionStore() *PositionStore {
	return &PositionStore{}
}

const listPositionsSQL = `SELECT
	portfolio_id,
	asset_id,
	symbol,
	asset_class,
	quantity::text,
	average_cost::text,
	total_cost_basis::text,
	realized_pl::text,
	is_active,
	reconciled_at
FROM portfolio_positions
WHERE portfolio_id=$1`

func (s *PositionStore) ListPositions(ctx context.Context, portfolioID uuid.UUID) ([]*position.Position, error) {
	subLog := log.With().Str("PortfolioID", portfolioID.String()).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("unable to get database transaction")
		return nil, err
	}

	rows, err := trx.Query(ctx, listPositionsSQL, portfolioID)
	if err != nil {
		subLog.Error().Stack().Err(err).Str("Query", listPositionsSQL).Msg("could not list positions")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	positions := make([]*position.Position, 0, 50)
	for rows.Next() {
		p := position.Position{}

		var class string
		var quantity, averageCost, totalCostBasis, realizedPL string

		err := rows.Scan(&p.PortfolioID, &p.AssetID, &p.Symbol, &class,
			&quantity, &averageCost, &totalCostBasis, &realizedPL,
			&p.IsActive, &p.ReconciledAt)
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("failed scanning row into position fields")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}

		p.Class = asset.Class(class)
		if p.Quantity, err = decimal.NewFromString(quantity); err != nil {
			subLog.Error().Stack().Err(err).Str("Quantity", quantity).Msg("invalid quantity")
			return nil, err
		}
		if p.AverageCost, err = decimal.NewFromString(averageCost); err != nil {
			subLog.Error().Stack().Err(err).Str("AverageCost", averageCost).Msg("invalid average cost")
			return nil, err
		}
		if p.TotalCostBasis, err = decimal.NewFromString(totalCostBasis); err != nil {
			subLog.Error().Stack().Err(err).Str("TotalCostBasis", totalCostBasis).Msg("invalid total cost basis")
			return nil, err
		}
		if p.RealizedPL, err = decimal.NewFromString(realizedPL); err != nil {
			subLog.Error().Stack().Err(err).Str("RealizedPL", realizedPL).Msg("invalid realized pl")
			return nil, err
		}

		positions = append(positions, &p)
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

	return positions, nil
}

const upsertPositionSQL = `INSERT INTO portfolio_positions (
	"portfolio_id",
	"asset_id",
	"symbol",
	"asset_class",
	"quantity",
	"average_cost",
	"total_cost_basis",
	"realized_pl",
	"is_active",
	"reconciled_at"
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
) ON CONFLICT ON CONSTRAINT portfolio_positions_pkey
DO UPDATE SET
	symbol=$3,
	asset_class=$4,
	quantity=$5,
	average_cost=$6,
	total_cost_basis=$7,
	realized_pl=$8,
	is_active=$9,
	reconciled_at=$10`

func (s *PositionStore) UpsertPosition(ctx context.Context, p *position.Position) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("unable to get database transaction")
		return err
	}

	_, err = trx.Exec(ctx, upsertPositionSQL,
		p.PortfolioID,    // 1
		p.AssetID,        // 2
		p.Symbol,         // 3
		string(p.Class),  // 4
		p.Quantity,       // 5
		p.AverageCost,    // 6
		p.TotalCostBasis, // 7
		p.RealizedPL,     // 8
		p.IsActive,       // 9
		p.ReconciledAt,   // 10
	)
	if err != nil {
		log.Error().Stack().Err(err).Object("Position", p).Msg("failed to upsert position")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return err
	}

	return nil
}

const deletePositionSQL = `DELETE FROM portfolio_positions WHERE portfolio_id=$1 AND asset_id=$2`

func (s *PositionStore) DeletePosition(ctx context.Context, portfolioID uuid.UUID, assetID uuid.UUID) error {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("unable to get database transaction")
		return err
	}

	if _, err := trx.Exec(ctx, deletePositionSQL, portfolioID, assetID); err != nil {
		log.Error().Stack().Err(err).
			Str("PortfolioID", portfolioID.String()).
			Str("AssetID", assetID.String()).
			Msg("failed to delete position")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return err
	}

	return nil
}
