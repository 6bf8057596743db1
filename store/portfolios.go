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

	"github.com/trackfolio/tf-engine/database"
)

const listPortfolioIDsSQL = `SELECT DISTINCT portfolio_id FROM portfolio_transactions`

// ListPortfolioIDs returns every portfolio that has at least one recorded
// transaction.
func (s *TransactionStore) ListPortfolioIDs(ctx context.Context) ([]uuid.UUID, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("unable to get database transaction")
		return nil, err
	}

	rows, err := trx.Query(ctx, listPortfolioIDsSQL)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", listPortfolioIDsSQL).Msg("could not list portfolios")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	ids := make([]uuid.UUID, 0, 100)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			log.Error().Stack().Err(err).Msg("failed scanning portfolio id")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Msg("row iteration failed")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	return ids, nil
}
