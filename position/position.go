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
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/ledger"
)

// Position is the derived holdings aggregate for one (portfolio, asset)
// pair. Quantity is signed; a negative quantity is net-short option
// exposure. Positions are always recomputed from the full transaction
// history, never mutated incrementally.
type Position struct {
	PortfolioID    uuid.UUID
	AssetID        uuid.UUID
	Symbol         string
	Class          asset.Class
	Quantity       decimal.Decimal
	AverageCost    decimal.Decimal
	TotalCostBasis decimal.Decimal
	RealizedPL     decimal.Decimal
	IsActive       bool
	ReconciledAt   time.Time
}

func (p *Position) MarshalZerologObject(e *zerolog.Event) {
	e.Str("PortfolioID", p.PortfolioID.String()).
		Str("AssetID", p.AssetID.String()).
		Str("Symbol", p.Symbol).
		Str("Class", string(p.Class)).
		Str("Quantity", p.Quantity.String()).
		Str("AverageCost", p.AverageCost.String()).
		Str("TotalCostBasis", p.TotalCostBasis.String()).
		Str("RealizedPL", p.RealizedPL.String()).
		Bool("IsActive", p.IsActive).
		Time("ReconciledAt", p.ReconciledAt)
}

// TransactionStore lists a portfolio's full transaction history, ascending
// by occurrence time with stable tie order.
type TransactionStore interface {
	ListTransactions(ctx context.Context, portfolioID uuid.UUID) ([]*ledger.Transaction, error)
}

// Store persists derived positions.
type Store interface {
	ListPositions(ctx context.Context, portfolioID uuid.UUID) ([]*Position, error)
	UpsertPosition(ctx context.Context, position *Position) error
	DeletePosition(ctx context.Context, portfolioID uuid.UUID, assetID uuid.UUID) error
}
