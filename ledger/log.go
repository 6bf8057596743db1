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
	"github.com/rs/zerolog"
)

func (trx *Transaction) MarshalZerologObject(e *zerolog.Event) {
	e.Str("TransactionID", trx.ID.String()).
		Str("PortfolioID", trx.PortfolioID.String()).
		Str("Symbol", trx.Symbol).
		Str("Class", string(trx.Class)).
		Str("Kind", trx.Kind).
		Str("Quantity", trx.Quantity.String()).
		Str("Price", trx.Price.String()).
		Str("Fees", trx.Fees.String()).
		Str("Currency", trx.Currency).
		Time("OccurredAt", trx.OccurredAt).
		Str("StrategyTag", trx.StrategyTag)
}

func (l *Lot) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Side", l.Side.String()).
		Str("Remaining", l.Remaining.String()).
		Str("UnitCost", l.UnitCost.String()).
		Time("OpenedAt", l.OpenedAt).
		Str("SourceTransactionID", l.SourceID.String())
}

func (o *Orphan) MarshalZerologObject(e *zerolog.Event) {
	e.Str("TransactionID", o.TransactionID.String()).
		Str("Symbol", o.Symbol).
		Str("Kind", o.Kind).
		Str("Requested", o.Requested.String()).
		Str("Available", o.Available.String()).
		Time("OccurredAt", o.OccurredAt).
		Str("Reason", o.Reason)
}
