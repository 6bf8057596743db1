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
	"time"

	"github.com/shopspring/decimal"

	"github.com/trackfolio/tf-engine/asset"
)

// StrategyClassifier decides whether a BUY of an option should be treated as
// a buy-to-close against an existing short premium position instead of
// opening a new long lot. The ledger only consults the classifier when the
// position is currently net-short; the classifier supplies the strategy
// judgement.
type StrategyClassifier interface {
	IsBuyToClose(trx *Transaction, netQuantity decimal.Decimal) bool
}

// TagClassifier trusts explicit strategy tags: a buy is a buyback only when
// the transaction carries the covered-call tag. This is the default.
type TagClassifier struct{}

func (TagClassifier) IsBuyToClose(trx *Transaction, netQuantity decimal.Decimal) bool {
	return trx.StrategyTag == TagCoveredCall && netQuantity.IsNegative()
}

// HeuristicClassifier infers covered-call buybacks for historical data that
// predates explicit tagging: an untagged option buy against a net-short
// position is classified as a buyback when the underlying equity was owned
// on the same day. The inference can misclassify; treat its output as
// advisory, not ground truth.
type HeuristicClassifier struct {
	// OwnsUnderlying reports whether the portfolio held the underlying
	// equity on the given day.
	OwnsUnderlying func(underlying string, on time.Time) bool
}

func (h HeuristicClassifier) IsBuyToClose(trx *Transaction, netQuantity decimal.Decimal) bool {
	if !netQuantity.IsNegative() {
		return false
	}
	if trx.StrategyTag == TagCoveredCall {
		return true
	}
	if h.OwnsUnderlying == nil {
		return false
	}
	sym, err := asset.ParseOptionSymbol(trx.Symbol)
	if err != nil {
		return false
	}
	return h.OwnsUnderlying(sym.Underlying, trx.OccurredAt)
}
