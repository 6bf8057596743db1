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

package fees

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/trackfolio/tf-engine/asset"
)

var sharesPerContract = decimal.NewFromInt(asset.SharesPerContract)

// Calculator computes transaction fees by asset class. Equities, ETFs,
// REITs, crypto and forex trade commission-free; options are charged a flat
// per-contract rate.
type Calculator struct {
	PerContract decimal.Decimal
}

// New creates a Calculator with an explicit per-contract fee.
func New(perContract decimal.Decimal) *Calculator {
	return &Calculator{PerContract: perContract}
}

// NewFromConfig creates a Calculator using the fees.per_contract setting.
func NewFromConfig() *Calculator {
	return New(decimal.NewFromFloat(viper.GetFloat64("fees.per_contract")))
}

// ForTrade returns the fee for trading the given quantity of an asset.
// Quantity is share-denominated even for options: one contract covers 100
// underlying shares, so the quantity is divided by 100 to obtain the number
// of contracts before the per-contract rate is applied.
func (c *Calculator) ForTrade(class asset.Class, quantity decimal.Decimal) decimal.Decimal {
	if class != asset.Option {
		return decimal.Zero
	}
	return quantity.Div(sharesPerContract).Mul(c.PerContract)
}
