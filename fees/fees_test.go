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

package fees_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/trackfolio/tf-engine/asset"
	"github.com/trackfolio/tf-engine/common"
	"github.com/trackfolio/tf-engine/fees"
)

var _ = Describe("Calculator", func() {
	var calc *fees.Calculator

	BeforeEach(func() {
		calc = fees.New(decimal.NewFromFloat(0.65))
	})

	DescribeTable("commission-free asset classes",
		func(class asset.Class) {
			fee := calc.ForTrade(class, decimal.NewFromInt(150))
			Expect(fee.IsZero()).To(BeTrue())
		},
		Entry("stock", asset.Stock),
		Entry("etf", asset.ETF),
		Entry("reit", asset.REIT),
		Entry("crypto", asset.Crypto),
		Entry("forex", asset.Forex),
	)

	Context("option trades", func() {
		It("charges per contract on share-denominated quantity", func() {
			// 200 shares = 2 contracts
			fee := calc.ForTrade(asset.Option, decimal.NewFromInt(200))
			Expect(fee.String()).To(Equal("1.3"))
		})

		It("charges a single contract", func() {
			fee := calc.ForTrade(asset.Option, decimal.NewFromInt(100))
			Expect(fee.String()).To(Equal("0.65"))
		})

		It("prorates fractional contract quantities exactly", func() {
			fee := calc.ForTrade(asset.Option, decimal.NewFromInt(50))
			Expect(fee.String()).To(Equal("0.325"))
		})
	})

	Context("configured from settings", func() {
		BeforeEach(func() {
			common.SetDefaults()
			viper.Set("fees.per_contract", 0.35)
		})

		AfterEach(func() {
			viper.Reset()
		})

		It("reads the per-contract rate", func() {
			calc = fees.NewFromConfig()
			fee := calc.ForTrade(asset.Option, decimal.NewFromInt(300))
			Expect(fee.String()).To(Equal("1.05"))
		})
	})
})
