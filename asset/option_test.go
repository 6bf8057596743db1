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

package asset_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trackfolio/tf-engine/asset"
)

var _ = Describe("OptionSymbol", func() {
	var tz *time.Location

	BeforeEach(func() {
		var err error
		tz, err = time.LoadLocation("America/New_York")
		Expect(err).To(BeNil())
	})

	Describe("parsing OCC symbols", func() {
		It("decomposes a standard call", func() {
			sym, err := asset.ParseOptionSymbol("AAPL240621C00195000")
			Expect(err).To(BeNil())
			Expect(sym.Underlying).To(Equal("AAPL"))
			Expect(sym.Expiration.Year()).To(Equal(2024))
			Expect(sym.Expiration.Month()).To(Equal(time.June))
			Expect(sym.Expiration.Day()).To(Equal(21))
			Expect(sym.Type).To(Equal(asset.Call))
			Expect(sym.Strike.String()).To(Equal("195"))
		})

		It("decomposes a put with a fractional strike", func() {
			sym, err := asset.ParseOptionSymbol("F250117P00012500")
			Expect(err).To(BeNil())
			Expect(sym.Underlying).To(Equal("F"))
			Expect(sym.Type).To(Equal(asset.Put))
			Expect(sym.Strike.String()).To(Equal("12.5"))
		})

		It("round-trips through String", func() {
			sym, err := asset.ParseOptionSymbol("TSLA260115C00300000")
			Expect(err).To(BeNil())
			Expect(sym.String()).To(Equal("TSLA260115C00300000"))
		})

		It("rejects a plain equity ticker", func() {
			_, err := asset.ParseOptionSymbol("AAPL")
			Expect(err).To(MatchError(asset.ErrInvalidOptionSymbol))
		})

		It("rejects a malformed strike field", func() {
			_, err := asset.ParseOptionSymbol("AAPL240621C195")
			Expect(err).To(MatchError(asset.ErrInvalidOptionSymbol))
		})

		It("rejects an invalid expiration date", func() {
			_, err := asset.ParseOptionSymbol("AAPL249921C00195000")
			Expect(err).To(MatchError(asset.ErrInvalidOptionSymbol))
		})
	})

	Describe("expiration cutoff", func() {
		var sym *asset.OptionSymbol

		BeforeEach(func() {
			var err error
			sym, err = asset.ParseOptionSymbol("AAPL240621C00195000")
			Expect(err).To(BeNil())
		})

		It("is live on the expiration day itself", func() {
			now := time.Date(2024, time.June, 21, 15, 30, 0, 0, tz)
			Expect(sym.ExpiredBefore(now, tz)).To(BeFalse())
		})

		It("is live just before midnight on expiration day", func() {
			now := time.Date(2024, time.June, 21, 23, 59, 59, 0, tz)
			Expect(sym.ExpiredBefore(now, tz)).To(BeFalse())
		})

		It("is expired the next morning", func() {
			now := time.Date(2024, time.June, 22, 0, 0, 1, 0, tz)
			Expect(sym.ExpiredBefore(now, tz)).To(BeTrue())
		})

		It("is live well before expiration", func() {
			now := time.Date(2024, time.May, 1, 9, 30, 0, 0, tz)
			Expect(sym.ExpiredBefore(now, tz)).To(BeFalse())
		})
	})
})

var _ = Describe("MapResolver", func() {
	var resolver asset.MapResolver

	BeforeEach(func() {
		resolver = asset.MapResolver{
			"AAPL": {ID: uuid.New(), Symbol: "AAPL", Class: asset.Stock},
		}
	})

	It("resolves a known symbol", func() {
		sec, err := resolver.Resolve(context.Background(), "AAPL")
		Expect(err).To(BeNil())
		Expect(sec.Class).To(Equal(asset.Stock))
	})

	It("returns ErrNotFound for an unknown symbol", func() {
		_, err := resolver.Resolve(context.Background(), "MSFT")
		Expect(err).To(MatchError(asset.ErrNotFound))
	})
})

var _ = Describe("Class", func() {
	It("parses known classes case-insensitively", func() {
		c, err := asset.ParseClass(" Option ")
		Expect(err).To(BeNil())
		Expect(c).To(Equal(asset.Option))
	})

	It("returns Unknown for unrecognized input", func() {
		c, err := asset.ParseClass("bond")
		Expect(err).To(MatchError(asset.ErrUnknownClass))
		Expect(c).To(Equal(asset.Unknown))
	})

	It("treats Unknown as invalid", func() {
		Expect(asset.Unknown.Valid()).To(BeFalse())
		Expect(asset.Stock.Valid()).To(BeTrue())
	})
})
