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

package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidOptionSymbol = errors.New("invalid option symbol")

// SharesPerContract is the number of underlying shares represented by one
// standard option contract. Quantities throughout the engine are
// share-denominated; divide by this to get contracts.
const SharesPerContract = 100

type OptionType string

const (
	Call OptionType = "C"
	Put  OptionType = "P"
)

// OptionSymbol is the decomposed form of an OCC-style option symbol:
// underlying ticker, six digit expiration date (YYMMDD), C or P, and an
// eight digit strike price in thousandths of a dollar.
// Example: AAPL240621C00195000 is the AAPL $195 call expiring 2024-06-21.
type OptionSymbol struct {
	Underlying string
	Expiration time.Time
	Type       OptionType
	Strike     decimal.Decimal
}

var occPattern = regexp.MustCompile(`^([A-Z][A-Z0-9.]{0,5})(\d{6})([CP])(\d{8})$`)

// ParseOptionSymbol decomposes an OCC-style option symbol. The expiration is
// returned at midnight UTC; callers localize it to the reporting timezone
// before comparing against wall-clock time.
func ParseOptionSymbol(symbol string) (*OptionSymbol, error) {
	m := occPattern.FindStringSubmatch(symbol)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOptionSymbol, symbol)
	}

	expiration, err := time.Parse("060102", m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %q has invalid expiration date", ErrInvalidOptionSymbol, symbol)
	}

	strikeMils, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q has invalid strike", ErrInvalidOptionSymbol, symbol)
	}

	return &OptionSymbol{
		Underlying: m[1],
		Expiration: expiration,
		Type:       OptionType(m[3]),
		Strike:     decimal.New(strikeMils, -3),
	}, nil
}

// String re-encodes the symbol in OCC format.
func (o *OptionSymbol) String() string {
	return fmt.Sprintf("%s%s%s%08d", o.Underlying, o.Expiration.Format("060102"),
		o.Type, o.Strike.Shift(3).IntPart())
}

// ExpiredBefore reports whether the option's expiration date has fully passed
// as of the given instant in the given timezone. An option is live through
// the end of its expiration day.
func (o *OptionSymbol) ExpiredBefore(now time.Time, loc *time.Location) bool {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	expDay := time.Date(o.Expiration.Year(), o.Expiration.Month(), o.Expiration.Day(), 0, 0, 0, 0, loc)
	return expDay.Before(today)
}
