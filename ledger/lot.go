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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotSide distinguishes long lots (shares or contracts owned) from short
// lots (option premium positions sold to open). Remaining quantity inside a
// lot is always a positive magnitude; the side carries the direction.
type LotSide int

const (
	SideLong LotSide = iota
	SideShort
)

func (s LotSide) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "invalid"
	}
}

// Lot is a transient slice of an open position created by a single opening
// transaction. Lots live only in the in-memory FIFO queue during a ledger
// pass; they are never persisted and are always recomputable from the
// transaction stream.
type Lot struct {
	Side      LotSide
	Remaining decimal.Decimal
	UnitCost  decimal.Decimal
	OpenedAt  time.Time
	SourceID  uuid.UUID // transaction that opened the lot
}

// CostBasis is the remaining quantity valued at the lot's unit cost.
func (l *Lot) CostBasis() decimal.Decimal {
	return l.Remaining.Mul(l.UnitCost)
}

func (l *Lot) clone() *Lot {
	c := *l
	return &c
}

// CloneLots deep-copies a lot queue so a pre-seeded ledger cannot mutate its
// caller's state.
func CloneLots(lots []*Lot) []*Lot {
	out := make([]*Lot, 0, len(lots))
	for _, lot := range lots {
		out = append(out, lot.clone())
	}
	return out
}
