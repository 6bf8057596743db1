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
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnknownClass = errors.New("unknown asset class")
	ErrNotFound     = errors.New("asset not found")
)

// Class identifies the instrument type of a traded asset.
type Class string

const (
	Stock   Class = "stock"
	ETF     Class = "etf"
	REIT    Class = "reit"
	Crypto  Class = "crypto"
	Forex   Class = "forex"
	Option  Class = "option"
	Unknown Class = "unknown"
)

// ParseClass normalizes a string into a Class.
func ParseClass(s string) (Class, error) {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case Stock:
		return Stock, nil
	case ETF:
		return ETF, nil
	case REIT:
		return REIT, nil
	case Crypto:
		return Crypto, nil
	case Forex:
		return Forex, nil
	case Option:
		return Option, nil
	default:
		return Unknown, ErrUnknownClass
	}
}

// Valid reports whether the class is one of the recognized instrument types.
func (c Class) Valid() bool {
	switch c {
	case Stock, ETF, REIT, Crypto, Forex, Option:
		return true
	}
	return false
}

// Security is the metadata record for a tradeable asset.
type Security struct {
	ID     uuid.UUID
	Symbol string
	Class  Class
}

// Resolver looks up asset metadata for the reconciliation engine. Persistence
// of the security master is a collaborator concern; implementations may be
// backed by a database table or a static map.
type Resolver interface {
	Resolve(ctx context.Context, symbol string) (*Security, error)
}

// MapResolver is a Resolver backed by an in-memory map, keyed by symbol.
type MapResolver map[string]*Security

func (m MapResolver) Resolve(_ context.Context, symbol string) (*Security, error) {
	if sec, ok := m[symbol]; ok {
		return sec, nil
	}
	return nil, ErrNotFound
}
