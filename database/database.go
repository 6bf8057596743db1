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

package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PgxIface is the slice of the pgx pool the stores need; pgxmock satisfies
// it so store tests can run without a database.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var ErrNotConnected = errors.New("database pool is not initialized")

var pool PgxIface

// Connect initializes the process-wide connection pool from the
// database.url setting.
func Connect(ctx context.Context) error {
	p, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to database")
		return err
	}
	if err := p.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database")
		return err
	}
	pool = p
	return nil
}

// SetPool replaces the pool; tests inject a pgxmock connection here.
func SetPool(p PgxIface) {
	pool = p
}

// Trx begins a transaction on the pool.
func Trx(ctx context.Context) (pgx.Tx, error) {
	if pool == nil {
		return nil, ErrNotConnected
	}
	trx, err := pool.Begin(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not begin database transaction")
		return nil, err
	}
	return trx, nil
}
