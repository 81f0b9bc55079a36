// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/pkg/errutil"
)

func TestSessionStore_CreateAndGet(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session, err := auth.NewSession(ulid.Make(), "digest", now, now.Add(auth.SessionTTL))
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("digest", session.UserID.String(), session.CreatedAt, session.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT token_hash, user_id, created_at, expires_at\s+FROM sessions`).
		WithArgs("digest").
		WillReturnRows(pgxmock.NewRows([]string{"token_hash", "user_id", "created_at", "expires_at"}).
			AddRow("digest", session.UserID.String(), session.CreatedAt, session.ExpiresAt))

	store := NewSessionStore(mock)
	require.NoError(t, store.Create(context.Background(), session))
	got, err := store.Get(context.Background(), "digest")
	require.NoError(t, err)
	assert.Equal(t, *session, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_GetMissing(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM sessions`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := NewSessionStore(mock).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	tests := []struct {
		name     string
		rows     int64
		execErr  error
		wantNF   bool
		wantCode string
	}{
		{name: "deletes", rows: 1},
		{name: "missing", rows: 0, wantNF: true},
		{name: "database error", execErr: errors.New("boom"), wantCode: "SESSION_DELETE_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).WithArgs("digest")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("DELETE", tt.rows))
			}

			err := NewSessionStore(mock).Delete(context.Background(), "digest")
			switch {
			case tt.wantNF:
				assert.ErrorIs(t, err, auth.ErrNotFound)
			case tt.wantCode != "":
				errutil.AssertErrorCode(t, err, tt.wantCode)
			default:
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	mock := newMock(t)
	cutoff := time.Now()
	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := NewSessionStore(mock).DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
