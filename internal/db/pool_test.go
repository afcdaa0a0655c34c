package db

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPinger struct {
	errs  []error
	calls int
}

func (p *scriptedPinger) Ping(context.Context) error {
	p.calls++
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func noWait() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5)
}

func TestPingWithRetry_TransientThenUp(t *testing.T) {
	p := &scriptedPinger{errs: []error{
		errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
		&pgconn.PgError{Code: "57P03", Message: "the database system is starting up"},
	}}

	require.NoError(t, pingWithRetry(context.Background(), p, noWait()))
	assert.Equal(t, 3, p.calls)
}

func TestPingWithRetry_PermanentStops(t *testing.T) {
	p := &scriptedPinger{errs: []error{
		&pgconn.PgError{Code: "28P01", Message: "password authentication failed"},
	}}

	err := pingWithRetry(context.Background(), p, noWait())
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Contains(t, err.Error(), "password authentication failed")
}

func TestPingWithRetry_GivesUp(t *testing.T) {
	refused := errors.New("connection refused")
	p := &scriptedPinger{errs: []error{refused, refused, refused, refused, refused, refused, refused}}

	err := pingWithRetry(context.Background(), p, noWait())
	require.Error(t, err)
	assert.Equal(t, 6, p.calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("read: connection reset by peer")))
	assert.False(t, isTransient(errors.New("relation \"tc_outcome\" does not exist")))
	assert.False(t, isTransient(&pgconn.PgError{Code: "42P01"}))
}

func TestConnect_BadConnString(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", PoolConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: parse config")
}
