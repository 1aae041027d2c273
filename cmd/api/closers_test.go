package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCloserListClosesInReverseOrder(t *testing.T) {
	closers := newCloserList(zaptest.NewLogger(t))
	var order []string
	require.True(t, closers.add(func() error { order = append(order, "postgres"); return nil }))
	require.True(t, closers.add(func() error { order = append(order, "redis"); return errors.New("already closed") }))

	closers.closeAll()
	require.Equal(t, []string{"redis", "postgres"}, order)

	closers.closeAll()
	require.Len(t, order, 2)
}

func TestCloserListClosesLateArrivalsImmediately(t *testing.T) {
	closers := newCloserList(zaptest.NewLogger(t))
	closers.closeAll()

	calls := 0
	require.False(t, closers.add(func() error { calls++; return nil }))
	require.Equal(t, 1, calls)

	closers.closeAll()
	require.Equal(t, 1, calls)
}
