// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTable_ResolveOnce(t *testing.T) {
	p := newPendingTable()

	ch, err := p.register(NumberID(1))
	require.NoError(t, err)
	assert.Equal(t, 1, p.len())

	assert.True(t, p.resolve(NumberID(1), outcome{result: json.RawMessage(`"a"`)}))
	assert.False(t, p.resolve(NumberID(1), outcome{result: json.RawMessage(`"b"`)}), "duplicate response must be dropped")
	assert.Equal(t, 0, p.len())

	o := <-ch
	assert.JSONEq(t, `"a"`, string(o.result))
}

func TestPendingTable_UnknownIDIgnored(t *testing.T) {
	p := newPendingTable()

	ch, err := p.register(NumberID(1))
	require.NoError(t, err)

	assert.False(t, p.resolve(NumberID(99), outcome{}))
	assert.False(t, p.resolve(StringID("1"), outcome{}), "string id must not match numeric id")
	assert.Equal(t, 1, p.len())

	select {
	case <-ch:
		t.Fatal("waiter resolved by foreign id")
	default:
	}
}

func TestPendingTable_DuplicateRegister(t *testing.T) {
	p := newPendingTable()
	_, err := p.register(NumberID(5))
	require.NoError(t, err)

	_, err = p.register(NumberID(5))
	assert.Error(t, err)
}

func TestPendingTable_FailAll(t *testing.T) {
	p := newPendingTable()

	var waiters []<-chan outcome
	for i := int64(1); i <= 3; i++ {
		ch, err := p.register(NumberID(i))
		require.NoError(t, err)
		waiters = append(waiters, ch)
	}

	p.failAll(ErrTransportClosed)
	p.failAll(ErrConnectionClosed)

	for _, ch := range waiters {
		o := <-ch
		assert.ErrorIs(t, o.err, ErrTransportClosed)
	}
	assert.Equal(t, 0, p.len())

	_, err := p.register(NumberID(4))
	assert.ErrorIs(t, err, ErrTransportClosed, "first failure cause is kept")
}

func TestPendingTable_Forget(t *testing.T) {
	p := newPendingTable()
	_, err := p.register(NumberID(1))
	require.NoError(t, err)

	p.forget(NumberID(1))
	assert.Equal(t, 0, p.len())
	assert.False(t, p.resolve(NumberID(1), outcome{}))
}

func TestPendingTable_ConcurrentRegisterResolve(t *testing.T) {
	p := newPendingTable()
	const n = 200

	chans := make([]<-chan outcome, n)
	for i := range chans {
		ch, err := p.register(NumberID(int64(i)))
		require.NoError(t, err)
		chans[i] = ch
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			raw, _ := json.Marshal(i)
			p.resolve(NumberID(int64(i)), outcome{result: raw})
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := p.register(NumberID(int64(n + i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i, ch := range chans {
		o := <-ch
		var got int
		require.NoError(t, json.Unmarshal(o.result, &got))
		assert.Equal(t, i, got)
	}
	assert.Equal(t, n, p.len())

	p.failAll(errors.New("done"))
	assert.Equal(t, 0, p.len())
}
