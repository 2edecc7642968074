package xintake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransport(t *testing.T) {
	m := NewMemoryTransport()
	body := []byte("{\"metadata\":{}}\n")

	resp, err := m.Send(context.Background(), &Request{Body: body, Events: 1})
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	body[0] = 'X'
	got := m.Batches()
	require.Len(t, got, 1)
	assert.Equal(t, "{\"metadata\":{}}\n", string(got[0]))

	_, err = m.Send(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRequest)

	resp, err = m.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "memory://", m.Endpoint())
}
