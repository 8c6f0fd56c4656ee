package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/pkg/audit/store/memory"
)

func TestOpen_Memory(t *testing.T) {
	st, err := Open(context.Background(), "memory://")
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)
	require.NoError(t, st.Close())
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://localhost:3306/audit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage url")
}
