package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/aitutor/internal/rag"
	"github.com/xxxsen/aitutor/internal/testutil"
)

func TestPGVectorIndexContract(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	_, err := conn.Exec(`DROP TABLE IF EXISTS rag_chunks_contract`)
	require.NoError(t, err)
	defer func() {
		_, _ = conn.Exec(`DROP TABLE IF EXISTS rag_chunks_contract`)
	}()

	idx, err := NewPGVector(conn, "rag_chunks_contract")
	require.NoError(t, err)
	runIndexContract(t, idx)
}

func TestPGVectorRejectsBadTable(t *testing.T) {
	_, err := NewPGVector(nil, "chunks; DROP TABLE users")
	require.True(t, rag.IsConfig(err))
}

func TestPGVectorNotReady(t *testing.T) {
	idx, err := NewPGVector(nil, "")
	require.NoError(t, err)
	_, err = idx.Query(context.Background(), "u1_d1", []float32{1}, 3)
	require.True(t, rag.IsConfig(err))
}
