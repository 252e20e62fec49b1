package file

import (
	"context"
	"testing"

	"github.com/passgate/passgate/physical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFileStorage(t *testing.T) physical.Storage {
	t.Helper()

	s, err := NewFileStorage(map[string]string{"path": t.TempDir()}, nil)
	require.NoError(t, err)
	return s
}

func TestFile_MissingPath(t *testing.T) {
	_, err := NewFileStorage(nil, nil)
	require.Error(t, err)
}

func TestFile_PutGetDelete(t *testing.T) {
	s := testFileStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &physical.Entry{Key: "token/t1/deadbeef", Value: []byte("payload")}))

	got, err := s.Get(ctx, "token/t1/deadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("payload"), got.Value)

	require.NoError(t, s.Delete(ctx, "token/t1/deadbeef"))

	got, err = s.Get(ctx, "token/t1/deadbeef")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Idempotent delete
	require.NoError(t, s.Delete(ctx, "token/t1/deadbeef"))
}

func TestFile_List(t *testing.T) {
	s := testFileStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &physical.Entry{Key: "token/t1/aa", Value: []byte("1")}))
	require.NoError(t, s.Put(ctx, &physical.Entry{Key: "token/t1/bb", Value: []byte("2")}))
	require.NoError(t, s.Put(ctx, &physical.Entry{Key: "token/t2/cc", Value: []byte("3")}))

	owners, err := s.List(ctx, "token/")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1/", "t2/"}, owners)

	tokens, err := s.List(ctx, "token/t1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, tokens)
}

func TestFile_ListAbsentPrefix(t *testing.T) {
	s := testFileStorage(t)

	out, err := s.List(context.Background(), "nothing/here/")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFile_RejectsTraversal(t *testing.T) {
	s := testFileStorage(t)

	err := s.Put(context.Background(), &physical.Entry{Key: "../escape", Value: []byte("x")})
	require.Error(t, err)
}
