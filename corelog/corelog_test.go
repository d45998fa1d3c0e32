package corelog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/isocore/internal/xerrors"
)

func TestAppendAndGetBeforeFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.nd")

	core, err := Create(path, 1024*1024, 3, 0)
	require.NoError(t, err)
	defer core.Close()

	id, err := core.Append([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, MessageId(0), id)

	got, err := core.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestAppendAndGetAfterFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.nd")

	core, err := Create(path, 1024*1024, 3, 0)
	require.NoError(t, err)
	defer core.Close()

	var ids []MessageId
	for i := 0; i < 20; i++ {
		id, err := core.Append([]byte{byte(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, core.Flush())

	for i, id := range ids {
		got, err := core.Get(id)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, got)
	}
}

func TestGetMissesCacheAndReadsThroughReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.nd")

	core, err := Create(path, 1024*1024, 3, 2)
	require.NoError(t, err)
	defer core.Close()

	for i := 0; i < 5; i++ {
		_, err := core.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, core.Flush())

	got, err := core.Get(MessageId(0))
	require.NoError(t, err)
	require.Equal(t, []byte{0}, got)
}

func TestGetUnknownMessageFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.nd")

	core, err := Create(path, 1024*1024, 3, 0)
	require.NoError(t, err)
	defer core.Close()

	_, err = core.Append([]byte("one"))
	require.NoError(t, err)

	_, err = core.Get(MessageId(99))
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.CodeNotFound))
}

func TestLoadReopensExistingCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.nd")

	core, err := Create(path, 1024*1024, 3, 0)
	require.NoError(t, err)
	_, err = core.Append([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, core.Flush())
	require.NoError(t, core.Close())

	reopened, err := Load(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, MessageId(1), reopened.Len())

	got, err := reopened.Get(MessageId(0))
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)

	id, err := reopened.Append([]byte("second"))
	require.NoError(t, err)
	require.Equal(t, MessageId(1), id)
}
