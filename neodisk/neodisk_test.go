package neodisk

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/isocore/neopack"
)

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.nd")

	writer, err := Create(path)
	require.NoError(t, err)
	for i := uint64(0); i < 10; i++ {
		enc := neopack.NewEncoder()
		enc.U64(i)
		_, err := writer.Append(enc.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, writer.Flush())
	require.NoError(t, writer.Close())

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Equal(t, uint64(10), reader.Len())
	for i := uint64(0); i < 10; i++ {
		msg, err := reader.Read(MessageId(i))
		require.NoError(t, err)

		dec := neopack.NewReader(msg)
		v, err := dec.U64()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestMultipleFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.nd")

	writer, err := CreateWithOptions(path, 100, DefaultZstdLevel)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		enc := neopack.NewEncoder()
		require.NoError(t, enc.Str(messageLabel(i)))
		_, err := writer.Append(enc.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, writer.Flush())
	require.NoError(t, writer.Close())

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Equal(t, uint64(50), reader.Len())

	for _, id := range []uint64{0, 25, 49} {
		msg, err := reader.Read(MessageId(id))
		require.NoError(t, err)
		dec := neopack.NewReader(msg)
		s, err := dec.Str()
		require.NoError(t, err)
		require.Equal(t, messageLabel(int(id)), s)
	}
}

func TestJumpHeadersAcrossManyFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jumps.nd")

	writer, err := CreateWithOptions(path, 50, DefaultZstdLevel)
	require.NoError(t, err)
	for i := uint64(0); i < 100; i++ {
		enc := neopack.NewEncoder()
		enc.U64(i)
		_, err := writer.Append(enc.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, writer.Flush())
	require.Greater(t, len(writer.frames), 5, "should have split into multiple frames")
	require.NoError(t, writer.Close())

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Equal(t, uint64(100), reader.Len())
	for i := uint64(0); i < 100; i++ {
		msg, err := reader.Read(MessageId(i))
		require.NoError(t, err)
		dec := neopack.NewReader(msg)
		v, err := dec.U64()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestReopenForAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.nd")

	writer, err := Create(path)
	require.NoError(t, err)
	for i := uint64(0); i < 5; i++ {
		enc := neopack.NewEncoder()
		enc.U64(i)
		_, err := writer.Append(enc.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, writer.Flush())
	require.NoError(t, writer.Close())

	writer2, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, uint64(5), writer2.Len())

	for i := uint64(5); i < 8; i++ {
		enc := neopack.NewEncoder()
		enc.U64(i)
		id, err := writer2.Append(enc.Bytes())
		require.NoError(t, err)
		require.Equal(t, i, uint64(id))
	}
	require.NoError(t, writer2.Flush())
	require.NoError(t, writer2.Close())

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()
	require.Equal(t, uint64(8), reader.Len())
	for i := uint64(0); i < 8; i++ {
		msg, err := reader.Read(MessageId(i))
		require.NoError(t, err)
		dec := neopack.NewReader(msg)
		v, err := dec.U64()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestReadUnknownMessageFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.nd")

	writer, err := Create(path)
	require.NoError(t, err)
	enc := neopack.NewEncoder()
	enc.U64(1)
	_, err = writer.Append(enc.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Flush())
	require.NoError(t, writer.Close())

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Read(MessageId(99))
	require.Error(t, err)
}

func messageLabel(i int) string {
	return "message_" + strconv.Itoa(i)
}
