// Package corelog implements Core: a thin per-message addressing layer
// over one NeoDisk, with a bounded read cache so repeated reads of
// recently appended or recently read messages avoid a frame
// decompression.
package corelog

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/r3e-network/isocore/internal/logging"
	"github.com/r3e-network/isocore/internal/metrics"
	"github.com/r3e-network/isocore/internal/xerrors"
	"github.com/r3e-network/isocore/neodisk"
	"github.com/r3e-network/isocore/neopack"
)

// DefaultCacheSize bounds the number of decoded message payloads Core
// keeps in memory.
const DefaultCacheSize = 4096

// MessageId identifies one appended message by its 0-indexed append
// order, mirroring neodisk.MessageId.
type MessageId uint64

// Core binds a NeoDisk writer (and, once available, a read-only mmap
// reader) over the same path with an LRU cache of decoded payloads.
type Core struct {
	path    string
	writer  *neodisk.Writer
	reader  *neodisk.Reader
	cache   *lru.Cache[MessageId, []byte]

	Logger  *logging.Logger
	Metrics *metrics.Recorder
}

// Create creates a brand-new Core at path, truncating any existing
// file.
func Create(path string, frameSize, zstdLevel, cacheSize int) (*Core, error) {
	writer, err := neodisk.CreateWithOptions(path, frameSize, zstdLevel)
	if err != nil {
		return nil, err
	}
	return newCore(path, writer, nil, cacheSize)
}

// Load reopens an existing Core for further appends, also opening a
// read-only mmap reader since a previously flushed file already carries
// a valid footer.
func Load(path string, cacheSize int) (*Core, error) {
	writer, err := neodisk.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := neodisk.OpenReader(path)
	if err != nil {
		writer.Close()
		return nil, err
	}
	return newCore(path, writer, reader, cacheSize)
}

func newCore(path string, writer *neodisk.Writer, reader *neodisk.Reader, cacheSize int) (*Core, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[MessageId, []byte](cacheSize)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeIO, "create read cache", err)
	}
	return &Core{path: path, writer: writer, reader: reader, cache: cache}, nil
}

// Append wraps message in a NeoPack Bytes value, appends it to the
// underlying NeoDisk, and populates the read cache with it.
func (c *Core) Append(message []byte) (MessageId, error) {
	if c.Len() == ^MessageId(0) {
		return 0, xerrors.Full(0)
	}

	enc := neopack.NewEncoder()
	if err := enc.BytesVal(message); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeInvalidInput, "encode message", err)
	}

	start := time.Now()
	id, err := c.writer.Append(enc.Bytes())
	if err != nil {
		return 0, err
	}
	if c.Metrics != nil {
		c.Metrics.ObserveAppend("corelog", time.Since(start).Seconds())
	}

	stored := make([]byte, len(message))
	copy(stored, message)
	c.cache.Add(MessageId(id), stored)

	return MessageId(id), nil
}

// Get returns the message at id, consulting the cache before falling
// back to the NeoDisk reader (available after Load or Flush).
func (c *Core) Get(id MessageId) ([]byte, error) {
	if id >= c.Len() {
		return nil, xerrors.MessageNotFound(uint64(id))
	}
	if v, ok := c.cache.Get(id); ok {
		return v, nil
	}
	if c.reader == nil {
		return nil, xerrors.Wrap(xerrors.CodeNotFound, "message not yet flushed and evicted from cache",
			xerrors.MessageNotFound(uint64(id)))
	}

	start := time.Now()
	raw, err := c.reader.Read(neodisk.MessageId(id))
	if err != nil {
		return nil, err
	}
	if c.Metrics != nil {
		c.Metrics.ObserveRead("corelog", time.Since(start).Seconds())
	}

	dec := neopack.NewReader(raw)
	message, err := dec.BytesVal()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidFormat, "decode message", err)
	}

	stored := make([]byte, len(message))
	copy(stored, message)
	c.cache.Add(id, stored)
	return stored, nil
}

// Flush persists all buffered data to disk and, if no reader is open
// yet, opens one so subsequent cache misses can still be served.
func (c *Core) Flush() error {
	if err := c.writer.Flush(); err != nil {
		return err
	}
	if c.reader != nil {
		c.reader.Close()
	}
	reader, err := neodisk.OpenReader(c.path)
	if err != nil {
		return err
	}
	c.reader = reader
	return nil
}

// Len returns one past the last appended MessageId.
func (c *Core) Len() MessageId {
	return MessageId(c.writer.Len())
}

// Close releases the writer and, if open, the reader.
func (c *Core) Close() error {
	var readerErr error
	if c.reader != nil {
		readerErr = c.reader.Close()
	}
	if err := c.writer.Close(); err != nil {
		return err
	}
	return readerErr
}
