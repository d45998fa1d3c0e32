// Package neodisk implements compressed, append-only logs with
// logarithmic skip-list frame headers.
//
// On-disk format: [frame][frame][frame]...[footer]
//
// Each frame is [header][compressed_body]. The header is a NeoPack List
// of frame_number (u64), compressed_size (u64), decompressed_size (u64),
// and jump_offsets (List<u64>, absolute file offsets to earlier frame
// headers) — see package jumpheader. The footer is the file's last 16
// bytes: an 8-byte little-endian offset to the last frame header,
// followed by the 8-byte magic "NEODISK\0". Each frame holds
// approximately DefaultFrameSize bytes of uncompressed NeoPack messages
// before being flushed and compressed.
package neodisk

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/r3e-network/isocore/internal/logging"
	"github.com/r3e-network/isocore/internal/metrics"
	"github.com/r3e-network/isocore/internal/xerrors"
	"github.com/r3e-network/isocore/jumpheader"
	"github.com/r3e-network/isocore/neopack"

	mmap "github.com/edsrzf/mmap-go"
)

// DefaultFrameSize is the uncompressed byte threshold that triggers a
// frame flush.
const DefaultFrameSize = 1024 * 1024

// DefaultZstdLevel is the zstd compression level new writers use unless
// told otherwise, matching the original implementation's default.
const DefaultZstdLevel = 3

const footerSize = 16

var magic = [8]byte{'N', 'E', 'O', 'D', 'I', 'S', 'K', 0}

// MessageId identifies one appended message by its 0-indexed append
// order.
type MessageId uint64

type frameInfo struct {
	frameNumber      uint64
	headerOffset     uint64
	compressedSize   uint64
	decompressedSize uint64
	messageCount     uint64
	firstMessageId   uint64
}

func encoderLevel(zstdLevel int) zstd.EncoderLevel {
	switch {
	case zstdLevel <= 1:
		return zstd.SpeedFastest
	case zstdLevel <= 6:
		return zstd.SpeedDefault
	case zstdLevel <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Writer appends NeoPack-encoded messages to a neodisk file, buffering
// and zstd-compressing them into frames.
type Writer struct {
	file       *os.File
	frameSize  int
	zstdLevel  int
	buf        []byte
	enc        *zstd.Encoder
	messageCount         uint64
	frames               []frameInfo
	currentFrameMessages uint64
	currentFrameStart    uint64

	Logger  *logging.Logger
	Metrics *metrics.Recorder
}

// Create opens path for writing, truncating any existing file, using
// DefaultFrameSize and DefaultZstdLevel.
func Create(path string) (*Writer, error) {
	return CreateWithOptions(path, DefaultFrameSize, DefaultZstdLevel)
}

// CreateWithOptions opens path for writing with a custom frame-flush
// threshold and zstd compression level.
func CreateWithOptions(path string, frameSize, zstdLevel int) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, xerrors.IOError("create", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel(zstdLevel)))
	if err != nil {
		file.Close()
		return nil, xerrors.CompressionFailed("new_encoder", err)
	}
	return &Writer{
		file:      file,
		frameSize: frameSize,
		zstdLevel: zstdLevel,
		buf:       make([]byte, 0, frameSize),
		enc:       enc,
	}, nil
}

// Open reopens an existing neodisk file for appending, re-scanning its
// frames to recover message counts and jump-header back-pointers.
func Open(path string) (*Writer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.IOError("open", err)
	}

	frames, err := scanFrames(data)
	if err != nil {
		return nil, err
	}

	var messageCount uint64
	if len(frames) > 0 {
		last := frames[len(frames)-1]
		messageCount = last.firstMessageId + last.messageCount
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, xerrors.IOError("open", err)
	}
	// Position at the start of the old footer without truncating it, so
	// the file stays well-formed (and readable by OpenReader) until the
	// next flushFrame's header overwrites the footer in place and the
	// next Flush writes a new one after it.
	footerStart := int64(len(data) - footerSize)
	if _, err := file.Seek(footerStart, io.SeekStart); err != nil {
		file.Close()
		return nil, xerrors.IOError("seek", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel(DefaultZstdLevel)))
	if err != nil {
		file.Close()
		return nil, xerrors.CompressionFailed("new_encoder", err)
	}

	return &Writer{
		file:                 file,
		frameSize:            DefaultFrameSize,
		zstdLevel:            DefaultZstdLevel,
		buf:                  make([]byte, 0, DefaultFrameSize),
		enc:                  enc,
		messageCount:         messageCount,
		frames:               frames,
		currentFrameStart:    messageCount,
	}, nil
}

// Append adds a fully NeoPack-encoded message to the current frame
// buffer, flushing the frame once it reaches the configured frame size.
func (w *Writer) Append(message []byte) (MessageId, error) {
	w.buf = append(w.buf, message...)
	id := MessageId(w.messageCount)
	w.messageCount++
	w.currentFrameMessages++

	if len(w.buf) >= w.frameSize {
		if err := w.flushFrame(); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (w *Writer) flushFrame() error {
	if len(w.buf) == 0 {
		return nil
	}

	headerOffset, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return xerrors.IOError("seek", err)
	}
	decompressedSize := uint64(len(w.buf))
	frameNumber := uint64(len(w.frames))

	compressed := w.enc.EncodeAll(w.buf, nil)
	compressedSize := uint64(len(compressed))

	jumpIndices := jumpheader.ComputeJumpIndices(frameNumber)
	var jumpOffsets []uint64
	for _, idx := range jumpIndices {
		if int(idx) < len(w.frames) {
			jumpOffsets = append(jumpOffsets, w.frames[idx].headerOffset)
		}
	}

	header := &jumpheader.FrameHeader{
		FrameNumber:      frameNumber,
		CompressedSize:   compressedSize,
		DecompressedSize: decompressedSize,
		JumpOffsets:      jumpOffsets,
	}
	headerBytes := header.Encode()

	if _, err := w.file.Write(headerBytes); err != nil {
		return xerrors.IOError("write_header", err)
	}
	if _, err := w.file.Write(compressed); err != nil {
		return xerrors.IOError("write_body", err)
	}

	w.frames = append(w.frames, frameInfo{
		frameNumber:      frameNumber,
		headerOffset:     uint64(headerOffset),
		compressedSize:   compressedSize,
		decompressedSize: decompressedSize,
		messageCount:     w.currentFrameMessages,
		firstMessageId:   w.currentFrameStart,
	})

	w.buf = w.buf[:0]
	w.currentFrameStart = w.messageCount
	w.currentFrameMessages = 0

	if w.Logger != nil {
		w.Logger.OpDebug(w.file.Name(), "frame_flush", strconv.FormatUint(frameNumber, 10), 0)
	}
	if w.Metrics != nil {
		w.Metrics.IncFrameFlush()
		w.Metrics.AddBytesCompressed(int(compressedSize))
	}

	return nil
}

// Flush flushes any buffered messages into a final frame, writes the
// footer, and syncs the file to durable storage.
func (w *Writer) Flush() error {
	start := time.Now()
	if err := w.flushFrame(); err != nil {
		return err
	}

	var lastHeaderOffset uint64
	if len(w.frames) > 0 {
		lastHeaderOffset = w.frames[len(w.frames)-1].headerOffset
	}
	footer := make([]byte, 0, footerSize)
	footer = appendU64LE(footer, lastHeaderOffset)
	footer = append(footer, magic[:]...)
	if _, err := w.file.Write(footer); err != nil {
		return xerrors.IOError("write_footer", err)
	}

	// Rewind past the footer we just wrote so a later Append+Flush
	// overwrites it with the next frame instead of leaving it stranded
	// mid-file, the same way Open repositions on reopen-for-append.
	if _, err := w.file.Seek(-int64(footerSize), io.SeekCurrent); err != nil {
		return xerrors.IOError("seek", err)
	}

	if err := w.file.Sync(); err != nil {
		return xerrors.IOError("sync", err)
	}

	if w.Metrics != nil {
		w.Metrics.ObserveAppend("neodisk", time.Since(start).Seconds())
	}
	return nil
}

// Len returns the number of messages appended so far.
func (w *Writer) Len() uint64 { return w.messageCount }

// Close releases the writer's file handle and compressor without
// flushing; callers must call Flush first to persist buffered data.
func (w *Writer) Close() error {
	w.enc.Close()
	return w.file.Close()
}

// Reader provides mmap-backed random access reads over a sealed neodisk
// file.
type Reader struct {
	data   mmap.MMap
	file   *os.File
	frames []frameInfo

	Logger  *logging.Logger
	Metrics *metrics.Recorder
}

// OpenReader mmaps path read-only and scans its frames.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.IOError("open", err)
	}
	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		return nil, xerrors.IOError("mmap", err)
	}
	frames, err := scanFrames(data)
	if err != nil {
		data.Unmap()
		file.Close()
		return nil, err
	}
	return &Reader{data: data, file: file, frames: frames}, nil
}

// Len returns the total number of messages across every frame.
func (r *Reader) Len() uint64 {
	var total uint64
	for _, f := range r.frames {
		total += f.messageCount
	}
	return total
}

// Read decompresses the frame containing id and returns the raw
// NeoPack-encoded bytes of that one message.
func (r *Reader) Read(id MessageId) ([]byte, error) {
	start := time.Now()
	frameIdx, err := r.findFrame(uint64(id))
	if err != nil {
		return nil, err
	}
	frame := r.frames[frameIdx]

	decompressed, err := r.decompressFrame(frameIdx)
	if err != nil {
		return nil, err
	}

	offsetInFrame := int(uint64(id) - frame.firstMessageId)
	reader := neopack.NewReader(decompressed)
	for i := 0; i < offsetInFrame; i++ {
		if err := reader.SkipValue(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidFormat, "skip to target message", err)
		}
	}
	raw, err := reader.RawValue()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidFormat, "read target message", err)
	}

	if r.Metrics != nil {
		r.Metrics.ObserveRead("neodisk", time.Since(start).Seconds())
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (r *Reader) findFrame(messageId uint64) (int, error) {
	for idx, f := range r.frames {
		if messageId >= f.firstMessageId && messageId < f.firstMessageId+f.messageCount {
			return idx, nil
		}
	}
	return 0, xerrors.MessageNotFound(messageId)
}

func (r *Reader) decompressFrame(frameIdx int) ([]byte, error) {
	if frameIdx < 0 || frameIdx >= len(r.frames) {
		return nil, xerrors.FrameNotFound(uint64(frameIdx))
	}
	frame := r.frames[frameIdx]

	headerReader := neopack.NewReader(r.data[frame.headerOffset:])
	headerBytes, err := headerReader.RawValue()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidFormat, "read frame header", err)
	}
	headerSize := len(headerBytes)

	dataStart := int(frame.headerOffset) + headerSize
	dataEnd := dataStart + int(frame.compressedSize)
	if dataEnd > len(r.data) {
		return nil, xerrors.InvalidFormat("frame body extends past end of file")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, xerrors.CompressionFailed("new_decoder", err)
	}
	defer dec.Close()

	decompressed, err := dec.DecodeAll(r.data[dataStart:dataEnd], nil)
	if err != nil {
		return nil, xerrors.CompressionFailed("decode_frame", err)
	}
	return decompressed, nil
}

// Close unmaps the file and releases its handle.
func (r *Reader) Close() error {
	if err := r.data.Unmap(); err != nil {
		r.file.Close()
		return xerrors.IOError("munmap", err)
	}
	return r.file.Close()
}

// scanFrames walks data (the whole file) from offset 0, parsing each
// frame header, decompressing its body to count messages, until it
// reaches the footer. It validates the footer's magic first.
func scanFrames(data []byte) ([]frameInfo, error) {
	if len(data) < footerSize {
		return nil, xerrors.InvalidFormat("file shorter than footer")
	}

	footerStart := len(data) - footerSize
	var gotMagic [8]byte
	copy(gotMagic[:], data[footerStart+8:footerStart+16])
	if gotMagic != magic {
		return nil, xerrors.InvalidFormat("footer magic mismatch")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, xerrors.CompressionFailed("new_decoder", err)
	}
	defer dec.Close()

	var frames []frameInfo
	pos := 0
	messageId := uint64(0)

	for pos < footerStart {
		headerOffset := uint64(pos)

		headerReader := neopack.NewReader(data[pos:])
		headerBytes, err := headerReader.RawValue()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidFormat, "read frame header", err)
		}
		header, err := jumpheader.DecodeFrameHeader(headerBytes)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidFormat, "decode frame header", err)
		}
		pos += len(headerBytes)

		if pos+int(header.CompressedSize) > footerStart {
			return nil, xerrors.InvalidFormat("frame body extends past footer")
		}

		compressedData := data[pos : pos+int(header.CompressedSize)]
		decompressed, err := dec.DecodeAll(compressedData, nil)
		if err != nil {
			return nil, xerrors.CompressionFailed("decode_frame", err)
		}

		count := uint64(0)
		msgReader := neopack.NewReader(decompressed)
		for msgReader.Remaining() > 0 {
			if err := msgReader.SkipValue(); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeInvalidFormat, "count frame messages", err)
			}
			count++
		}

		pos += int(header.CompressedSize)

		frames = append(frames, frameInfo{
			frameNumber:      header.FrameNumber,
			headerOffset:     headerOffset,
			compressedSize:   header.CompressedSize,
			decompressedSize: header.DecompressedSize,
			messageCount:     count,
			firstMessageId:   messageId,
		})
		messageId += count
	}

	return frames, nil
}

func appendU64LE(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56),
	)
}
