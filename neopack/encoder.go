package neopack

import (
	"encoding/binary"
	"math"
)

// Encoder is a growable buffer that accumulates a NeoPack-encoded value.
// The zero value is an empty, ready-to-use encoder; NewEncoder returns one.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// NewEncoderSize returns an empty encoder with buf pre-sized to cap bytes.
func NewEncoderSize(cap int) *Encoder {
	return &Encoder{buf: make([]byte, 0, cap)}
}

// Bytes returns the accumulated buffer. The slice aliases the encoder's
// internal storage and is only valid until the next write.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) writeTag(t Tag) {
	e.buf = append(e.buf, byte(t))
}

func (e *Encoder) writeU32Raw(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) writeBlob(t Tag, data []byte) error {
	if len(data) > maxBlobLen {
		return errBlobTooLarge()
	}
	e.writeTag(t)
	e.writeU32Raw(uint32(len(data)))
	e.buf = append(e.buf, data...)
	return nil
}

// Bool writes a tagged boolean.
func (e *Encoder) Bool(v bool) *Encoder {
	e.writeTag(TagBool)
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

// U8 writes a tagged uint8.
func (e *Encoder) U8(v uint8) *Encoder {
	e.writeTag(TagU8)
	e.buf = append(e.buf, v)
	return e
}

// S8 writes a tagged int8.
func (e *Encoder) S8(v int8) *Encoder {
	e.writeTag(TagS8)
	e.buf = append(e.buf, byte(v))
	return e
}

// U16 writes a tagged little-endian uint16.
func (e *Encoder) U16(v uint16) *Encoder {
	e.writeTag(TagU16)
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// S16 writes a tagged little-endian int16.
func (e *Encoder) S16(v int16) *Encoder { return e.U16(uint16(v)).retag(TagS16) }

// retag rewrites the tag byte just written by a U-variant helper; used so
// the signed scalar helpers can share the unsigned bit-pattern writer.
func (e *Encoder) retag(t Tag) *Encoder {
	size := fixedSize(t)
	e.buf[len(e.buf)-1-size] = byte(t)
	return e
}

// U32 writes a tagged little-endian uint32.
func (e *Encoder) U32(v uint32) *Encoder {
	e.writeTag(TagU32)
	e.writeU32Raw(v)
	return e
}

// S32 writes a tagged little-endian int32.
func (e *Encoder) S32(v int32) *Encoder { return e.U32(uint32(v)).retag(TagS32) }

// U64 writes a tagged little-endian uint64.
func (e *Encoder) U64(v uint64) *Encoder {
	e.writeTag(TagU64)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// S64 writes a tagged little-endian int64.
func (e *Encoder) S64(v int64) *Encoder { return e.U64(uint64(v)).retag(TagS64) }

// F32 writes a tagged little-endian IEEE-754 single.
func (e *Encoder) F32(v float32) *Encoder {
	e.writeTag(TagF32)
	e.writeU32Raw(math.Float32bits(v))
	return e
}

// F64 writes a tagged little-endian IEEE-754 double.
func (e *Encoder) F64(v float64) *Encoder {
	e.writeTag(TagF64)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	e.buf = append(e.buf, b[:]...)
	return e
}

// Str writes a length-prefixed UTF-8 string.
func (e *Encoder) Str(v string) error {
	return e.writeBlob(TagString, []byte(v))
}

// BytesVal writes a length-prefixed opaque blob.
func (e *Encoder) BytesVal(v []byte) error {
	return e.writeBlob(TagBytes, v)
}

// RecordBlob writes a pre-encoded record body under a Struct tag. Used to
// nest a value produced by another Encoder/RecordEncoder without copying
// its structure.
func (e *Encoder) RecordBlob(v []byte) error {
	return e.writeBlob(TagStruct, v)
}

// List opens a scoped list builder. The caller must call Finish on the
// returned builder exactly once; nothing patches the length automatically
// since Go has no destructors, so an un-Finished builder leaves a zeroed
// length slot — a caller bug, not a recoverable condition.
func (e *Encoder) List() *ListEncoder {
	e.writeTag(TagList)
	return &ListEncoder{scope: newPatchScope(e)}
}

// Map opens a scoped map builder, same Finish discipline as List.
func (e *Encoder) Map() *MapEncoder {
	e.writeTag(TagMap)
	return &MapEncoder{scope: newPatchScope(e)}
}

// Array opens a fixed-stride array builder: every element must be exactly
// stride bytes, checked on Finish for FixedRecord entries and on every
// Push for direct pushes.
func (e *Encoder) Array(itemTag Tag, stride int) (*ArrayEncoder, error) {
	if stride <= 0 || stride > maxBlobLen {
		return nil, errInvalidStride()
	}
	e.writeTag(TagArray)
	lenOffset := len(e.buf)
	e.writeU32Raw(0) // patched on Finish
	e.writeTag(itemTag)
	e.writeU32Raw(uint32(stride))
	bodyStart := lenOffset + 4
	return &ArrayEncoder{
		scope:  manualPatchScope(e, lenOffset, bodyStart),
		stride: stride,
	}, nil
}

// Record opens an opaque Struct builder: an untyped run of tagged scalars
// and nested values, patched with its total byte length on Finish.
func (e *Encoder) Record() *RecordEncoder {
	e.writeTag(TagStruct)
	return &RecordEncoder{scope: newPatchScope(e)}
}

// patchScope tracks a 4-byte length slot reserved at lenOffset that must
// be filled with the number of bytes written after bodyStart.
type patchScope struct {
	parent      *Encoder
	lenOffset   int
	bodyStart   int
	finished    bool
}

func newPatchScope(parent *Encoder) *patchScope {
	lenOffset := len(parent.buf)
	parent.buf = append(parent.buf, 0, 0, 0, 0)
	return &patchScope{parent: parent, lenOffset: lenOffset, bodyStart: len(parent.buf)}
}

func manualPatchScope(parent *Encoder, lenOffset, bodyStart int) *patchScope {
	return &patchScope{parent: parent, lenOffset: lenOffset, bodyStart: bodyStart}
}

func (s *patchScope) flush() {
	if s.finished {
		return
	}
	bodyLen := len(s.parent.buf) - s.bodyStart
	binary.LittleEndian.PutUint32(s.parent.buf[s.lenOffset:s.lenOffset+4], uint32(bodyLen))
}

func (s *patchScope) finish() *Encoder {
	s.flush()
	s.finished = true
	return s.parent
}

// ListEncoder builds the body of a List value.
type ListEncoder struct {
	scope *patchScope
}

// Finish patches the list's byte length and returns the parent encoder.
func (l *ListEncoder) Finish() *Encoder { return l.scope.finish() }

func (l *ListEncoder) enc() *Encoder { return l.scope.parent }

func (l *ListEncoder) Bool(v bool) *ListEncoder     { l.enc().Bool(v); return l }
func (l *ListEncoder) U8(v uint8) *ListEncoder      { l.enc().U8(v); return l }
func (l *ListEncoder) S8(v int8) *ListEncoder       { l.enc().S8(v); return l }
func (l *ListEncoder) U16(v uint16) *ListEncoder    { l.enc().U16(v); return l }
func (l *ListEncoder) S16(v int16) *ListEncoder     { l.enc().S16(v); return l }
func (l *ListEncoder) U32(v uint32) *ListEncoder    { l.enc().U32(v); return l }
func (l *ListEncoder) S32(v int32) *ListEncoder     { l.enc().S32(v); return l }
func (l *ListEncoder) U64(v uint64) *ListEncoder    { l.enc().U64(v); return l }
func (l *ListEncoder) S64(v int64) *ListEncoder     { l.enc().S64(v); return l }
func (l *ListEncoder) F32(v float32) *ListEncoder   { l.enc().F32(v); return l }
func (l *ListEncoder) F64(v float64) *ListEncoder   { l.enc().F64(v); return l }
func (l *ListEncoder) Str(v string) error           { return l.enc().Str(v) }
func (l *ListEncoder) BytesVal(v []byte) error      { return l.enc().BytesVal(v) }
func (l *ListEncoder) List() *ListEncoder           { return l.enc().List() }
func (l *ListEncoder) Map() *MapEncoder             { return l.enc().Map() }
func (l *ListEncoder) Record() *RecordEncoder       { return l.enc().Record() }

// MapEncoder builds the body of a Map value: alternating string keys and
// tagged values.
type MapEncoder struct {
	scope *patchScope
}

// Finish patches the map's byte length and returns the parent encoder.
func (m *MapEncoder) Finish() *Encoder { return m.scope.finish() }

// Key writes the next key and returns a value encoder scoped to the slot
// that must follow it.
func (m *MapEncoder) Key(k string) (*MapValueEncoder, error) {
	if err := m.scope.parent.Str(k); err != nil {
		return nil, err
	}
	return &MapValueEncoder{parent: m.scope.parent}, nil
}

// Entry writes key k and then invokes f with the value encoder for it —
// a closure-scoped convenience over Key for the common case.
func (m *MapEncoder) Entry(k string, f func(*MapValueEncoder) error) error {
	v, err := m.Key(k)
	if err != nil {
		return err
	}
	return f(v)
}

// MapValueEncoder writes exactly one tagged value for the preceding key.
type MapValueEncoder struct {
	parent *Encoder
}

func (v *MapValueEncoder) Bool(b bool) { v.parent.Bool(b) }
func (v *MapValueEncoder) U8(x uint8)  { v.parent.U8(x) }
func (v *MapValueEncoder) S8(x int8)   { v.parent.S8(x) }
func (v *MapValueEncoder) U16(x uint16) { v.parent.U16(x) }
func (v *MapValueEncoder) S16(x int16)  { v.parent.S16(x) }
func (v *MapValueEncoder) U32(x uint32) { v.parent.U32(x) }
func (v *MapValueEncoder) S32(x int32)  { v.parent.S32(x) }
func (v *MapValueEncoder) U64(x uint64) { v.parent.U64(x) }
func (v *MapValueEncoder) S64(x int64)  { v.parent.S64(x) }
func (v *MapValueEncoder) F32(x float32) { v.parent.F32(x) }
func (v *MapValueEncoder) F64(x float64) { v.parent.F64(x) }
func (v *MapValueEncoder) Str(s string) error      { return v.parent.Str(s) }
func (v *MapValueEncoder) BytesVal(b []byte) error { return v.parent.BytesVal(b) }
func (v *MapValueEncoder) List() *ListEncoder      { return v.parent.List() }
func (v *MapValueEncoder) Map() *MapEncoder        { return v.parent.Map() }
func (v *MapValueEncoder) Record() *RecordEncoder  { return v.parent.Record() }

// RecordEncoder builds the body of a Struct value: a flat run of tagged
// scalars and nested values with no per-field names, read back positionally
// by a matching RecordReader.
type RecordEncoder struct {
	scope *patchScope
}

// Finish patches the record's byte length and returns the parent encoder.
func (r *RecordEncoder) Finish() *Encoder { return r.scope.finish() }

func (r *RecordEncoder) enc() *Encoder { return r.scope.parent }

func (r *RecordEncoder) Push(data []byte) *RecordEncoder {
	r.enc().buf = append(r.enc().buf, data...)
	return r
}
func (r *RecordEncoder) Bool(v bool) *RecordEncoder   { r.enc().Bool(v); return r }
func (r *RecordEncoder) U8(v uint8) *RecordEncoder    { r.enc().U8(v); return r }
func (r *RecordEncoder) S8(v int8) *RecordEncoder     { r.enc().S8(v); return r }
func (r *RecordEncoder) U16(v uint16) *RecordEncoder  { r.enc().U16(v); return r }
func (r *RecordEncoder) S16(v int16) *RecordEncoder   { r.enc().S16(v); return r }
func (r *RecordEncoder) U32(v uint32) *RecordEncoder  { r.enc().U32(v); return r }
func (r *RecordEncoder) S32(v int32) *RecordEncoder   { r.enc().S32(v); return r }
func (r *RecordEncoder) U64(v uint64) *RecordEncoder  { r.enc().U64(v); return r }
func (r *RecordEncoder) S64(v int64) *RecordEncoder   { r.enc().S64(v); return r }
func (r *RecordEncoder) F32(v float32) *RecordEncoder { r.enc().F32(v); return r }
func (r *RecordEncoder) F64(v float64) *RecordEncoder { r.enc().F64(v); return r }

// ArrayEncoder builds the body of an Array value: a run of fixed-stride
// elements with no per-element tag, laid out as [item_tag][stride][payloads].
type ArrayEncoder struct {
	scope  *patchScope
	stride int
}

// Finish patches the array's byte length and returns the parent encoder.
func (a *ArrayEncoder) Finish() *Encoder { return a.scope.finish() }

// Push appends one element's raw bytes; len(data) must equal the stride
// fixed at Array() time.
func (a *ArrayEncoder) Push(data []byte) error {
	if len(data) != a.stride {
		return errMalformed("array element does not match stride")
	}
	a.scope.parent.buf = append(a.scope.parent.buf, data...)
	return nil
}

// FixedRecord opens a sub-builder for one array element whose total byte
// count is checked against the stride on Finish, instead of up front.
func (a *ArrayEncoder) FixedRecord() *FixedRecordEncoder {
	return &FixedRecordEncoder{parent: a, start: len(a.scope.parent.buf)}
}

// FixedRecordEncoder accumulates one array element's bytes without a
// length prefix of its own; Finish verifies the total matches the array's
// stride.
type FixedRecordEncoder struct {
	parent *ArrayEncoder
	start  int
}

func (f *FixedRecordEncoder) enc() *Encoder { return f.parent.scope.parent }

func (f *FixedRecordEncoder) Push(data []byte) *FixedRecordEncoder {
	f.enc().buf = append(f.enc().buf, data...)
	return f
}
func (f *FixedRecordEncoder) Bool(v bool) *FixedRecordEncoder  { f.enc().Bool(v); return f }
func (f *FixedRecordEncoder) U8(v uint8) *FixedRecordEncoder   { f.enc().U8(v); return f }
func (f *FixedRecordEncoder) S8(v int8) *FixedRecordEncoder    { f.enc().S8(v); return f }
func (f *FixedRecordEncoder) U16(v uint16) *FixedRecordEncoder { f.enc().U16(v); return f }
func (f *FixedRecordEncoder) S16(v int16) *FixedRecordEncoder  { f.enc().S16(v); return f }
func (f *FixedRecordEncoder) U32(v uint32) *FixedRecordEncoder { f.enc().U32(v); return f }
func (f *FixedRecordEncoder) S32(v int32) *FixedRecordEncoder  { f.enc().S32(v); return f }
func (f *FixedRecordEncoder) U64(v uint64) *FixedRecordEncoder { f.enc().U64(v); return f }
func (f *FixedRecordEncoder) S64(v int64) *FixedRecordEncoder  { f.enc().S64(v); return f }

// Finish verifies the accumulated element matches the array's fixed
// stride and returns the parent array builder.
func (f *FixedRecordEncoder) Finish() (*ArrayEncoder, error) {
	written := len(f.enc().buf) - f.start
	if written != f.parent.stride {
		return nil, errMalformed("fixed record does not match array stride")
	}
	return f.parent, nil
}
