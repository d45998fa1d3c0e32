package neopack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.Bool(true).U8(200).S8(-7).U16(5000).S16(-1234).
		U32(70000).S32(-70000).U64(1 << 40).S64(-(1 << 40)).
		F32(3.5).F64(2.71828)

	r := NewReader(e.Bytes())
	b, err := r.Bool()
	require.NoError(t, err)
	require.True(t, b)

	u8, err := r.U8()
	require.NoError(t, err)
	require.EqualValues(t, 200, u8)

	s8, err := r.S8()
	require.NoError(t, err)
	require.EqualValues(t, -7, s8)

	u16, err := r.U16()
	require.NoError(t, err)
	require.EqualValues(t, 5000, u16)

	s16, err := r.S16()
	require.NoError(t, err)
	require.EqualValues(t, -1234, s16)

	u32, err := r.U32()
	require.NoError(t, err)
	require.EqualValues(t, 70000, u32)

	s32, err := r.S32()
	require.NoError(t, err)
	require.EqualValues(t, -70000, s32)

	u64, err := r.U64()
	require.NoError(t, err)
	require.EqualValues(t, 1<<40, u64)

	s64, err := r.S64()
	require.NoError(t, err)
	require.EqualValues(t, -(1 << 40), s64)

	f32, err := r.F32()
	require.NoError(t, err)
	require.Equal(t, float32(3.5), f32)

	f64, err := r.F64()
	require.NoError(t, err)
	require.Equal(t, 2.71828, f64)

	require.Equal(t, 0, r.Remaining())
}

func TestStringAndBytesRoundTrip(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.Str("hello, neopack"))
	require.NoError(t, e.BytesVal([]byte{0xde, 0xad, 0xbe, 0xef}))

	r := NewReader(e.Bytes())
	s, err := r.Str()
	require.NoError(t, err)
	require.Equal(t, "hello, neopack", s)

	b, err := r.BytesVal()
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)
}

func TestListRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.List().U32(1).U32(2).U32(3).Finish()

	r := NewReader(e.Bytes())
	list, err := r.List()
	require.NoError(t, err)

	var got []uint32
	for {
		v, err := list.Next()
		require.NoError(t, err)
		if v == nil {
			break
		}
		require.Equal(t, KindU32, v.Kind)
		got = append(got, v.U32)
	}
	require.Equal(t, []uint32{1, 2, 3}, got)
}

func TestMapRoundTrip(t *testing.T) {
	e := NewEncoder()
	m := e.Map()
	require.NoError(t, m.Entry("a", func(v *MapValueEncoder) error { v.U32(1); return nil }))
	require.NoError(t, m.Entry("b", func(v *MapValueEncoder) error { return v.Str("two") }))
	m.Finish()

	r := NewReader(e.Bytes())
	mi, err := r.Map()
	require.NoError(t, err)

	k, v, err := mi.Next()
	require.NoError(t, err)
	require.Equal(t, "a", k)
	require.Equal(t, uint32(1), v.U32)

	k, v, err = mi.Next()
	require.NoError(t, err)
	require.Equal(t, "b", k)
	s, err := v.AsStr()
	require.NoError(t, err)
	require.Equal(t, "two", s)

	k, v, err = mi.Next()
	require.NoError(t, err)
	require.Equal(t, "", k)
	require.Nil(t, v)
}

func TestArrayRoundTrip(t *testing.T) {
	e := NewEncoder()
	arr, err := e.Array(TagU64, 8)
	require.NoError(t, err)
	// Array elements are raw stride-width bytes, not tagged scalars, so
	// build each payload directly rather than through the scalar helpers.
	push := func(x uint64) {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(x >> (8 * i))
		}
		require.NoError(t, arr.Push(b))
	}
	push(10)
	push(20)
	push(30)
	arr.Finish()

	r := NewReader(e.Bytes())
	ai, err := r.Array()
	require.NoError(t, err)
	require.Equal(t, TagU64, ai.ItemTag())
	require.Equal(t, 8, ai.Stride())
	require.Equal(t, 3, ai.Remaining())

	var got []uint64
	for {
		b, err := ai.Next()
		require.NoError(t, err)
		if b == nil {
			break
		}
		var x uint64
		for i := 0; i < 8; i++ {
			x |= uint64(b[i]) << (8 * i)
		}
		got = append(got, x)
	}
	require.Equal(t, []uint64{10, 20, 30}, got)
}

func TestRecordRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.Record().U32(42).U16(7).Finish()

	r := NewReader(e.Bytes())
	rec, err := r.Record()
	require.NoError(t, err)
	n, err := rec.U32()
	require.NoError(t, err)
	require.EqualValues(t, 42, n)
	w, err := rec.U16()
	require.NoError(t, err)
	require.EqualValues(t, 7, w)
	require.True(t, rec.AtEnd())
}

func TestPendingNeverAdvancesCursor(t *testing.T) {
	e := NewEncoder()
	e.U32(12345)
	full := e.Bytes()

	r := NewReader(full[:2]) // only 2 of 5 bytes available
	_, err := r.U32()
	require.Error(t, err)

	var pend *PendingError
	require.True(t, errors.As(err, &pend))
	require.Equal(t, 3, pend.ShortBy)
	require.Equal(t, 0, r.Pos())

	// Retrying after "more data arrives" succeeds with the cursor
	// exactly where it was.
	r2 := NewReader(full)
	v, err := r2.U32()
	require.NoError(t, err)
	require.EqualValues(t, 12345, v)
}

func TestInvalidTag(t *testing.T) {
	r := NewReader([]byte{0xff})
	_, err := r.ReadTag()
	require.Error(t, err)
	var ne *Error
	require.True(t, errors.As(err, &ne))
	require.Equal(t, ErrInvalidTag, ne.Kind)
}

func TestTypeMismatch(t *testing.T) {
	e := NewEncoder()
	e.U32(7)
	r := NewReader(e.Bytes())
	_, err := r.Str()
	require.Error(t, err)
	var ne *Error
	require.True(t, errors.As(err, &ne))
	require.Equal(t, ErrTypeMismatch, ne.Kind)
}

func TestStreamBufferAccumulatesAcrossPending(t *testing.T) {
	e := NewEncoder()
	e.U64(999999).Str("done")
	full := e.Bytes()

	sb := NewStreamBuffer()
	sb.Write(full[:5])

	_, err := sb.Reader().U64()
	var pend *PendingError
	require.True(t, errors.As(err, &pend))

	sb.Write(full[5:])
	r := sb.Reader()
	v, err := r.U64()
	require.NoError(t, err)
	require.EqualValues(t, 999999, v)
	sb.Commit(r.Pos())

	r2 := sb.Reader()
	s, err := r2.Str()
	require.NoError(t, err)
	require.Equal(t, "done", s)
}

func TestSkipValueOverNestedContainers(t *testing.T) {
	e := NewEncoder()
	e.List().U32(1).Str("x").Finish()
	e.U32(99)

	r := NewReader(e.Bytes())
	require.NoError(t, r.SkipValue())
	v, err := r.U32()
	require.NoError(t, err)
	require.EqualValues(t, 99, v)
}
