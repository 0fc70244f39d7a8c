//go:build windows
// +build windows

package windows

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt"
)

func TestDecodeVariants(t *testing.T) {
	buf := make([]byte, 4*variantSize)
	put := func(i int, data uint64, n uint32, typ winevt.VarType) {
		binary.LittleEndian.PutUint64(buf[i*variantSize:], data)
		binary.LittleEndian.PutUint32(buf[i*variantSize+8:], n)
		binary.LittleEndian.PutUint32(buf[i*variantSize+12:], uint32(typ))
	}
	put(0, 0xffff, 0, winevt.VarTypeInt16)
	put(1, 0x1_0000_0007, 0, winevt.VarTypeUInt32)
	put(2, 1, 0, winevt.VarTypeBoolean)
	put(3, 0, 0, winevt.VarTypeString)

	got := decodeVariants(buf, 4)
	assert.Equal(t, []winevt.Variant{
		{Type: winevt.VarTypeInt16, Value: int64(-1)},
		{Type: winevt.VarTypeUInt32, Value: uint64(7)},
		{Type: winevt.VarTypeBoolean, Value: true},
		{Type: winevt.VarTypeString, Value: nil},
	}, got)

	assert.Len(t, decodeVariants(buf[:variantSize], 4), 1, "count is clamped to the buffer")
}

func TestQueryApplicationLog(t *testing.T) {
	api, err := New()
	require.NoError(t, err)

	q, err := winevt.NewQuery(api, "Application", "*", winevt.WithQueryBatchSize(5))
	require.NoError(t, err)
	defer q.Close()

	n := 0
	stop := winevt.ErrClosed
	err = q.Each(func(r winevt.Record) error {
		assert.Contains(t, r.XML, "<Event ")
		n++
		if n == 5 {
			return stop
		}
		return nil
	})
	if n == 5 {
		assert.ErrorIs(t, err, stop)
	} else {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, q.Registry().Live())
}

func TestEnumerateChannels(t *testing.T) {
	api, err := New()
	require.NoError(t, err)

	channels, err := winevt.NewChannelEnumerator(api).All()
	require.NoError(t, err)
	assert.Contains(t, channels, "Application")
}
