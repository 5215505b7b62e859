package snapshot

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLength6 appends the 6-bit inline length form.
func writeLength6(buf *bytes.Buffer, n int) {
	buf.WriteByte(byte(n) & 0x3F)
}

// writeLength14 appends the 14-bit two-byte length form.
func writeLength14(buf *bytes.Buffer, n int) {
	buf.WriteByte(0x40 | byte(n>>8))
	buf.WriteByte(byte(n))
}

// writeLength8 appends the out-of-band 8-bit length form.
func writeLength8(buf *bytes.Buffer, n int) {
	buf.WriteByte(0x80)
	buf.WriteByte(byte(n))
}

func writeString6(buf *bytes.Buffer, s string) {
	writeLength6(buf, len(s))
	buf.WriteString(s)
}

func header(version string) *bytes.Buffer {
	buf := &bytes.Buffer{}
	buf.WriteString("REDIS")
	buf.WriteString(version)
	return buf
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("NOTREDIS0011\xFF"))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeEmptyStoreIsHeaderThenEOF(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(11), res.Version)
	assert.Empty(t, res.Entries)
}

func TestDecodeAuxRecordRoundTrips(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opAux)
	writeString6(buf, "redis-ver")
	writeString6(buf, "7.2.0")
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "7.2.0", res.Aux["redis-ver"])
}

func TestDecodeSingleStringEntryNoExpiry(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opResizeDB)
	writeLength6(buf, 1) // total keys
	writeLength6(buf, 0) // keys with expiry
	buf.WriteByte(valueTypeString)
	writeString6(buf, "foo")
	writeString6(buf, "bar")
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "foo", res.Entries[0].Key)
	assert.Equal(t, "bar", string(res.Entries[0].Value))
	assert.Zero(t, res.Entries[0].ExpiresAtMillis)
}

func TestDecodeEntryWithMillisecondExpiry(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opResizeDB)
	writeLength6(buf, 1)
	writeLength6(buf, 1)
	buf.WriteByte(opExpireMS)
	expiryBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(expiryBytes, 1700000000000)
	buf.Write(expiryBytes)
	buf.WriteByte(valueTypeString)
	writeString6(buf, "k")
	writeString6(buf, "v")
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.EqualValues(t, 1700000000000, res.Entries[0].ExpiresAtMillis)
}

func TestDecodeEntryWithSecondExpiry(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opResizeDB)
	writeLength6(buf, 1)
	writeLength6(buf, 1)
	buf.WriteByte(opExpireSec)
	expiryBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(expiryBytes, 1700000000)
	buf.Write(expiryBytes)
	buf.WriteByte(valueTypeString)
	writeString6(buf, "k")
	writeString6(buf, "v")
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.EqualValues(t, 1700000000*1000, res.Entries[0].ExpiresAtMillis)
}

func TestDecodeLength14BitForm(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opResizeDB)
	writeLength6(buf, 1)
	writeLength6(buf, 0)
	buf.WriteByte(valueTypeString)
	longKey := bytes.Repeat([]byte("k"), 300)
	writeLength14(buf, len(longKey))
	buf.Write(longKey)
	writeString6(buf, "v")
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, string(longKey), res.Entries[0].Key)
}

func TestDecodeLength8BitOutOfBandForm(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opResizeDB)
	writeLength6(buf, 1)
	writeLength6(buf, 0)
	buf.WriteByte(valueTypeString)
	key := bytes.Repeat([]byte("x"), 200)
	writeLength8(buf, len(key))
	buf.Write(key)
	writeString6(buf, "v")
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, string(key), res.Entries[0].Key)
}

func TestDecodeSpecialInt8EncodingRendersAsDecimalString(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opResizeDB)
	writeLength6(buf, 1)
	writeLength6(buf, 0)
	buf.WriteByte(valueTypeString)
	writeString6(buf, "k")
	buf.WriteByte(0xC0) // special int8 selector
	buf.WriteByte(byte(int8(-5)))
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "-5", string(res.Entries[0].Value))
}

func TestDecodeRejectsUnsupportedValueType(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opResizeDB)
	writeLength6(buf, 1)
	writeLength6(buf, 0)
	buf.WriteByte(valueTypeList)
	writeString6(buf, "k")
	buf.WriteByte(opEOF)

	_, err := Decode(buf.Bytes())
	assert.ErrorIs(t, err, ErrUnsupportedValueType)
}

func TestDecodeUnrecognizedOpcodeIsSkippedNotFatal(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(0xF1) // not a recognized opcode
	buf.WriteByte(opAux)
	writeString6(buf, "k")
	writeString6(buf, "v")
	buf.WriteByte(opEOF)

	res, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "v", res.Aux["k"])
}

func TestDecodeSelectDBOpcodeIsSkipped(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opSelectDB)
	writeLength6(buf, 0)
	buf.WriteByte(opEOF)

	_, err := Decode(buf.Bytes())
	require.NoError(t, err)
}

func TestDecodeTruncatedStreamIsError(t *testing.T) {
	buf := header("0011")
	buf.WriteByte(opAux)
	writeLength6(buf, 5)
	buf.WriteString("abc") // short of the declared 5 bytes

	_, err := Decode(buf.Bytes())
	assert.ErrorIs(t, err, ErrTruncated)
}
