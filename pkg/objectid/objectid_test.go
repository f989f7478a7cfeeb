package objectid_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgeniums/hatn-sub006/pkg/objectid"
)

func TestNewProducesDistinctIncreasingIDs(t *testing.T) {
	a := objectid.New()
	b := objectid.New()
	require.NotEqual(t, a, b)
	require.True(t, objectid.Compare(a, b) <= 0)
}

func TestNewAtEmbedsTruncatedTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 5, 12, 30, 15, 500, time.UTC)
	id := objectid.NewAt(ts)
	require.Equal(t, ts.Truncate(time.Second), id.Timestamp())
}

func TestBytesRoundTrip(t *testing.T) {
	id := objectid.New()
	decoded, err := objectid.FromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, decoded)
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := objectid.FromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestStringParseRoundTrip(t *testing.T) {
	id := objectid.New()
	parsed, err := objectid.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsInvalidHex(t *testing.T) {
	_, err := objectid.Parse("not-hex")
	require.Error(t, err)
}

func TestIsNil(t *testing.T) {
	require.True(t, objectid.Nil.IsNil())
	require.False(t, objectid.New().IsNil())
}

func TestCompareOrdersByTimestampFirst(t *testing.T) {
	earlier := objectid.NewAt(time.Unix(1000, 0))
	later := objectid.NewAt(time.Unix(2000, 0))
	require.Equal(t, -1, objectid.Compare(earlier, later))
	require.Equal(t, 1, objectid.Compare(later, earlier))
	require.Equal(t, 0, objectid.Compare(earlier, earlier))
}

func TestMarshalUnmarshalText(t *testing.T) {
	id := objectid.New()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var out objectid.ObjectID
	require.NoError(t, out.UnmarshalText(text))
	require.Equal(t, id, out)
}
