package dataunit_test

import (
	"testing"

	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	u := dataunit.New("item")
	u.SetString(2, "hello")
	u.SetInt(1, -42)
	u.SetUint(3, 7)
	u.SetFloat(4, 3.5)
	u.SetBool(5, true)
	u.SetBytes(6, []byte{1, 2, 3})

	nested := dataunit.New("nested")
	nested.SetString(1, "inner")
	u.SetMessage(7, nested)

	data := u.Marshal()
	back, err := dataunit.Unmarshal("item", data)
	require.NoError(t, err)

	for _, n := range []uint32{1, 2, 3, 4, 5, 6, 7} {
		f, ok := back.Get(n)
		require.Truef(t, ok, "field %d missing", n)
		orig, _ := u.Get(n)
		require.Equal(t, orig.Kind, f.Kind)
	}

	innerField, ok := back.Get(7)
	require.True(t, ok)
	require.NotNil(t, innerField.Message)
	s, ok := innerField.Message.Get(1)
	require.True(t, ok)
	require.Equal(t, "inner", s.String)
}

func TestMarshalIsDeterministicRegardlessOfSetOrder(t *testing.T) {
	a := dataunit.New("u")
	a.SetInt(3, 1)
	a.SetInt(1, 2)
	a.SetInt(2, 3)

	b := dataunit.New("u")
	b.SetInt(1, 2)
	b.SetInt(2, 3)
	b.SetInt(3, 1)

	require.Equal(t, a.Marshal(), b.Marshal())
}

func TestStringRoundTripsEmbeddedNUL(t *testing.T) {
	u := dataunit.New("u")
	u.SetString(1, "a\x00b")
	data := u.Marshal()
	back, err := dataunit.Unmarshal("u", data)
	require.NoError(t, err)
	f, ok := back.Get(1)
	require.True(t, ok)
	require.Equal(t, "a\x00b", f.String)
}
