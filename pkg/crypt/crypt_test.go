package crypt_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evgeniums/hatn-sub006/pkg/crypt"
)

func key32() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("hatn storage chunk data "), 5000)
	var buf bytes.Buffer
	require.NoError(t, crypt.Seal(&buf, key32(), plaintext))

	out, err := crypt.Open(&buf, key32())
	require.NoError(t, err)
	require.Equal(t, plaintext, out)
}

func TestSealOpenEmptyPlaintext(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, crypt.Seal(&buf, key32(), nil))
	out, err := crypt.Open(&buf, key32())
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, crypt.Seal(&buf, key32(), []byte("secret")))
	wrong := key32()
	wrong[0] ^= 0xff
	_, err := crypt.Open(&buf, wrong)
	require.Error(t, err)
}

func TestSealRejectsBadKeySize(t *testing.T) {
	var buf bytes.Buffer
	err := crypt.Seal(&buf, []byte("short"), []byte("data"))
	require.Error(t, err)
}

func TestOpenAtRandomAccess(t *testing.T) {
	plaintext := bytes.Repeat([]byte("0123456789"), 20000) // spans several chunks
	var buf bytes.Buffer
	require.NoError(t, crypt.Seal(&buf, key32(), plaintext))
	r := bytes.NewReader(buf.Bytes())

	offset := int64(len(plaintext) / 2)
	tail, next, err := crypt.OpenAt(r, key32(), offset)
	require.NoError(t, err)
	require.NotEmpty(t, tail)
	require.Equal(t, plaintext[offset:offset+int64(len(tail))], tail)
	require.Greater(t, next, offset)

	head, _, err := crypt.OpenAt(r, key32(), 0)
	require.NoError(t, err)
	require.Equal(t, plaintext[:len(head)], head)
}

func TestOpenAtRejectsOffsetPastEnd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, crypt.Seal(&buf, key32(), []byte("short")))
	r := bytes.NewReader(buf.Bytes())
	_, _, err := crypt.OpenAt(r, key32(), 1000)
	require.Error(t, err)
}

func TestPassphraseRoundTripPBKDF2(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, crypt.SealWithPassphrase(&buf, "correct horse battery staple", crypt.PBKDF2, []byte("ticket-body")))
	out, err := crypt.OpenWithPassphrase(&buf, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, []byte("ticket-body"), out)
}

func TestPassphraseRoundTripSCrypt(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, crypt.SealWithPassphrase(&buf, "hunter2", crypt.SCrypt, []byte("config-blob")))
	out, err := crypt.OpenWithPassphrase(&buf, "hunter2")
	require.NoError(t, err)
	require.Equal(t, []byte("config-blob"), out)
}

func TestPassphraseWrongPassphraseFails(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, crypt.SealWithPassphrase(&buf, "right", crypt.PBKDF2, []byte("data")))
	_, err := crypt.OpenWithPassphrase(&buf, "wrong")
	require.Error(t, err)
}
