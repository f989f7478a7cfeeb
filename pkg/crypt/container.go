// Package crypt implements hatn's chunked AEAD file container: the
// on-disk encryption wrapper for storage-engine shards and
// passphrase-sealed session tickets / config blobs, per spec.md §4.6
// and §6's 22-byte header layout.
//
// Per-chunk keys are AES-256-GCM, the same cipher construction
// cuemby-warren/pkg/security/secrets.go uses for EncryptSecret/
// DecryptSecret (nonce-prepended ciphertext), generalized from "one key,
// one blob" to "one file, many independently-keyed chunks" via
// golang.org/x/crypto/hkdf key derivation per chunk index.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
)

// Magic identifies the container flavor: HCC for a random-access chunked
// container, HCS for a streaming (single-pass) one.
var (
	MagicChunked   = [3]byte{'H', 'C', 'C'}
	MagicStreaming = [3]byte{'H', 'C', 'S'}
)

const (
	headerSize     = 22
	version1       = 1
	defaultChunk   = 64 * 1024
	nonceSize      = 12
	keySize        = 32
	gcmTagOverhead = 16
)

// Header is the container's fixed 22-byte prefix: 3-byte magic, 1-byte
// version, 2-byte descriptor size, 8-byte plaintext size, 8-byte
// ciphertext size, all little-endian except the magic.
type Header struct {
	Magic          [3]byte
	Version        uint8
	DescriptorSize uint16
	PlaintextSize  uint64
	CiphertextSize uint64
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:3], h.Magic[:])
	buf[3] = h.Version
	binary.LittleEndian.PutUint16(buf[4:6], h.DescriptorSize)
	binary.LittleEndian.PutUint64(buf[6:14], h.PlaintextSize)
	binary.LittleEndian.PutUint64(buf[14:22], h.CiphertextSize)
	return buf
}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, herr.New(herr.InvalidInput, "container header truncated")
	}
	var h Header
	copy(h.Magic[:], b[0:3])
	if h.Magic != MagicChunked && h.Magic != MagicStreaming {
		return Header{}, herr.New(herr.InvalidInput, "bad container magic")
	}
	h.Version = b[3]
	h.DescriptorSize = binary.LittleEndian.Uint16(b[4:6])
	h.PlaintextSize = binary.LittleEndian.Uint64(b[6:14])
	h.CiphertextSize = binary.LittleEndian.Uint64(b[14:22])
	return h, nil
}

// Descriptor carries the per-file salt and chunk size, written
// immediately after the fixed header, sized DescriptorSize bytes.
type Descriptor struct {
	Salt      [16]byte
	ChunkSize uint32
}

func (d Descriptor) encode() []byte {
	buf := make([]byte, 16+4)
	copy(buf[0:16], d.Salt[:])
	binary.LittleEndian.PutUint32(buf[16:20], d.ChunkSize)
	return buf
}

func decodeDescriptor(b []byte) (Descriptor, error) {
	if len(b) < 20 {
		return Descriptor{}, herr.New(herr.InvalidInput, "container descriptor truncated")
	}
	var d Descriptor
	copy(d.Salt[:], b[0:16])
	d.ChunkSize = binary.LittleEndian.Uint32(b[16:20])
	return d, nil
}

// deriveChunkKey derives chunk i's AES-256 key from masterKey and salt
// via HKDF-SHA256, so that compromising one chunk's key never exposes
// another's, per spec.md §4.6.
func deriveChunkKey(masterKey, salt []byte, chunkIndex uint32) ([]byte, error) {
	info := make([]byte, 4)
	binary.LittleEndian.PutUint32(info, chunkIndex)
	r := hkdf.New(sha256.New, masterKey, salt, info)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, herr.Wrap(herr.Fatal, "derive chunk key", err)
	}
	return key, nil
}

func sealChunk(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, herr.Wrap(herr.Fatal, "create chunk cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, herr.Wrap(herr.Fatal, "create chunk gcm", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, herr.Wrap(herr.Fatal, "generate chunk nonce", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openChunk(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, herr.Wrap(herr.Fatal, "create chunk cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, herr.Wrap(herr.Fatal, "create chunk gcm", err)
	}
	if len(sealed) < nonceSize {
		return nil, herr.New(herr.InvalidInput, "chunk ciphertext too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "chunk authentication failed", err)
	}
	return plain, nil
}

// Seal encrypts plaintext as a chunked container keyed from masterKey
// (a 32-byte AES-256 key), writing the result to w.
func Seal(w io.Writer, masterKey, plaintext []byte) error {
	if len(masterKey) != keySize {
		return herr.New(herr.InvalidInput, fmt.Sprintf("master key must be %d bytes", keySize))
	}
	var salt [16]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return herr.Wrap(herr.Fatal, "generate container salt", err)
	}
	desc := Descriptor{Salt: salt, ChunkSize: defaultChunk}

	var body bytes.Buffer
	chunkIndex := uint32(0)
	for off := 0; off < len(plaintext) || (off == 0 && len(plaintext) == 0); off += defaultChunk {
		end := off + defaultChunk
		if end > len(plaintext) {
			end = len(plaintext)
		}
		key, err := deriveChunkKey(masterKey, salt[:], chunkIndex)
		if err != nil {
			return err
		}
		sealed, err := sealChunk(key, plaintext[off:end])
		if err != nil {
			return err
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
		body.Write(lenBuf[:])
		body.Write(sealed)
		chunkIndex++
		if len(plaintext) == 0 {
			break
		}
	}

	descBytes := desc.encode()
	header := Header{
		Magic:          MagicChunked,
		Version:        version1,
		DescriptorSize: uint16(len(descBytes)),
		PlaintextSize:  uint64(len(plaintext)),
		CiphertextSize: uint64(body.Len()),
	}
	if _, err := w.Write(header.encode()); err != nil {
		return herr.Wrap(herr.Transient, "write container header", err)
	}
	if _, err := w.Write(descBytes); err != nil {
		return herr.Wrap(herr.Transient, "write container descriptor", err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return herr.Wrap(herr.Transient, "write container body", err)
	}
	return nil
}

// OpenAt decrypts only the single chunk covering plaintextOffset,
// without reading or decrypting any other chunk, per spec.md §4.6:
// "Random access requires reading the chunk header to locate chunk
// boundaries; the cipher exposes plain-text offsets." It returns the
// decrypted tail of that chunk starting at plaintextOffset, and the
// absolute plaintext offset at which the next chunk begins (so a caller
// wanting more than one chunk's worth of data can call OpenAt again
// with that offset instead of re-deriving chunk boundaries itself).
//
// Every full chunk Seal writes has the same on-disk footprint -- a
// 4-byte length prefix plus nonce ‖ ciphertext ‖ GCM tag, all sized off
// Descriptor.ChunkSize -- so the chunk containing plaintextOffset can be
// located by a single ReaderAt seek instead of decrypting every
// preceding chunk.
func OpenAt(r io.ReaderAt, masterKey []byte, plaintextOffset int64) (plaintext []byte, nextOffset int64, err error) {
	if len(masterKey) != keySize {
		return nil, 0, herr.New(herr.InvalidInput, fmt.Sprintf("master key must be %d bytes", keySize))
	}
	if plaintextOffset < 0 {
		return nil, 0, herr.New(herr.InvalidInput, "negative offset")
	}

	headerBuf := make([]byte, headerSize)
	if _, err := r.ReadAt(headerBuf, 0); err != nil {
		return nil, 0, herr.Wrap(herr.Transient, "read container header", err)
	}
	header, err := decodeHeader(headerBuf)
	if err != nil {
		return nil, 0, err
	}
	descBuf := make([]byte, header.DescriptorSize)
	if _, err := r.ReadAt(descBuf, headerSize); err != nil {
		return nil, 0, herr.Wrap(herr.Transient, "read container descriptor", err)
	}
	desc, err := decodeDescriptor(descBuf)
	if err != nil {
		return nil, 0, err
	}
	if desc.ChunkSize == 0 {
		return nil, 0, herr.New(herr.InvalidInput, "container descriptor has zero chunk size")
	}
	if plaintextOffset >= int64(header.PlaintextSize) {
		return nil, 0, herr.New(herr.InvalidInput, "offset past end of container")
	}

	chunkIndex := uint32(plaintextOffset / int64(desc.ChunkSize))
	chunkPlainStart := plaintextOffset % int64(desc.ChunkSize)

	sealedFullChunkLen := int64(4 + nonceSize + int(desc.ChunkSize) + gcmTagOverhead)
	bodyStart := int64(headerSize) + int64(header.DescriptorSize)
	recordOffset := bodyStart + int64(chunkIndex)*sealedFullChunkLen

	lenBuf := make([]byte, 4)
	if _, err := r.ReadAt(lenBuf, recordOffset); err != nil {
		return nil, 0, herr.Wrap(herr.Transient, "read chunk length", err)
	}
	chunkLen := int(binary.LittleEndian.Uint32(lenBuf))
	sealed := make([]byte, chunkLen)
	if _, err := r.ReadAt(sealed, recordOffset+4); err != nil {
		return nil, 0, herr.Wrap(herr.Transient, "read chunk body", err)
	}

	key, err := deriveChunkKey(masterKey, desc.Salt[:], chunkIndex)
	if err != nil {
		return nil, 0, err
	}
	plain, err := openChunk(key, sealed)
	if err != nil {
		return nil, 0, err
	}
	if chunkPlainStart > int64(len(plain)) {
		return nil, 0, herr.New(herr.InvalidInput, "offset past end of chunk")
	}
	next := int64(chunkIndex)*int64(desc.ChunkSize) + int64(len(plain))
	return plain[chunkPlainStart:], next, nil
}

// Open decrypts a chunked container produced by Seal, reading all of r.
func Open(r io.Reader, masterKey []byte) ([]byte, error) {
	if len(masterKey) != keySize {
		return nil, herr.New(herr.InvalidInput, fmt.Sprintf("master key must be %d bytes", keySize))
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, herr.Wrap(herr.Transient, "read container", err)
	}
	if len(raw) < headerSize {
		return nil, herr.New(herr.InvalidInput, "container truncated")
	}
	header, err := decodeHeader(raw[:headerSize])
	if err != nil {
		return nil, err
	}
	descEnd := headerSize + int(header.DescriptorSize)
	if len(raw) < descEnd {
		return nil, herr.New(herr.InvalidInput, "container descriptor truncated")
	}
	desc, err := decodeDescriptor(raw[headerSize:descEnd])
	if err != nil {
		return nil, err
	}

	body := raw[descEnd:]
	plaintext := make([]byte, 0, header.PlaintextSize)
	chunkIndex := uint32(0)
	pos := 0
	for pos < len(body) {
		if pos+4 > len(body) {
			return nil, herr.New(herr.InvalidInput, "chunk length truncated")
		}
		chunkLen := int(binary.LittleEndian.Uint32(body[pos : pos+4]))
		pos += 4
		if pos+chunkLen > len(body) {
			return nil, herr.New(herr.InvalidInput, "chunk body truncated")
		}
		key, err := deriveChunkKey(masterKey, desc.Salt[:], chunkIndex)
		if err != nil {
			return nil, err
		}
		plain, err := openChunk(key, body[pos:pos+chunkLen])
		if err != nil {
			return nil, err
		}
		plaintext = append(plaintext, plain...)
		pos += chunkLen
		chunkIndex++
	}
	return plaintext, nil
}
