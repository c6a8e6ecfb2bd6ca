package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	symmetricKeySize = 32
	ivSize           = aes.BlockSize
)

// Symmetric encrypts payloads with AES-256-CBC and PKCS#7 padding.
// Ciphertext layout is IV || CBC(ciphertext). There is no MAC; integrity of stored
// templates relies on the database, and the layout must stay readable for existing rows.
type Symmetric struct {
	block cipher.Block
	rand  io.Reader
}

// NewSymmetric builds an envelope from a raw 32-byte key.
func NewSymmetric(key []byte) (*Symmetric, error) {
	if len(key) != symmetricKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	return &Symmetric{block: block, rand: rand.Reader}, nil
}

// NewSymmetricFromBase64 decodes a standard base64 key before building the envelope.
func NewSymmetricFromBase64(encoded string) (*Symmetric, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid base64", ErrInvalidKeyLength)
	}
	return NewSymmetric(key)
}

// Encrypt returns IV || ciphertext using a fresh random IV.
func (s *Symmetric) Encrypt(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, ivSize+len(padded))
	iv := out[:ivSize]
	if _, err := io.ReadFull(s.rand, iv); err != nil {
		return nil, fmt.Errorf("read iv: %w", err)
	}
	cipher.NewCBCEncrypter(s.block, iv).CryptBlocks(out[ivSize:], padded)
	return out, nil
}

// Decrypt reverses Encrypt.
func (s *Symmetric) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < ivSize {
		return nil, fmt.Errorf("%w: input shorter than iv", ErrDecryption)
	}
	iv, body := blob[:ivSize], blob[ivSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not block aligned", ErrDecryption)
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(s.block, iv).CryptBlocks(plain, body)
	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return unpadded, nil
}

// EncryptToString is Encrypt followed by standard base64 encoding.
func (s *Symmetric) EncryptToString(plaintext []byte) (string, error) {
	blob, err := s.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptString decodes base64 then decrypts.
func (s *Symmetric) DecryptString(encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", ErrDecryption)
	}
	return s.Decrypt(blob)
}

// EncryptEmbedding serializes the vector as little-endian float32 and encrypts it.
func (s *Symmetric) EncryptEmbedding(vec []float32) (string, error) {
	return s.EncryptToString(EncodeEmbedding(vec))
}

// DecryptEmbedding is the inverse of EncryptEmbedding.
func (s *Symmetric) DecryptEmbedding(encoded string) ([]float32, error) {
	raw, err := s.DecryptString(encoded)
	if err != nil {
		return nil, err
	}
	return DecodeEmbedding(raw)
}

// EncodeEmbedding writes 4 bytes per element, IEEE-754 float32 little-endian.
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding parses the output of EncodeEmbedding.
func DecodeEmbedding(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: embedding payload length %d is not a multiple of 4", ErrDecryption, len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padded length", ErrDecryption)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}
	return data[:len(data)-n], nil
}
