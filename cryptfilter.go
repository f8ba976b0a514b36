// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2021  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pdf

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rc4"
)

// CipherMethod names one of the four crypt-filter methods the standard
// defines (ISO 32000-2, Table 25, /CFM).
type CipherMethod Name

const (
	CipherNone  CipherMethod = "None"
	CipherRC4   CipherMethod = "V2"
	CipherAESV2 CipherMethod = "AESV2"
	CipherAESV3 CipherMethod = "AESV3"
)

// sharedKeySource supplies the shared (file- or seed-derived) encryption
// key that a crypt filter's per-object derivation is built on top of. The
// standard handler and the public-key handler each implement it
// differently (§4.2 "Standard variant" / "Public-key variant").
type sharedKeySource interface {
	// authFailed reports whether authentication has already failed; if so,
	// any key derivation must fail immediately rather than hand back a key
	// derived from garbage state.
	authFailed() bool

	// deriveSharedKey computes the shared encryption key. Called at most
	// once per CryptFilter; the result is cached by the filter.
	deriveSharedKey() ([]byte, error)
}

// CryptFilter is a per-object encryption/decryption strategy. It is the
// unit the rest of the engine routes individual string and stream payloads
// through (§4.2).
type CryptFilter interface {
	// Encrypt transforms plaintext for object ref into ciphertext.
	Encrypt(ref Reference, plaintext []byte) ([]byte, error)

	// Decrypt transforms ciphertext for object ref back into plaintext.
	Decrypt(ref Reference, ciphertext []byte) ([]byte, error)

	// Method reports this filter's /CFM value.
	Method() CipherMethod

	// KeyBytes reports the per-object key length in bytes (0 for Identity).
	KeyBytes() int
}

// identityFilter is the unique, stateless no-op filter. Per §3 ("Crypt
// filter configuration"), /Identity always resolves to this shared
// instance and it is never present in a CryptFilterConfig's name map.
type identityFilter struct{}

// IdentityFilter is the singleton Identity crypt filter.
var IdentityFilter CryptFilter = identityFilter{}

func (identityFilter) Encrypt(ref Reference, plaintext []byte) ([]byte, error) { return plaintext, nil }
func (identityFilter) Decrypt(ref Reference, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}
func (identityFilter) Method() CipherMethod { return CipherNone }
func (identityFilter) KeyBytes() int        { return 0 }

// baseFilter holds the state shared by the RC4 and AES filter families: a
// lazily-materialized shared key (derived at most once, §5 "Lazy
// shared_key") and the key's byte length. Whether the shared key is used
// directly for AES-256 objects is recorded by AESFilter.is256.
type baseFilter struct {
	source   sharedKeySource
	keyBytes int

	sharedKeyCached bool
	sharedKey       []byte
}

func (f *baseFilter) shared() ([]byte, error) {
	if f.source.authFailed() {
		return nil, &AuthenticationError{}
	}
	if !f.sharedKeyCached {
		key, err := f.source.deriveSharedKey()
		if err != nil {
			return nil, err
		}
		f.sharedKey = key
		f.sharedKeyCached = true
	}
	return f.sharedKey, nil
}

// RC4Filter implements the /V2 crypt filter method.
type RC4Filter struct {
	baseFilter
}

// NewRC4Filter constructs an RC4 crypt filter backed by source, with
// per-object keys of the given length.
func NewRC4Filter(source sharedKeySource, keyBytes int) *RC4Filter {
	return &RC4Filter{baseFilter{source: source, keyBytes: keyBytes}}
}

func (f *RC4Filter) Method() CipherMethod { return CipherRC4 }
func (f *RC4Filter) KeyBytes() int        { return f.keyBytes }

func (f *RC4Filter) objectKey(ref Reference) ([]byte, error) {
	shared, err := f.shared()
	if err != nil {
		return nil, err
	}
	return objectKeyLegacy(shared, ref, false), nil
}

func (f *RC4Filter) Encrypt(ref Reference, plaintext []byte) ([]byte, error) {
	key, err := f.objectKey(ref)
	if err != nil {
		return nil, err
	}
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plaintext))
	c.XORKeyStream(out, plaintext)
	return out, nil
}

func (f *RC4Filter) Decrypt(ref Reference, ciphertext []byte) ([]byte, error) {
	// RC4 is a symmetric stream cipher: decryption is the same operation.
	return f.Encrypt(ref, ciphertext)
}

// AESFilter implements the /AESV2 (128-bit) and /AESV3 (256-bit) crypt
// filter methods.
type AESFilter struct {
	baseFilter
	is256 bool
}

// NewAESFilter constructs an AES crypt filter. is256 selects /AESV3 (shared
// key used directly, no per-object re-derivation) over /AESV2 (legacy
// per-object derivation with the AES salt).
func NewAESFilter(source sharedKeySource, keyBytes int, is256 bool) *AESFilter {
	return &AESFilter{baseFilter{source: source, keyBytes: keyBytes}, is256}
}

func (f *AESFilter) Method() CipherMethod {
	if f.is256 {
		return CipherAESV3
	}
	return CipherAESV2
}
func (f *AESFilter) KeyBytes() int { return f.keyBytes }

func (f *AESFilter) objectKey(ref Reference) ([]byte, error) {
	shared, err := f.shared()
	if err != nil {
		return nil, err
	}
	if f.is256 {
		return shared, nil
	}
	return objectKeyLegacy(shared, ref, true), nil
}

func (f *AESFilter) Encrypt(ref Reference, plaintext []byte) ([]byte, error) {
	key, err := f.objectKey(ref)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	out := make([]byte, len(iv)+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(iv):], padded)
	return out, nil
}

func (f *AESFilter) Decrypt(ref Reference, ciphertext []byte) ([]byte, error) {
	key, err := f.objectKey(ref)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(ciphertext) < bs || (len(ciphertext)-bs)%bs != 0 {
		return nil, &ReadError{Msg: "AES ciphertext has invalid length"}
	}
	iv := ciphertext[:bs]
	body := ciphertext[bs:]
	if len(body) == 0 {
		return nil, nil
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &ReadError{Msg: "cannot unpad empty data"}
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > len(data) {
		return nil, &ReadError{Msg: "invalid PKCS#7 padding"}
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, &ReadError{Msg: "invalid PKCS#7 padding"}
		}
	}
	return data[:len(data)-pad], nil
}

// CryptFilterConfig is the mapping from crypt-filter name to filter,
// together with the three default-name selectors (§3 "Crypt filter
// configuration").
type CryptFilterConfig struct {
	filters map[Name]CryptFilter

	StmF Name
	StrF Name
	EFF  Name
}

// NewCryptFilterConfig creates an empty configuration, defaulting all three
// selectors to /Identity.
func NewCryptFilterConfig() *CryptFilterConfig {
	return &CryptFilterConfig{
		filters: make(map[Name]CryptFilter),
		StmF:    "Identity",
		StrF:    "Identity",
		EFF:     "Identity",
	}
}

// AddFilter registers a non-identity crypt filter under name.
func (c *CryptFilterConfig) AddFilter(name Name, f CryptFilter) {
	if name == "Identity" {
		return
	}
	c.filters[name] = f
}

// Lookup resolves a crypt-filter name, short-circuiting /Identity.
func (c *CryptFilterConfig) Lookup(name Name) (CryptFilter, error) {
	if name == "Identity" || name == "" {
		return IdentityFilter, nil
	}
	f, ok := c.filters[name]
	if !ok {
		return nil, &UnsupportedError{Feature: "crypt filter " + string(name)}
	}
	return f, nil
}

// StreamFilter resolves the configuration's default stream filter.
func (c *CryptFilterConfig) StreamFilter() (CryptFilter, error) { return c.Lookup(c.StmF) }

// StringFilter resolves the configuration's default string filter.
func (c *CryptFilterConfig) StringFilter() (CryptFilter, error) { return c.Lookup(c.StrF) }

// AsDict serializes the configuration to /StmF, /StrF, optional /EFF and a
// /CF dictionary of all non-identity filters.
func (c *CryptFilterConfig) AsDict() (Dict, error) {
	d := Dict{
		"StmF": c.StmF,
		"StrF": c.StrF,
	}
	if c.EFF != "" && c.EFF != "Identity" {
		d["EFF"] = c.EFF
	}
	cf := Dict{}
	for name, f := range c.filters {
		entry, err := cryptFilterDict(f)
		if err != nil {
			return nil, err
		}
		cf[name] = entry
	}
	d["CF"] = cf
	return d, nil
}

// cryptFilterDict serializes a single crypt filter's dictionary entry. The
// Identity filter has no dictionary representation: its serialization is a
// hard error, since it is never stored under a name (§9 "Singleton Identity
// filter").
func cryptFilterDict(f CryptFilter) (Dict, error) {
	if _, ok := f.(identityFilter); ok {
		return nil, &InvalidArgumentError{Msg: "the Identity crypt filter cannot be serialized"}
	}
	d := Dict{
		"CFM":       Name(f.Method()),
		"AuthEvent": Name("DocOpen"),
	}
	switch v := f.(type) {
	case *RC4Filter:
		d["Length"] = Integer(v.keyBytes)
	case *AESFilter:
		d["Length"] = Integer(v.keyBytes)
	}
	return d, nil
}
