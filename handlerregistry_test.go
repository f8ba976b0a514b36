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
	"crypto/x509"
	"testing"
)

// legacyEncryptDict builds the /Encrypt dictionary a reader would find for
// an R4 document with an explicit /CF entry naming an AESV2 filter.
func legacyEncryptDict(h *StandardHandler, cfName Name, cfm Name) Dict {
	return Dict{
		"Filter":          Name("Standard"),
		"V":               Integer(h.V),
		"R":               Integer(h.R),
		"Length":          Integer(h.KeyBytes * 8),
		"P":               Integer(h.P),
		"O":               NewString(h.O),
		"U":               NewString(h.U),
		"EncryptMetadata": Bool(h.EncryptMetadata),
		"StmF":            cfName,
		"StrF":            cfName,
		"CF": Dict{
			cfName: Dict{
				"CFM":       cfm,
				"AuthEvent": Name("DocOpen"),
				"Length":    Integer(16),
			},
		},
	}
}

// TestOpenSecurityHandlerStandard builds an R4/AESV2 handler, serializes it
// into an /Encrypt dictionary the way a file would store it, and checks
// that OpenSecurityHandler (§6.4) dispatches to /Standard, wires the /CF
// entry into an AES crypt filter, and that the filter round-trips (§8
// "Round-trip" property).
func TestOpenSecurityHandlerStandard(t *testing.T) {
	id0 := bytes.Repeat([]byte{0x03}, 16)
	built, err := NewStandardHandlerLegacy([]byte("abcd"), []byte("owner"), 4, 16, -44, id0, true)
	if err != nil {
		t.Fatalf("NewStandardHandlerLegacy: %v", err)
	}

	d := legacyEncryptDict(built, "StdCF", "AESV2")

	sh, err := OpenSecurityHandler(d, id0)
	if err != nil {
		t.Fatalf("OpenSecurityHandler: %v", err)
	}
	h, ok := sh.(*StandardHandler)
	if !ok {
		t.Fatalf("OpenSecurityHandler returned %T, want *StandardHandler", sh)
	}

	result, err := h.Authenticate([]byte("abcd"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if result != AuthUser {
		t.Fatalf("Authenticate = %v, want AuthUser", result)
	}

	cfg := h.CryptFilterConfigFor()
	if cfg.StmF != "StdCF" || cfg.StrF != "StdCF" {
		t.Fatalf("StmF/StrF = %q/%q, want StdCF/StdCF", cfg.StmF, cfg.StrF)
	}
	filter, err := cfg.StreamFilter()
	if err != nil {
		t.Fatalf("StreamFilter: %v", err)
	}
	if filter.Method() != CipherAESV2 {
		t.Fatalf("wired filter method = %v, want AESV2", filter.Method())
	}

	ref := Reference{Number: 3, Generation: 0}
	plain := []byte("round trip through the registry-wired crypt filter")
	ct, err := filter.Encrypt(ref, plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := filter.Decrypt(ref, ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plain) {
		t.Fatalf("round trip mismatch: got %q, want %q", pt, plain)
	}
}

// TestOpenSecurityHandlerImplicitRC4 checks the V<=2 path, where no /CF
// dictionary is present and an implicit RC4 filter is wired instead.
func TestOpenSecurityHandlerImplicitRC4(t *testing.T) {
	id0 := bytes.Repeat([]byte{0x04}, 16)
	built, err := NewStandardHandlerLegacy([]byte("abcd"), []byte("owner"), 3, 16, -44, id0, true)
	if err != nil {
		t.Fatalf("NewStandardHandlerLegacy: %v", err)
	}
	d := Dict{
		"Filter":          Name("Standard"),
		"V":               Integer(built.V),
		"R":               Integer(built.R),
		"Length":          Integer(built.KeyBytes * 8),
		"P":               Integer(built.P),
		"O":               NewString(built.O),
		"U":               NewString(built.U),
		"EncryptMetadata": Bool(built.EncryptMetadata),
	}

	sh, err := OpenSecurityHandler(d, id0)
	if err != nil {
		t.Fatalf("OpenSecurityHandler: %v", err)
	}
	h := sh.(*StandardHandler)
	if _, err := h.Authenticate([]byte("abcd")); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	cfg := h.CryptFilterConfigFor()
	filter, err := cfg.StreamFilter()
	if err != nil {
		t.Fatalf("StreamFilter: %v", err)
	}
	if filter.Method() != CipherRC4 {
		t.Fatalf("implicit filter method = %v, want RC4", filter.Method())
	}
}

// TestOpenSecurityHandlerSubFilterFallback checks that a /Filter with no
// registered handler still resolves via a matching /SubFilter (§6.4
// "fallback by /SubFilter").
func TestOpenSecurityHandlerSubFilterFallback(t *testing.T) {
	d := Dict{
		"Filter":    Name("Unknown.Vendor"),
		"SubFilter": Name("adbe.pkcs7.s4"),
		"V":         Integer(1),
	}
	sh, err := OpenSecurityHandler(d, nil)
	if err != nil {
		t.Fatalf("OpenSecurityHandler: %v", err)
	}
	if _, ok := sh.(*PubKeyHandler); !ok {
		t.Fatalf("OpenSecurityHandler returned %T, want *PubKeyHandler", sh)
	}
}

// TestOpenSecurityHandlerNoMatch checks that an unregistered /Filter with no
// generic /SubFilter is a fatal error.
func TestOpenSecurityHandlerNoMatch(t *testing.T) {
	d := Dict{"Filter": Name("Unknown.Vendor")}
	if _, err := OpenSecurityHandler(d, nil); err == nil {
		t.Fatalf("expected an error for an unregistered handler with no /SubFilter")
	} else if _, ok := err.(*UnsupportedError); !ok {
		t.Fatalf("expected *UnsupportedError, got %T: %v", err, err)
	}
}

// TestOpenPubKeyHandlerS5RoundTrip builds an s5 (/CF-based) public-key
// encryption dictionary by hand and checks that OpenPubKeyHandler wires up
// the default AESV3 filter and recovers the seed built by
// NewPubKeyHandler/AddRecipients, exercising the CMS recipient path end to
// end through the registry.
func TestOpenPubKeyHandlerS5RoundTrip(t *testing.T) {
	alice := newSelfSignedRecipient(t, "alice")

	built, err := NewPubKeyHandler(CipherAESV3, true)
	if err != nil {
		t.Fatalf("NewPubKeyHandler: %v", err)
	}
	if err := built.AddRecipients([]*x509.Certificate{alice.cert}, -44); err != nil {
		t.Fatalf("AddRecipients: %v", err)
	}

	cfDict, err := built.CF.AsDict()
	if err != nil {
		t.Fatalf("AsDict: %v", err)
	}
	d := Dict{
		"Filter":    Name("Adobe.PubSec"),
		"SubFilter": Name(built.SubFilter),
	}
	for k, v := range cfDict {
		d[k] = v
	}
	// Attach the recipient CMS blobs onto the single named crypt filter, the
	// way an s5 file stores them (§6.2 "recipient arrays inside each
	// crypt-filter entry").
	cf := d["CF"].(Dict)
	var recips Array
	for _, src := range built.defaultSources {
		for _, cms := range src.recipientCMS {
			recips = append(recips, NewString(cms))
		}
	}
	for name, entry := range cf {
		ed := entry.(Dict)
		ed["Recipients"] = recips
		cf[name] = ed
	}

	sh, err := OpenSecurityHandler(d, nil)
	if err != nil {
		t.Fatalf("OpenSecurityHandler: %v", err)
	}
	h, ok := sh.(*PubKeyHandler)
	if !ok {
		t.Fatalf("OpenSecurityHandler returned %T, want *PubKeyHandler", sh)
	}

	decrypter := NewEnvelopeKeyDecrypter(alice.cert, alice.key)
	result, err := h.Authenticate(decrypter)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if result != AuthUser {
		t.Fatalf("Authenticate = %v, want AuthUser", result)
	}

	cfg := h.CryptFilterConfigFor()
	filter, err := cfg.StreamFilter()
	if err != nil {
		t.Fatalf("StreamFilter: %v", err)
	}
	if filter.Method() != CipherAESV3 {
		t.Fatalf("wired filter method = %v, want AESV3", filter.Method())
	}
}
