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
	"crypto/rc4"
	"encoding/hex"
	"fmt"
	"testing"
)

// buildMinimalPDF assembles a tiny, unencrypted, single-revision PDF file
// with a classic xref table: a Catalog pointing at a one-page Pages tree.
// Byte offsets are tracked as the buffer is built, rather than hardcoded,
// so the fixture stays correct however the surrounding text is edited.
func buildMinimalPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int64, 4)

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = int64(buf.Len())
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")

	xrefOffset := int64(buf.Len())
	buf.WriteString("xref\n0 4\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&buf, "%010d %05d n \n", offsets[i], 0)
	}
	buf.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	fmt.Fprintf(&buf, "%d\n", xrefOffset)
	buf.WriteString("%%EOF")

	return buf.Bytes()
}

func TestReaderParsesMinimalFile(t *testing.T) {
	data := buildMinimalPDF()

	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	if r.cache.TotalRevisions() != 1 {
		t.Fatalf("TotalRevisions() = %d, want 1", r.cache.TotalRevisions())
	}

	rootRef, ok := r.Trailer()["Root"].(Reference)
	if !ok {
		t.Fatalf("/Root is not a reference: %#v", r.Trailer()["Root"])
	}
	if rootRef != (Reference{Number: 1, Generation: 0}) {
		t.Fatalf("/Root = %v, want (1 0 R)", rootRef)
	}

	catalogObj, err := r.Get(rootRef)
	if err != nil {
		t.Fatalf("Get(Root): %v", err)
	}
	catalog, ok := catalogObj.(Dict)
	if !ok {
		t.Fatalf("catalog is not a dictionary: %#v", catalogObj)
	}
	if catalog["Type"] != Name("Catalog") {
		t.Fatalf("/Type = %v, want /Catalog", catalog["Type"])
	}

	pagesRef, ok := catalog["Pages"].(Reference)
	if !ok {
		t.Fatalf("/Pages is not a reference: %#v", catalog["Pages"])
	}
	pagesObj, err := r.Get(pagesRef)
	if err != nil {
		t.Fatalf("Get(Pages): %v", err)
	}
	pages, ok := pagesObj.(Dict)
	if !ok {
		t.Fatalf("pages is not a dictionary: %#v", pagesObj)
	}
	kids, ok := pages["Kids"].(Array)
	if !ok || len(kids) != 1 {
		t.Fatalf("/Kids = %#v, want a one-element array", pages["Kids"])
	}
	if kids[0] != (Reference{Number: 3, Generation: 0}) {
		t.Fatalf("/Kids[0] = %v, want (3 0 R)", kids[0])
	}
}

func TestFindStartXRefScansTrailingBytes(t *testing.T) {
	data := buildMinimalPDF()
	r := &Reader{data: data}
	off, err := r.findStartXRef()
	if err != nil {
		t.Fatal(err)
	}
	if off < 0 || off >= int64(len(data)) {
		t.Fatalf("startxref offset %d out of range", off)
	}
	if string(data[off:off+4]) != "xref" {
		t.Fatalf("byte at startxref offset is %q, want to begin with \"xref\"", data[off:off+4])
	}
}

func TestReadObjectScalarTypes(t *testing.T) {
	r := &Reader{data: []byte("/Name1 123 -45 3.14 true false null (lit) <48656C6C6F>")}
	pos := int64(0)

	cases := []Object{
		Name("Name1"),
		Integer(123),
		Integer(-45),
		Real(3.14),
		Bool(true),
		Bool(false),
		Null{},
	}
	for _, want := range cases {
		obj, next, err := r.readObject(pos)
		if err != nil {
			t.Fatalf("readObject at %d: %v", pos, err)
		}
		if obj != want {
			t.Fatalf("readObject() = %#v, want %#v", obj, want)
		}
		pos = next
	}

	lit, next, err := r.readObject(pos)
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := lit.(String); !ok || string(s.Bytes()) != "lit" {
		t.Fatalf("literal string = %#v, want \"lit\"", lit)
	}
	pos = next

	hexObj, _, err := r.readObject(pos)
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := hexObj.(String); !ok || string(s.Bytes()) != "Hello" {
		t.Fatalf("hex string = %#v, want \"Hello\"", hexObj)
	}
}

// TestReaderEncryptedRoundTripThroughRegistry builds an R3/RC4-encrypted
// single-revision PDF by hand (object 4 holds a string pre-encrypted under
// the file key an R3 handler would derive), then exercises the full chain a
// real caller would: parse the file, fetch the raw /Encrypt dictionary,
// build a handler through OpenSecurityHandler (§6.4), authenticate, install
// it, and confirm Get transparently decrypts object 4's string.
func TestReaderEncryptedRoundTripThroughRegistry(t *testing.T) {
	id0 := bytes.Repeat([]byte{0x09}, 16)
	built, err := NewStandardHandlerLegacy([]byte("secret"), nil, 3, 16, -44, id0, true)
	if err != nil {
		t.Fatalf("NewStandardHandlerLegacy: %v", err)
	}

	strRef := Reference{Number: 4, Generation: 0}
	objKey := objectKeyLegacy(built.fileKey, strRef, false)
	c, err := rc4.NewCipher(objKey)
	if err != nil {
		t.Fatal(err)
	}
	plain := []byte("secret message")
	ciphertext := make([]byte, len(plain))
	c.XORKeyStream(ciphertext, plain)

	hexLit := func(b []byte) string { return "<" + hex.EncodeToString(b) + ">" }

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int64, 6)

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = int64(buf.Len())
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")

	offsets[4] = int64(buf.Len())
	fmt.Fprintf(&buf, "4 0 obj\n%s\nendobj\n", hexLit(ciphertext))

	offsets[5] = int64(buf.Len())
	fmt.Fprintf(&buf,
		"5 0 obj\n<< /Filter /Standard /V %d /R %d /Length %d /P %d /O %s /U %s /EncryptMetadata true >>\nendobj\n",
		built.V, built.R, built.KeyBytes*8, built.P, hexLit(built.O), hexLit(built.U))

	xrefOffset := int64(buf.Len())
	buf.WriteString("xref\n0 6\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&buf, "%010d %05d n \n", offsets[i], 0)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R /Encrypt 5 0 R /ID [%s %s] >>\n", hexLit(id0), hexLit(id0))
	buf.WriteString("startxref\n")
	fmt.Fprintf(&buf, "%d\n", xrefOffset)
	buf.WriteString("%%EOF")

	r, err := NewReader(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	if !r.HasEncryptDict() {
		t.Fatalf("HasEncryptDict() = false, want true")
	}
	encDict, err := r.EncryptDict()
	if err != nil {
		t.Fatalf("EncryptDict: %v", err)
	}

	sh, err := OpenSecurityHandler(encDict, r.ID0())
	if err != nil {
		t.Fatalf("OpenSecurityHandler: %v", err)
	}
	h, ok := sh.(*StandardHandler)
	if !ok {
		t.Fatalf("OpenSecurityHandler returned %T, want *StandardHandler", sh)
	}
	result, err := h.Authenticate([]byte("secret"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if result != AuthUser {
		t.Fatalf("Authenticate = %v, want AuthUser", result)
	}

	r.SetSecurityHandler(h)

	obj, err := r.Get(strRef)
	if err != nil {
		t.Fatalf("Get(4 0 R): %v", err)
	}
	s, ok := obj.(String)
	if !ok {
		t.Fatalf("object 4 is not a string: %#v", obj)
	}
	if string(s.Bytes()) != string(plain) {
		t.Fatalf("decrypted string = %q, want %q", s.Bytes(), plain)
	}
}
