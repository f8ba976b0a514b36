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

import "fmt"

// Object is the interface implemented by every PDF value that can occur as
// the content of an indirect object, an array element, or a dictionary
// value.
type Object interface {
	isObject()
}

// Name represents a PDF name object, without the leading "/".
type Name string

func (Name) isObject() {}

// Integer represents a PDF integer.
type Integer int64

func (Integer) isObject() {}

// Real represents a PDF real number.
type Real float64

func (Real) isObject() {}

// Bool represents a PDF boolean.
type Bool bool

func (Bool) isObject() {}

// Null represents the PDF null object.
type Null struct{}

func (Null) isObject() {}

// String represents a PDF string object (either a literal "(...)" string or
// a hex "<...>" string -- the distinction does not survive parsing).
//
// A String holds a single byte slice: the content after literal-string
// escapes or hex digits have been decoded. Bytes and RawBytes both return
// this slice. For a string read from an encrypted file it holds the
// ciphertext until a crypt filter replaces it via WithBytes.
type String struct {
	raw []byte
}

func NewString(raw []byte) String {
	return String{raw: raw}
}

func (String) isObject() {}

// Bytes returns the byte content of the string.
func (s String) Bytes() []byte {
	return s.raw
}

// RawBytes returns the same stored byte content as Bytes; a crypt filter
// reads it as its input.
func (s String) RawBytes() []byte {
	return s.raw
}

// WithBytes returns a copy of s with its content bytes replaced -- used by
// crypt filters to produce the decrypted/encrypted form of a string.
func (s String) WithBytes(b []byte) String {
	return String{raw: b}
}

// Array represents a PDF array object.
type Array []Object

func (Array) isObject() {}

// Dict represents a PDF dictionary object.
type Dict map[Name]Object

func (Dict) isObject() {}

// RawGet looks up key without triggering decryption of the returned value.
// This is used by code that needs access to encryption-related dictionary
// entries (for example the /Encrypt dictionary itself, or entries of a crypt
// filter dictionary) which are never themselves encrypted.
func (d Dict) RawGet(key Name) (Object, bool) {
	v, ok := d[key]
	return v, ok
}

// Reference is an indirect reference to an object, identified by its object
// number and generation number.
//
// Equality of references is structural: two References with the same Number
// and Generation refer to the same slot.
type Reference struct {
	Number     uint32
	Generation uint16
}

func (Reference) isObject() {}

func (r Reference) String() string {
	return fmt.Sprintf("%d %d R", r.Number, r.Generation)
}

// NewReference constructs a Reference, validating the bounds given in the
// data model (id >= 1, 0 <= generation <= 65535).
func NewReference(id uint32, generation uint16) (Reference, error) {
	if id == 0 {
		return Reference{}, &InvalidArgumentError{Msg: "object number must be >= 1"}
	}
	return Reference{Number: id, Generation: generation}, nil
}

// Stream represents a PDF stream object: a dictionary together with the
// stream's data.
type Stream struct {
	Dict Dict

	// getData decodes the stream's filters and returns the logical content.
	getData func() ([]byte, error)

	// encoded is the raw, still-encoded (and, for an encrypted document,
	// still-encrypted) stream content.
	encoded []byte
}

func (*Stream) isObject() {}

// NewStream wraps raw, encoded stream bytes together with a lazy decoder.
func NewStream(dict Dict, encoded []byte, decode func([]byte) ([]byte, error)) *Stream {
	s := &Stream{Dict: dict, encoded: encoded}
	s.getData = func() ([]byte, error) {
		if decode == nil {
			return encoded, nil
		}
		return decode(encoded)
	}
	return s
}

// Data returns the decompressed, decrypted stream content.
func (s *Stream) Data() ([]byte, error) {
	return s.getData()
}

// EncodedData returns the raw stream bytes, before any filter decoding.
func (s *Stream) EncodedData() []byte {
	return s.encoded
}

// Getter is the narrow interface the core depends on to resolve indirect
// objects. It is the only way the xref/crypto core talks to "the rest of the
// PDF object model".
type Getter interface {
	// Get reads and (if the document is encrypted and authenticated)
	// decrypts the object referred to by ref.
	Get(ref Reference) (Object, error)

	// GetAt behaves like Get, but clamps the lookup to a specific historical
	// revision (oldest = 0).
	GetAt(ref Reference, revision int) (Object, error)
}

// Resolve follows a chain of indirect references until a direct object is
// reached. If obj is not a Reference, it is returned unchanged.
func Resolve(g Getter, obj Object) (Object, error) {
	const maxDepth = 32
	depth := 0
	for {
		ref, ok := obj.(Reference)
		if !ok {
			return obj, nil
		}
		depth++
		if depth > maxDepth {
			return nil, &ReadError{Msg: "too many levels of indirection resolving " + ref.String()}
		}
		next, err := g.Get(ref)
		if err != nil {
			return nil, err
		}
		obj = next
	}
}

// readObject is the primitive that a tokenizer-level parser must provide:
// reading one complete object (direct or the header of an indirect one)
// starting at the current stream position. The crypto/xref core treats this
// as an external collaborator; see Reader.readObject for this repository's
// implementation, grounded in the teacher's expect* family of parsers.
type objectReader interface {
	readObject() (Object, error)
}
