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
	"errors"
	"fmt"
)

// ReadError indicates that the PDF file could not be parsed: malformed or
// truncated structures, or xref inconsistencies such as orphaned
// higher-generation objects or reused freed generations.
type ReadError struct {
	Msg string
	Pos int64
	Err error
}

func (e *ReadError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Pos > 0 {
		return fmt.Sprintf("malformed PDF file: %s (at byte %d)", msg, e.Pos)
	}
	return "malformed PDF file: " + msg
}

func (e *ReadError) Unwrap() error { return e.Err }

// AuthenticationError indicates that authentication failed because the
// supplied password or recipient credential did not match, or that an
// object fetch was attempted after authentication had already failed.
type AuthenticationError struct {
	ID []byte
}

func (e *AuthenticationError) Error() string {
	if e.ID == nil {
		return "authentication failed"
	}
	return fmt.Sprintf("authentication failed for document ID %x", e.ID)
}

// TamperError indicates that an R6 /Perms decryption produced plaintext
// inconsistent with the stored permission bits -- the document has been
// altered, or the key used to decrypt it is wrong in a way that slipped past
// the ordinary authentication check.
type TamperError struct {
	Reason string
}

func (e *TamperError) Error() string {
	return "tampered encryption parameters: " + e.Reason
}

// UnsupportedError indicates an unknown cipher, key length, or algorithm --
// e.g. a non-RSA recipient or an unrecognized crypt filter method.
type UnsupportedError struct {
	Feature string
}

func (e *UnsupportedError) Error() string {
	return "unsupported: " + e.Feature
}

// InvalidArgumentError indicates build-time misuse of the API: a bad key
// length, or recipients added after the shared key has already been
// derived.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Msg
}

var (
	errNoPassword  = errors.New("no password supplied")
	errNotRevealed = errors.New("file encryption key is not available before authentication")
)
