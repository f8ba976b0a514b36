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
	"crypto"
	"crypto/x509"

	"github.com/hhrutter/pkcs7"
)

// EnvelopeKeyDecrypter supplies the certificate/private-key pair a
// recipient uses to recover a seed from a recipient CMS blob (§4.4
// "Recipient seed recovery"). Grounded in pyHanko's
// SimpleEnvelopeKeyDecrypter: the matching of issuer+serial against
// candidate RecipientInfos is delegated entirely to the CMS library, which
// returns an error when no RecipientInfo names this certificate.
type EnvelopeKeyDecrypter interface {
	Certificate() *x509.Certificate
	PrivateKey() crypto.PrivateKey
}

type simpleDecrypter struct {
	cert *x509.Certificate
	key  crypto.PrivateKey
}

// NewEnvelopeKeyDecrypter builds the simplest possible EnvelopeKeyDecrypter
// from a parsed certificate and its private key.
func NewEnvelopeKeyDecrypter(cert *x509.Certificate, key crypto.PrivateKey) EnvelopeKeyDecrypter {
	return &simpleDecrypter{cert: cert, key: key}
}

func (d *simpleDecrypter) Certificate() *x509.Certificate { return d.cert }
func (d *simpleDecrypter) PrivateKey() crypto.PrivateKey  { return d.key }

// constructEnvelopeContent builds the plaintext enveloped inside the CMS
// blob: the 20-byte seed, optionally followed by the little-endian
// permission bits. Only a default filter's CMS carries the permission
// suffix (§4.4).
func constructEnvelopeContent(seed []byte, perms int32, includePermissions bool) []byte {
	if !includePermissions {
		out := make([]byte, len(seed))
		copy(out, seed)
		return out
	}
	out := make([]byte, len(seed)+4)
	copy(out, seed)
	out[len(seed)+0] = byte(perms)
	out[len(seed)+1] = byte(perms >> 8)
	out[len(seed)+2] = byte(perms >> 16)
	out[len(seed)+3] = byte(perms >> 24)
	return out
}

// ConstructRecipientCMS builds the DER-encoded CMS EnvelopedData/ContentInfo
// blob shared by one crypt filter's recipient list (§4.4 "Recipient CMS
// construction"): one symmetric envelope key, individually RSA-PKCS1-v1.5
// wrapped per recipient certificate. Non-RSA recipient keys are rejected by
// the underlying CMS library.
func ConstructRecipientCMS(certs []*x509.Certificate, seed []byte, perms int32, includePermissions bool) ([]byte, error) {
	if len(seed) != 20 {
		return nil, &InvalidArgumentError{Msg: "seed must be 20 bytes"}
	}
	if len(certs) == 0 {
		return nil, &InvalidArgumentError{Msg: "no recipients given"}
	}
	content := constructEnvelopeContent(seed, perms, includePermissions)
	der, err := pkcs7.Encrypt(content, certs)
	if err != nil {
		return nil, &UnsupportedError{Feature: "CMS recipient construction: " + err.Error()}
	}
	return der, nil
}

// ReadSeedFromRecipientCMS recovers the shared 20-byte seed from a recipient
// CMS blob, using decrypter to unwrap whichever RecipientInfo names its
// certificate (§4.4 "Recipient seed recovery").
func ReadSeedFromRecipientCMS(der []byte, decrypter EnvelopeKeyDecrypter) ([]byte, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, &ReadError{Msg: "parsing recipient CMS: " + err.Error()}
	}
	content, err := p7.Decrypt(decrypter.Certificate(), decrypter.PrivateKey())
	if err != nil {
		return nil, &AuthenticationError{}
	}
	if len(content) < 20 {
		return nil, &ReadError{Msg: "recipient CMS content shorter than the seed"}
	}
	return content[:20], nil
}
