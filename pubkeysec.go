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
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
)

// PubKeySubFilter names one of the three public-key SubFilter variants
// (§4.4).
type PubKeySubFilter Name

const (
	SubFilterS3 PubKeySubFilter = "adbe.pkcs7.s3"
	SubFilterS4 PubKeySubFilter = "adbe.pkcs7.s4"
	SubFilterS5 PubKeySubFilter = "adbe.pkcs7.s5"
)

// pubKeyFilterSource is the sharedKeySource backing one public-key crypt
// filter: it owns the per-filter seed and the recipient CMS blobs that
// protect it, and derives the shared encryption key from them once
// authentication succeeds (§4.2 "Public-key variant").
type pubKeyFilterSource struct {
	is256           bool
	keyBytes        int
	encryptMetadata bool

	seed         []byte
	recipientCMS [][]byte

	haveAuth       bool
	authFailedFlag bool
}

var _ sharedKeySource = (*pubKeyFilterSource)(nil)

func (s *pubKeyFilterSource) authFailed() bool {
	return s.haveAuth && s.authFailedFlag
}

func (s *pubKeyFilterSource) deriveSharedKey() ([]byte, error) {
	if !s.haveAuth || s.authFailedFlag {
		return nil, &AuthenticationError{}
	}

	var digest []byte
	if s.is256 {
		h := sha256.New()
		h.Write(s.seed)
		for _, cms := range s.recipientCMS {
			h.Write(cms)
		}
		if !s.encryptMetadata {
			h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
		}
		digest = h.Sum(nil)
	} else {
		h := sha1.New()
		h.Write(s.seed)
		for _, cms := range s.recipientCMS {
			h.Write(cms)
		}
		if !s.encryptMetadata {
			h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
		}
		digest = h.Sum(nil)
	}

	if s.keyBytes > len(digest) {
		return nil, &UnsupportedError{Feature: "public-key shared key longer than digest"}
	}
	return digest[:s.keyBytes], nil
}

// PubKeyHandler implements the /Adobe.PubSec security handler (§4.4): one
// or more crypt filters, each with its own seed and recipient CMS list, all
// authenticated together against a single decrypter.
type PubKeyHandler struct {
	SubFilter PubKeySubFilter
	CF        *CryptFilterConfig

	defaultSources []*pubKeyFilterSource
}

// NewPubKeyHandler builds a handler with a single crypt filter of the given
// method, used as both the default string and stream filter.
func NewPubKeyHandler(method CipherMethod, encryptMetadata bool) (*PubKeyHandler, error) {
	var source *pubKeyFilterSource
	var filter CryptFilter
	var subFilter PubKeySubFilter

	switch method {
	case CipherRC4:
		source = &pubKeyFilterSource{is256: false, keyBytes: 16, encryptMetadata: encryptMetadata}
		filter = NewRC4Filter(source, 16)
		subFilter = SubFilterS4
	case CipherAESV2:
		source = &pubKeyFilterSource{is256: false, keyBytes: 16, encryptMetadata: encryptMetadata}
		filter = NewAESFilter(source, 16, false)
		subFilter = SubFilterS5
	case CipherAESV3:
		source = &pubKeyFilterSource{is256: true, keyBytes: 32, encryptMetadata: encryptMetadata}
		filter = NewAESFilter(source, 32, true)
		subFilter = SubFilterS5
	default:
		return nil, &UnsupportedError{Feature: "public-key crypt filter method " + string(method)}
	}

	cfg := NewCryptFilterConfig()
	cfg.AddFilter("DefaultCryptFilter", filter)
	cfg.StmF = "DefaultCryptFilter"
	cfg.StrF = "DefaultCryptFilter"

	return &PubKeyHandler{
		SubFilter:      subFilter,
		CF:             cfg,
		defaultSources: []*pubKeyFilterSource{source},
	}, nil
}

// AddRecipients generates (if necessary) a fresh seed for every default
// crypt filter and adds a recipient CMS blob covering certs to each
// (§4.4 "Recipient CMS construction"). perms is embedded in the envelope
// content, since every filter constructed by NewPubKeyHandler is a default
// filter.
func (h *PubKeyHandler) AddRecipients(certs []*x509.Certificate, perms int32) error {
	for _, src := range h.defaultSources {
		if len(src.seed) == 0 {
			seed, err := randomBytes(20)
			if err != nil {
				return err
			}
			src.seed = seed
		}
		cms, err := ConstructRecipientCMS(certs, src.seed, perms, true)
		if err != nil {
			return err
		}
		src.recipientCMS = append(src.recipientCMS, cms)
	}
	return nil
}

// Authenticate attempts to recover every default filter's seed using
// decrypter (§4.4 "Authentication"). If any default filter's seed cannot be
// recovered, the whole handler reports Failed; there is no distinct Owner
// result for public-key handlers.
func (h *PubKeyHandler) Authenticate(decrypter EnvelopeKeyDecrypter) (AuthResult, error) {
	for _, src := range h.defaultSources {
		var seed []byte
		var lastErr error
		for _, cms := range src.recipientCMS {
			s, err := ReadSeedFromRecipientCMS(cms, decrypter)
			if err == nil {
				seed = s
				break
			}
			lastErr = err
		}
		if seed == nil {
			for _, s := range h.defaultSources {
				s.haveAuth = true
				s.authFailedFlag = true
			}
			if lastErr == nil {
				lastErr = &AuthenticationError{}
			}
			return AuthFailed, nil
		}
		src.seed = seed
		src.haveAuth = true
		src.authFailedFlag = false
	}
	return AuthUser, nil
}

// AsDict serializes the handler's encryption dictionary fields: /Filter,
// /SubFilter, plus the crypt-filter configuration's /CF, /StmF, /StrF and
// optional /EFF.
func (h *PubKeyHandler) AsDict() (Dict, error) {
	cfgDict, err := h.CF.AsDict()
	if err != nil {
		return nil, err
	}
	cfgDict["Filter"] = Name("Adobe.PubSec")
	cfgDict["SubFilter"] = Name(h.SubFilter)
	return cfgDict, nil
}
