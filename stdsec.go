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

import "crypto/rand"

// AuthResult classifies the outcome of a password-authentication attempt.
type AuthResult int

const (
	AuthFailed AuthResult = iota
	AuthUser
	AuthOwner
)

// StandardHandler implements the /Standard security handler (§4.3): R2-R4
// legacy RC4/AES key derivation and R6 AES-256 derivation, sharing one
// authentication state machine.
//
// Per §3 ("Security handler state"), the fields above the blank line are
// immutable configuration; fileKey and authFailedFlag are the transient
// fields. The password-based constructors set fileKey directly; otherwise
// both are set by Authenticate, and each Authenticate call overwrites them.
type StandardHandler struct {
	V               int
	R               int
	KeyBytes        int
	P               int32
	ID0             []byte
	O, U            []byte
	OE, UE          []byte // R6 only
	Perms           []byte // R6 only
	EncryptMetadata bool

	haveAuth       bool
	authFailedFlag bool
	authResult     AuthResult
	fileKey        []byte

	activeCF *CryptFilterConfig
}

var _ sharedKeySource = (*StandardHandler)(nil)

// NewStandardHandlerLegacy builds an R2-R4 handler from a user and owner
// password, computing /O, the file encryption key, and /U (§4.3
// "Construction from passwords (legacy path, R2-R4)"). An empty ownerPw
// defaults to userPw.
func NewStandardHandlerLegacy(userPw, ownerPw []byte, r int, keyBytes int, p int32, id0 []byte, encryptMetadata bool) (*StandardHandler, error) {
	if len(ownerPw) == 0 {
		ownerPw = userPw
	}
	paddedUser := padPasswd(userPw)
	paddedOwner := padPasswd(ownerPw)

	o, err := computeO(paddedOwner, paddedUser, r, keyBytes)
	if err != nil {
		return nil, err
	}

	fileKey := computeFileKey(paddedUser, o, p, id0, r, keyBytes, encryptMetadata)

	u, err := computeU(fileKey, r, id0)
	if err != nil {
		return nil, err
	}

	v := r
	if r == 2 {
		v = 1
	} else if r == 3 {
		v = 2
	} else {
		v = 4
	}

	return &StandardHandler{
		V: v, R: r, KeyBytes: keyBytes, P: p, ID0: id0,
		O: o, U: u, EncryptMetadata: encryptMetadata,
		haveAuth: true, authResult: AuthOwner, fileKey: fileKey,
	}, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewStandardHandlerR6 builds an R6 (AES-256) handler from a user and owner
// password (§4.3 "Construction from passwords (R6)"). An empty ownerPw
// defaults to userPw.
func NewStandardHandlerR6(userPw, ownerPw []byte, p int32, encryptMetadata bool) (*StandardHandler, error) {
	if len(ownerPw) == 0 {
		ownerPw = userPw
	}
	userPw = truncatePasswdBytes(userPw)
	ownerPw = truncatePasswdBytes(ownerPw)

	fileKey, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	uValSalt, err := randomBytes(8)
	if err != nil {
		return nil, err
	}
	uKeySalt, err := randomBytes(8)
	if err != nil {
		return nil, err
	}
	u, ue, err := computeUAndUE(userPw, fileKey, uValSalt, uKeySalt)
	if err != nil {
		return nil, err
	}

	oValSalt, err := randomBytes(8)
	if err != nil {
		return nil, err
	}
	oKeySalt, err := randomBytes(8)
	if err != nil {
		return nil, err
	}
	o, oe, err := computeOAndOE(ownerPw, fileKey, oValSalt, oKeySalt, u)
	if err != nil {
		return nil, err
	}

	extra, err := randomBytes(4)
	if err != nil {
		return nil, err
	}
	perms, err := computePerms(fileKey, p, encryptMetadata, extra)
	if err != nil {
		return nil, err
	}

	return &StandardHandler{
		V: 5, R: 6, KeyBytes: 32, P: p,
		O: o, U: u, OE: oe, UE: ue, Perms: perms,
		EncryptMetadata: encryptMetadata,
		haveAuth:        true, authResult: AuthOwner, fileKey: fileKey,
	}, nil
}

// Authenticate attempts to recover the file encryption key from pw,
// following §4.3 "Authentication". It may be called only once per handler
// (authentication is not re-entrant, §5).
func (h *StandardHandler) Authenticate(pw []byte) (AuthResult, error) {
	if h.R >= 5 {
		return h.authenticateR6(pw)
	}
	return h.authenticateLegacy(pw)
}

func (h *StandardHandler) authenticateLegacy(pw []byte) (AuthResult, error) {
	padded := padPasswd(pw)

	fileKey := computeFileKey(padded, h.O, h.P, h.ID0, h.R, h.KeyBytes, h.EncryptMetadata)
	u, err := computeU(fileKey, h.R, h.ID0)
	if err != nil {
		return AuthFailed, err
	}
	if checkU(u, h.U, h.R) {
		h.latch(AuthUser, fileKey)
		return AuthUser, nil
	}

	ownerKey := ownerRC4Key(padded, h.R, h.KeyBytes)
	candidateUserPw, err := decryptO(h.O, h.R, ownerKey)
	if err != nil {
		return AuthFailed, err
	}
	fileKey2 := computeFileKey(candidateUserPw, h.O, h.P, h.ID0, h.R, h.KeyBytes, h.EncryptMetadata)
	u2, err := computeU(fileKey2, h.R, h.ID0)
	if err != nil {
		return AuthFailed, err
	}
	if checkU(u2, h.U, h.R) {
		h.latch(AuthOwner, fileKey2)
		return AuthOwner, nil
	}

	h.latch(AuthFailed, nil)
	return AuthFailed, nil
}

func (h *StandardHandler) authenticateR6(pw []byte) (AuthResult, error) {
	pw = truncatePasswdBytes(pw)

	if len(h.O) >= 48 {
		oValSalt := h.O[32:40]
		oKeySalt := h.O[40:48]
		if checkR6(hashR6Owner(pw, oValSalt, h.U), h.O) {
			interKey := hashR6Owner(pw, oKeySalt, h.U)
			fileKey, err := recoverFileKeyR6(interKey, h.OE)
			if err != nil {
				return AuthFailed, err
			}
			if err := checkPerms(fileKey, h.Perms, h.P, h.EncryptMetadata); err != nil {
				return AuthFailed, err
			}
			h.latch(AuthOwner, fileKey)
			return AuthOwner, nil
		}
	}

	if len(h.U) >= 48 {
		uValSalt := h.U[32:40]
		uKeySalt := h.U[40:48]
		if checkR6(hashR6User(pw, uValSalt), h.U) {
			interKey := hashR6User(pw, uKeySalt)
			fileKey, err := recoverFileKeyR6(interKey, h.UE)
			if err != nil {
				return AuthFailed, err
			}
			if err := checkPerms(fileKey, h.Perms, h.P, h.EncryptMetadata); err != nil {
				return AuthFailed, err
			}
			h.latch(AuthUser, fileKey)
			return AuthUser, nil
		}
	}

	h.latch(AuthFailed, nil)
	return AuthFailed, nil
}

func (h *StandardHandler) latch(result AuthResult, fileKey []byte) {
	h.haveAuth = true
	h.authResult = result
	h.authFailedFlag = result == AuthFailed
	h.fileKey = fileKey
}

// Result reports the outcome of the most recent Authenticate call.
func (h *StandardHandler) Result() AuthResult { return h.authResult }

func (h *StandardHandler) authFailed() bool {
	return h.haveAuth && h.authFailedFlag
}

func (h *StandardHandler) deriveSharedKey() ([]byte, error) {
	if !h.haveAuth {
		return nil, &AuthenticationError{}
	}
	if h.authFailedFlag {
		return nil, &AuthenticationError{}
	}
	return h.fileKey, nil
}

// NewCryptFilterConfig builds the crypt-filter configuration for this
// handler: an RC4 or AES filter (selected by method) shared between the
// string and stream selectors, both backed by this handler's shared key.
func (h *StandardHandler) NewCryptFilterConfig(method CipherMethod) (*CryptFilterConfig, error) {
	var f CryptFilter
	switch method {
	case CipherRC4:
		f = NewRC4Filter(h, h.KeyBytes)
	case CipherAESV2:
		f = NewAESFilter(h, 16, false)
	case CipherAESV3:
		f = NewAESFilter(h, 32, true)
	default:
		return nil, &UnsupportedError{Feature: "crypt filter method " + string(method)}
	}
	cfg := NewCryptFilterConfig()
	cfg.AddFilter("StdCF", f)
	cfg.StmF = "StdCF"
	cfg.StrF = "StdCF"
	h.activeCF = cfg
	return cfg, nil
}

// OpenStandardHandler parses a /Standard encryption dictionary (§6.2) into
// a StandardHandler ready for Authenticate. id0 is the first element of the
// document's /ID array.
func OpenStandardHandler(d Dict, id0 []byte) (*StandardHandler, error) {
	v, err := dictInt(d, "V", 0)
	if err != nil {
		return nil, err
	}
	r, err := dictInt(d, "R", 0)
	if err != nil {
		return nil, err
	}
	p, err := dictInt(d, "P", 0)
	if err != nil {
		return nil, err
	}

	keyBits := 40
	if n, ok, err := dictIntOpt(d, "Length"); err != nil {
		return nil, err
	} else if ok {
		keyBits = n
	}

	o, err := dictString(d, "O")
	if err != nil {
		return nil, err
	}
	u, err := dictString(d, "U")
	if err != nil {
		return nil, err
	}

	encryptMetadata := true
	if bv, ok := d["EncryptMetadata"]; ok {
		if b, ok := bv.(Bool); ok {
			encryptMetadata = bool(b)
		}
	}

	h := &StandardHandler{
		V: int(v), R: int(r), KeyBytes: keyBits / 8, P: int32(p),
		ID0: id0, O: o, U: u, EncryptMetadata: encryptMetadata,
	}

	if h.R >= 5 {
		oe, err := dictString(d, "OE")
		if err != nil {
			return nil, err
		}
		ue, err := dictString(d, "UE")
		if err != nil {
			return nil, err
		}
		perms, err := dictString(d, "Perms")
		if err != nil {
			return nil, err
		}
		h.OE, h.UE, h.Perms = oe, ue, perms
		h.KeyBytes = 32
	}

	return h, nil
}

func dictInt(d Dict, key Name, def int64) (int64, error) {
	v, ok := d[key]
	if !ok {
		return def, nil
	}
	i, ok := v.(Integer)
	if !ok {
		return 0, &ReadError{Msg: "expected integer for /" + string(key)}
	}
	return int64(i), nil
}

func dictIntOpt(d Dict, key Name) (int, bool, error) {
	v, ok := d[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(Integer)
	if !ok {
		return 0, false, &ReadError{Msg: "expected integer for /" + string(key)}
	}
	return int(i), true, nil
}

func dictString(d Dict, key Name) ([]byte, error) {
	v, ok := d[key]
	if !ok {
		return nil, &ReadError{Msg: "missing /" + string(key) + " in encryption dictionary"}
	}
	s, ok := v.(String)
	if !ok {
		return nil, &ReadError{Msg: "expected string for /" + string(key)}
	}
	return s.RawBytes(), nil
}
