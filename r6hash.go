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
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"

	"github.com/xdg-go/stringprep"
)

// utf8Passwd normalizes a user-supplied password for R6 (AES-256): run it
// through the SASLprep profile (ISO 32000-2, 7.6.4.3.2) and truncate the
// UTF-8 encoding to 127 bytes. truncatePasswdBytes applies the same
// 127-byte cap to a password given as raw bytes, without SASLprep.
func utf8Passwd(pw string) []byte {
	prepared, err := stringprep.SASLprep.Prepare(pw)
	if err != nil {
		// Not representable in the profile: fall back to the raw bytes,
		// still subject to the length cap.
		prepared = pw
	}
	b := []byte(prepared)
	if len(b) > 127 {
		b = b[:127]
	}
	return b
}

func truncatePasswdBytes(pw []byte) []byte {
	if len(pw) > 127 {
		return pw[:127]
	}
	return pw
}

// aesCBCNoPad runs AES-CBC with the given key and IV over data whose length
// must already be a multiple of the block size; no padding is added or
// removed. This is the primitive the R6 hash loop, /UE, /OE, and /Perms all
// build on.
func aesCBCNoPad(key, iv, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%block.BlockSize() != 0 {
		return nil, &InvalidArgumentError{Msg: "aesCBCNoPad: data length not a multiple of the block size"}
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

// slowHash implements the R6 "Algorithm 2.B" hash (ISO 32000-2, 7.6.4.3.4),
// used by both password validation/key-salt hashing and owner hashing (where
// extra is the 48-byte /U entry).
func slowHash(password, salt, extra []byte) []byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	h.Write(extra)
	k := h.Sum(nil)

	round := 0
	for {
		k1 := make([]byte, 0, 64*(len(password)+len(k)+len(extra)))
		for i := 0; i < 64; i++ {
			k1 = append(k1, password...)
			k1 = append(k1, k...)
			k1 = append(k1, extra...)
		}

		e, err := aesCBCNoPad(k[:16], k[16:32], k1, true)
		if err != nil {
			// k[:16]/k[16:32] always form a valid AES-128 key/IV pair and
			// len(k1) is always a multiple of 16 (64 repeats of a fixed
			// block), so this cannot fail.
			panic("slowHash: unreachable AES failure: " + err.Error())
		}

		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		switch sum % 3 {
		case 0:
			sum256 := sha256.Sum256(e)
			k = sum256[:]
		case 1:
			sum384 := sha512.Sum384(e)
			k = sum384[:]
		case 2:
			sum512 := sha512.Sum512(e)
			k = sum512[:]
		}

		round++
		if round >= 64 && int(e[len(e)-1]) <= round-32 {
			break
		}
	}
	return k[:32]
}

// hashR6User computes hash(pw, salt) for the /U entry (no extra input).
func hashR6User(pw, salt []byte) []byte {
	return slowHash(pw, salt, nil)
}

// hashR6Owner computes hash(pw, salt, u) for the /O entry, where u is the
// full 48-byte /U value.
func hashR6Owner(pw, salt, u []byte) []byte {
	return slowHash(pw, salt, u)
}

// computeUAndUE implements the R6 construction of /U and /UE from a fresh
// file encryption key and two random 8-byte salts.
func computeUAndUE(pw, fileKey, validationSalt, keySalt []byte) (u, ue []byte, err error) {
	valHash := hashR6User(pw, validationSalt)
	u = make([]byte, 0, 48)
	u = append(u, valHash...)
	u = append(u, validationSalt...)
	u = append(u, keySalt...)

	interKey := hashR6User(pw, keySalt)
	ue, err = aesCBCNoPad(interKey, zero16[:], fileKey, true)
	if err != nil {
		return nil, nil, err
	}
	return u, ue, nil
}

// computeOAndOE implements the R6 construction of /O and /OE; it is
// symmetric to computeUAndUE but additionally mixes in the just-computed
// /U value.
func computeOAndOE(pw, fileKey, validationSalt, keySalt, u []byte) (o, oe []byte, err error) {
	valHash := hashR6Owner(pw, validationSalt, u)
	o = make([]byte, 0, 48)
	o = append(o, valHash...)
	o = append(o, validationSalt...)
	o = append(o, keySalt...)

	interKey := hashR6Owner(pw, keySalt, u)
	oe, err = aesCBCNoPad(interKey, zero16[:], fileKey, true)
	if err != nil {
		return nil, nil, err
	}
	return o, oe, nil
}

// checkR6 compares the first 32 bytes of a freshly computed validation hash
// against the stored 48-byte /U or /O entry.
func checkR6(hash, stored []byte) bool {
	return len(stored) >= 32 && bytes.Equal(hash, stored[:32])
}

// recoverFileKeyR6 decrypts /UE or /OE to recover the file encryption key,
// given the intermediate key derived from the key salt (and, for the owner
// path, the /U value).
func recoverFileKeyR6(interKey, encryptedKey []byte) ([]byte, error) {
	return aesCBCNoPad(interKey, zero16[:], encryptedKey, false)
}

// computePerms implements algorithm 10 (ISO 32000-2, 7.6.4.4.8): build the
// 16-byte /Perms value from the permission bits, the metadata-encryption
// flag, and the file encryption key.
func computePerms(fileKey []byte, p int32, encryptMetadata bool, extraRandom []byte) ([]byte, error) {
	block := make([]byte, 16)
	block[0] = byte(p)
	block[1] = byte(p >> 8)
	block[2] = byte(p >> 16)
	block[3] = byte(p >> 24)
	block[4] = 0xFF
	block[5] = 0xFF
	block[6] = 0xFF
	block[7] = 0xFF
	if encryptMetadata {
		block[8] = 'T'
	} else {
		block[8] = 'F'
	}
	block[9] = 'a'
	block[10] = 'd'
	block[11] = 'b'
	copy(block[12:16], extraRandom)

	enc, err := aesCBCNoPad(fileKey, zero16[:], block, true)
	if err != nil {
		return nil, err
	}
	return enc[:16], nil
}

// checkPerms implements R6 permissions verification: decrypt /Perms with
// the recovered file key and validate the embedded marker and permission
// bits, returning a *TamperError on any mismatch.
func checkPerms(fileKey, perms []byte, p int32, encryptMetadata bool) error {
	if len(perms) != 16 {
		return &TamperError{Reason: "/Perms is not 16 bytes"}
	}
	dec, err := aesCBCNoPad(fileKey, zero16[:], perms, false)
	if err != nil {
		return err
	}
	if dec[9] != 'a' || dec[10] != 'd' || dec[11] != 'b' {
		return &TamperError{Reason: "/Perms does not contain the \"adb\" marker"}
	}
	gotP := int32(dec[0]) | int32(dec[1])<<8 | int32(dec[2])<<16 | int32(dec[3])<<24
	if gotP != p {
		return &TamperError{Reason: "/Perms permission bits do not match /P"}
	}
	wantMeta := byte('F')
	if encryptMetadata {
		wantMeta = 'T'
	}
	if dec[8] != wantMeta {
		return &TamperError{Reason: "/Perms metadata-encryption marker does not match /EncryptMetadata"}
	}
	return nil
}
