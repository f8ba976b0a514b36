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

// SecurityHandler is the capability a Reader needs from whichever handler
// (§4.3 standard, §4.4 public-key) was built from a document's /Encrypt
// dictionary: access to the crypt-filter configuration that routes
// per-object decryption. Both *StandardHandler and *PubKeyHandler satisfy
// it.
type SecurityHandler interface {
	CryptFilterConfigFor() *CryptFilterConfig
}

// HandlerOpener builds a SecurityHandler from a document's /Encrypt
// dictionary and the first element of its /ID array. It performs no
// authentication; the caller still has to call Authenticate (or its
// public-key equivalent) before fetching decrypted objects.
type HandlerOpener func(d Dict, id0 []byte) (SecurityHandler, error)

// registeredHandler is one entry in the handler registry (§6.4): a name to
// match against /Filter, the generic /SubFilter values this handler
// declares support for (§9 "Registry of handlers" redesign note), and the
// opener that builds the handler from a dictionary.
type registeredHandler struct {
	name       Name
	subFilters map[PubKeySubFilter]bool
	open       HandlerOpener
}

// handlerRegistry is populated once, in place of the teacher corpus's
// process-wide registration-at-import pattern (§9): callers get an
// explicit, inspectable table rather than import-order-dependent global
// side effects.
var handlerRegistry = []registeredHandler{
	{
		name: "Standard",
		open: func(d Dict, id0 []byte) (SecurityHandler, error) {
			return OpenStandardHandlerFull(d, id0)
		},
	},
	{
		name: "Adobe.PubSec",
		subFilters: map[PubKeySubFilter]bool{
			SubFilterS3: true,
			SubFilterS4: true,
			SubFilterS5: true,
		},
		open: func(d Dict, _ []byte) (SecurityHandler, error) {
			return OpenPubKeyHandler(d)
		},
	},
}

// OpenSecurityHandler selects and builds the SecurityHandler named by d's
// /Filter entry (§6.4), falling back to whichever registered handler
// declares d's /SubFilter among its generic subfilters if no handler is
// registered under that exact name. A document with no /Filter entry
// defaults to /Standard, matching common reader behavior for malformed
// encryption dictionaries. Missing a match is fatal (§6.4 "Missing a match
// is fatal").
func OpenSecurityHandler(d Dict, id0 []byte) (SecurityHandler, error) {
	name, _ := d["Filter"].(Name)
	if name == "" {
		name = "Standard"
	}

	for _, h := range handlerRegistry {
		if h.name == name {
			return h.open(d, id0)
		}
	}

	sf, hasSubFilter := d["SubFilter"].(Name)
	if hasSubFilter {
		for _, h := range handlerRegistry {
			if h.subFilters[PubKeySubFilter(sf)] {
				return h.open(d, id0)
			}
		}
		return nil, &UnsupportedError{
			Feature: "no security handler named /" + string(name) +
				", and none of the registered handlers support /SubFilter /" + string(sf),
		}
	}

	return nil, &UnsupportedError{
		Feature: "no security handler named /" + string(name) +
			", and the encryption dictionary has no generic /SubFilter entry",
	}
}

// OpenStandardHandlerFull parses a /Standard encryption dictionary (as
// OpenStandardHandler does) and additionally wires its crypt-filter
// configuration: an implicit RC4 filter for V1/V2, or the named filters
// declared under /CF for V4/V5 (§6.2 "Crypt filter entries").
func OpenStandardHandlerFull(d Dict, id0 []byte) (*StandardHandler, error) {
	h, err := OpenStandardHandler(d, id0)
	if err != nil {
		return nil, err
	}

	switch {
	case h.V == 1 || h.V == 2:
		if _, err := h.NewCryptFilterConfig(CipherRC4); err != nil {
			return nil, err
		}
	case h.V == 4 || h.V == 5:
		cfg, err := parseCryptFilterConfig(d, h)
		if err != nil {
			return nil, err
		}
		h.activeCF = cfg
	default:
		return nil, &UnsupportedError{Feature: "encryption handler version"}
	}

	return h, nil
}

// parseCryptFilterConfig reads /StmF, /StrF, /EFF and the /CF dictionary
// from an encryption dictionary, building one RC4Filter or AESFilter per
// named entry, all backed by source (§3 "Crypt filter configuration", §6.2
// "Crypt filter entries").
func parseCryptFilterConfig(d Dict, source sharedKeySource) (*CryptFilterConfig, error) {
	cfg := NewCryptFilterConfig()
	if name, ok := d["StmF"].(Name); ok {
		cfg.StmF = name
	}
	if name, ok := d["StrF"].(Name); ok {
		cfg.StrF = name
	}
	if name, ok := d["EFF"].(Name); ok {
		cfg.EFF = name
	}

	cfDict, _ := d["CF"].(Dict)
	for name, entry := range cfDict {
		ed, ok := entry.(Dict)
		if !ok {
			continue
		}
		cfm, _ := ed["CFM"].(Name)
		f, err := buildStdCryptFilter(CipherMethod(cfm), ed, source)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		cfg.AddFilter(name, f)
	}

	return cfg, nil
}

// buildStdCryptFilter constructs the CryptFilter named by method, backed by
// source. /None (and an absent /CFM) report no filter at all: the entry is
// simply omitted from the configuration, leaving lookups against its name
// to fail as an unsupported filter (§4.2 "RC4 filter family"/"AES filter
// family"). A per-entry /Length (in bytes, per §6.2's 2020-spec convention
// for the standard handler) overrides the handler's document-wide key
// length for RC4 filters.
func buildStdCryptFilter(method CipherMethod, entry Dict, source sharedKeySource) (CryptFilter, error) {
	switch method {
	case CipherRC4:
		keyBytes := 16
		if h, ok := source.(*StandardHandler); ok {
			keyBytes = h.KeyBytes
		}
		if n, ok := entry["Length"].(Integer); ok && n > 0 {
			keyBytes = int(n)
		}
		return NewRC4Filter(source, keyBytes), nil
	case CipherAESV2:
		return NewAESFilter(source, 16, false), nil
	case CipherAESV3:
		return NewAESFilter(source, 32, true), nil
	case CipherNone, "":
		return nil, nil
	default:
		return nil, &UnsupportedError{Feature: "crypt filter method /" + string(method)}
	}
}

// OpenPubKeyHandler parses an /Adobe.PubSec encryption dictionary (§6.2):
// legacy SubFilters s3/s4 carry a single implicit RC4 filter and a
// top-level /Recipients array; s5 carries explicit crypt filters under /CF,
// each with its own /Recipients array (§4.4 "Recipient CMS construction").
func OpenPubKeyHandler(d Dict) (*PubKeyHandler, error) {
	sf, _ := d["SubFilter"].(Name)
	subFilter := PubKeySubFilter(sf)

	encryptMetadata := true
	if b, ok := d["EncryptMetadata"].(Bool); ok {
		encryptMetadata = bool(b)
	}

	h := &PubKeyHandler{SubFilter: subFilter}

	if subFilter != SubFilterS5 {
		v, err := dictInt(d, "V", 1)
		if err != nil {
			return nil, err
		}
		keyBytes := 5
		if v >= 2 {
			keyBytes = 16
		}
		src := &pubKeyFilterSource{is256: false, keyBytes: keyBytes, encryptMetadata: encryptMetadata}
		filter := NewRC4Filter(src, keyBytes)

		cfg := NewCryptFilterConfig()
		cfg.AddFilter("DefaultCryptFilter", filter)
		cfg.StmF = "DefaultCryptFilter"
		cfg.StrF = "DefaultCryptFilter"
		h.CF = cfg
		h.defaultSources = []*pubKeyFilterSource{src}

		if recips, ok := d["Recipients"].(Array); ok {
			for _, rv := range recips {
				if s, ok := rv.(String); ok {
					src.recipientCMS = append(src.recipientCMS, s.RawBytes())
				}
			}
		}
		return h, nil
	}

	cfg := NewCryptFilterConfig()
	if name, ok := d["StmF"].(Name); ok {
		cfg.StmF = name
	}
	if name, ok := d["StrF"].(Name); ok {
		cfg.StrF = name
	}
	if name, ok := d["EFF"].(Name); ok {
		cfg.EFF = name
	}

	cfDict, _ := d["CF"].(Dict)
	byName := make(map[Name]*pubKeyFilterSource)
	for name, entry := range cfDict {
		ed, ok := entry.(Dict)
		if !ok {
			continue
		}
		src, filter, err := buildPubKeyCryptFilter(ed, encryptMetadata)
		if err != nil {
			return nil, err
		}
		if src == nil {
			continue
		}
		cfg.AddFilter(name, filter)
		byName[name] = src
	}
	h.CF = cfg

	seen := make(map[*pubKeyFilterSource]bool)
	for _, n := range []Name{cfg.StmF, cfg.StrF} {
		if src, ok := byName[n]; ok && !seen[src] {
			seen[src] = true
			h.defaultSources = append(h.defaultSources, src)
		}
	}

	return h, nil
}

// buildPubKeyCryptFilter builds one named crypt filter of an s5 handler's
// /CF dictionary, together with the recipient seed source it owns, reading
// the entry's own /Recipients array (§4.4).
func buildPubKeyCryptFilter(entry Dict, encryptMetadata bool) (*pubKeyFilterSource, CryptFilter, error) {
	cfm, _ := entry["CFM"].(Name)
	var src *pubKeyFilterSource
	var filter CryptFilter

	switch CipherMethod(cfm) {
	case CipherRC4:
		src = &pubKeyFilterSource{is256: false, keyBytes: 16, encryptMetadata: encryptMetadata}
		filter = NewRC4Filter(src, 16)
	case CipherAESV2:
		src = &pubKeyFilterSource{is256: false, keyBytes: 16, encryptMetadata: encryptMetadata}
		filter = NewAESFilter(src, 16, false)
	case CipherAESV3:
		src = &pubKeyFilterSource{is256: true, keyBytes: 32, encryptMetadata: encryptMetadata}
		filter = NewAESFilter(src, 32, true)
	case CipherNone, "":
		return nil, nil, nil
	default:
		return nil, nil, &UnsupportedError{Feature: "crypt filter method /" + string(cfm)}
	}

	if recips, ok := entry["Recipients"].(Array); ok {
		for _, rv := range recips {
			if s, ok := rv.(String); ok {
				src.recipientCMS = append(src.recipientCMS, s.RawBytes())
			}
		}
	}

	return src, filter, nil
}
