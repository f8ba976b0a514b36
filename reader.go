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
	"compress/zlib"
	"io"
	"strconv"
)

// securityHandler is the narrow interface Reader needs from whichever
// handler (§4.3 standard, §4.4 public-key) was built from /Encrypt.
type securityHandler interface {
	CryptFilterConfigFor() *CryptFilterConfig
}

func (h *StandardHandler) CryptFilterConfigFor() *CryptFilterConfig { return h.activeCF }
func (h *PubKeyHandler) CryptFilterConfigFor() *CryptFilterConfig   { return h.CF }

// Reader parses a PDF byte stream, reconstructing its full incremental-
// update history into an XRefCache and exposing the Getter interface for
// object fetches (§2 "Data flow").
type Reader struct {
	data  []byte
	cache *XRefCache

	trailer Dict // flattened, newest-revision view
	id0     []byte

	sec           securityHandler
	encryptRef    Reference
	hasEncRef     bool
	encryptDirect Dict // set when /Encrypt is a direct dictionary, not a reference

	objCache map[objCacheKey]Object
}

// objCacheKey distinguishes the live, current-revision view of a reference
// (revision == currentRevision) from a historical, revision-clamped view
// (revision == the clamped revision number). Without the revision component,
// a Get and a GetAt for the same ref would collide on a single cache slot:
// whichever call ran first would silently serve every later historical
// lookup the wrong revision's object (§4.6 "Historical subsumption").
type objCacheKey struct {
	ref      Reference
	revision int
}

// currentRevision is the objCacheKey revision value Get uses; it is
// negative so it can never collide with a real (non-negative) revision
// number passed to GetAt.
const currentRevision = -1

// NewReader parses data (the complete contents of a PDF file already held
// in memory, per §5 "the stream is consumed with seek+read") and
// reconstructs its xref history. It does not attempt authentication; call
// Authenticate afterwards if the trailer's /Encrypt entry is present.
func NewReader(data []byte) (*Reader, error) {
	r := &Reader{
		data:     data,
		cache:    NewXRefCache(),
		objCache: make(map[objCacheKey]Object),
	}

	start, err := r.findStartXRef()
	if err != nil {
		return nil, err
	}

	visited := make(map[int64]bool)
	pos := start
	var trailerStack []Dict
	for {
		if pos < 0 || pos >= int64(len(data)) {
			return nil, &ReadError{Msg: "xref offset out of range", Pos: pos}
		}
		if visited[pos] {
			return nil, &ReadError{Msg: "cyclic /Prev chain in xref sections", Pos: pos}
		}
		visited[pos] = true

		trailer, prev, xrefStm, err := r.readXRefSectionAt(pos)
		if err != nil {
			return nil, err
		}
		trailerStack = append(trailerStack, trailer)

		if xrefStm != 0 {
			if _, _, _, err := r.readXRefSectionAt(xrefStm); err != nil {
				return nil, err
			}
		}

		if prev == 0 {
			break
		}
		pos = prev
	}

	if err := r.cache.CheckAllFreedBeforeUse(); err != nil {
		return nil, err
	}

	r.trailer = flattenTrailers(trailerStack)
	if id, ok := r.trailer["ID"]; ok {
		if arr, ok := id.(Array); ok && len(arr) > 0 {
			if s, ok := arr[0].(String); ok {
				r.id0 = s.RawBytes()
			}
		}
	}
	switch enc := r.trailer["Encrypt"].(type) {
	case Reference:
		r.encryptRef = enc
		r.hasEncRef = true
	case Dict:
		r.encryptDirect = enc
		r.hasEncRef = true
	}

	return r, nil
}

// flattenTrailers merges a stack of trailer dictionaries (oldest last, as
// accumulated while walking /Prev backward) into a single view: the
// newest-first entry for each key wins, and xref-stream framing keys are
// suppressed (§3 "Trailer dictionary").
func flattenTrailers(stack []Dict) Dict {
	suppressed := map[Name]bool{
		"Length": true, "Filter": true, "DecodeParms": true,
		"W": true, "Type": true, "Index": true, "Prev": true, "XRefStm": true,
	}
	out := Dict{}
	for _, d := range stack {
		for k, v := range d {
			if suppressed[k] {
				continue
			}
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}

// Trailer returns the flattened trailer dictionary.
func (r *Reader) Trailer() Dict { return r.trailer }

// ID0 returns the first element of the document's /ID array, if present.
func (r *Reader) ID0() []byte { return r.id0 }

// SetSecurityHandler installs an authenticated (or authentication-pending)
// security handler built from the /Encrypt dictionary.
func (r *Reader) SetSecurityHandler(h securityHandler) { r.sec = h }

// HasEncryptDict reports whether the trailer carries an /Encrypt entry.
func (r *Reader) HasEncryptDict() bool { return r.hasEncRef }

// EncryptDict fetches and returns the raw /Encrypt dictionary, if any. The
// dictionary itself is never encrypted (§4.6 "getAtEntry" skips decryption
// for r.encryptRef), so this is safe to call before authentication, e.g. to
// pass to OpenSecurityHandler (§6.4) in order to build the handler that
// Authenticate is then called on.
func (r *Reader) EncryptDict() (Dict, error) {
	if !r.hasEncRef {
		return nil, nil
	}
	if r.encryptDirect != nil {
		return r.encryptDirect, nil
	}
	obj, err := r.Get(r.encryptRef)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(Dict)
	if !ok {
		return nil, &ReadError{Msg: "/Encrypt does not refer to a dictionary"}
	}
	return d, nil
}

// --- tokenizing primitives, grounded in the teacher's expect* family ---

func isWhiteSpace(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// skipWhiteSpace advances past whitespace and PDF comments (`% ... eol`).
func (r *Reader) skipWhiteSpace(pos int64) int64 {
	for pos < int64(len(r.data)) {
		b := r.data[pos]
		if isWhiteSpace(b) {
			pos++
			continue
		}
		if b == '%' {
			for pos < int64(len(r.data)) && r.data[pos] != '\n' && r.data[pos] != '\r' {
				pos++
			}
			continue
		}
		break
	}
	return pos
}

func (r *Reader) expectBytes(pos int64, lit string) (int64, error) {
	end := pos + int64(len(lit))
	if end > int64(len(r.data)) || string(r.data[pos:end]) != lit {
		return pos, &ReadError{Msg: "expected \"" + lit + "\"", Pos: pos}
	}
	return end, nil
}

func (r *Reader) readKeyword(pos int64) (string, int64) {
	start := pos
	for pos < int64(len(r.data)) && !isWhiteSpace(r.data[pos]) && !isDelimiter(r.data[pos]) {
		pos++
	}
	return string(r.data[start:pos]), pos
}

func (r *Reader) readInt(pos int64) (int64, int64, error) {
	start := pos
	if pos < int64(len(r.data)) && (r.data[pos] == '+' || r.data[pos] == '-') {
		pos++
	}
	digitsStart := pos
	for pos < int64(len(r.data)) && r.data[pos] >= '0' && r.data[pos] <= '9' {
		pos++
	}
	if pos == digitsStart {
		return 0, start, &ReadError{Msg: "expected integer", Pos: start}
	}
	n, err := strconv.ParseInt(string(r.data[start:pos]), 10, 64)
	if err != nil {
		return 0, start, &ReadError{Msg: "integer out of range", Pos: start}
	}
	return n, pos, nil
}

// findStartXRef scans the last 1024 bytes of the file backward for the
// "startxref" keyword and returns the offset that follows it (§6.3).
func (r *Reader) findStartXRef() (int64, error) {
	tailLen := int64(1024)
	if tailLen > int64(len(r.data)) {
		tailLen = int64(len(r.data))
	}
	tailStart := int64(len(r.data)) - tailLen
	tail := r.data[tailStart:]

	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, &ReadError{Msg: "startxref not found in trailing bytes"}
	}
	pos := tailStart + int64(idx) + int64(len("startxref"))
	pos = r.skipWhiteSpace(pos)
	n, _, err := r.readInt(pos)
	if err != nil {
		return 0, &ReadError{Msg: "malformed startxref offset", Pos: pos}
	}
	return n, nil
}

// readXRefSectionAt reads one xref section (table or stream) at pos,
// feeding its entries into r.cache, and returns its trailer dictionary, the
// /Prev offset (0 if absent), and the /XRefStm offset for hybrid-reference
// files (0 if absent).
func (r *Reader) readXRefSectionAt(pos int64) (Dict, int64, int64, error) {
	p := r.skipWhiteSpace(pos)
	if p+4 <= int64(len(r.data)) && string(r.data[p:p+4]) == "xref" {
		return r.readXRefTable(p)
	}
	return r.readXRefStream(p)
}

func (r *Reader) readXRefTable(pos int64) (Dict, int64, int64, error) {
	start := pos
	pos, err := r.expectBytes(pos, "xref")
	if err != nil {
		return nil, 0, 0, err
	}

	for {
		pos = r.skipWhiteSpace(pos)
		if pos+7 <= int64(len(r.data)) && string(r.data[pos:pos+7]) == "trailer" {
			pos += 7
			break
		}

		firstID, pos2, err := r.readInt(pos)
		if err != nil {
			return nil, 0, 0, err
		}
		pos = r.skipWhiteSpace(pos2)
		count, pos2, err := r.readInt(pos)
		if err != nil {
			return nil, 0, 0, err
		}
		pos = pos2

		// A single optional EOL follows the subsection header before the
		// fixed-width entry lines begin.
		if pos < int64(len(r.data)) && r.data[pos] == '\r' {
			pos++
		}
		if pos < int64(len(r.data)) && r.data[pos] == '\n' {
			pos++
		}

		for i := int64(0); i < count; i++ {
			if pos+20 > int64(len(r.data)) {
				return nil, 0, 0, &ReadError{Msg: "truncated xref table entry", Pos: pos}
			}
			line := r.data[pos : pos+20]
			offset, errOff := strconv.ParseInt(string(bytes.TrimSpace(line[0:10])), 10, 64)
			gen, errGen := strconv.ParseInt(string(bytes.TrimSpace(line[11:16])), 10, 64)
			if errOff != nil || errGen != nil {
				return nil, 0, 0, &ReadError{Msg: "malformed xref table entry", Pos: pos}
			}
			marker := line[17]
			id := uint32(firstID + i)

			switch marker {
			case 'n':
				if err := r.cache.PutRef(id, uint16(gen), offset); err != nil {
					return nil, 0, 0, err
				}
			case 'f':
				if err := r.cache.FreeRef(id, uint16(gen)); err != nil {
					return nil, 0, 0, err
				}
			default:
				return nil, 0, 0, &ReadError{Msg: "xref entry is neither 'n' nor 'f'", Pos: pos}
			}
			pos += 20
		}
	}

	pos = r.skipWhiteSpace(pos)
	trailerObj, pos, err := r.readObject(pos)
	if err != nil {
		return nil, 0, 0, err
	}
	trailer, ok := trailerObj.(Dict)
	if !ok {
		return nil, 0, 0, &ReadError{Msg: "trailer is not a dictionary", Pos: pos}
	}

	prev := int64(0)
	if v, ok := trailer["Prev"].(Integer); ok {
		prev = int64(v)
	}
	xrefStm := int64(0)
	if v, ok := trailer["XRefStm"].(Integer); ok {
		xrefStm = int64(v)
	}

	r.cache.FinishSection(start, XRefContainerInfo{IsStream: false, Trailer: trailer})
	return trailer, prev, xrefStm, nil
}

func (r *Reader) readXRefStream(pos int64) (Dict, int64, int64, error) {
	streamObj, _, err := r.readIndirectObjectAt(pos)
	if err != nil {
		return nil, 0, 0, err
	}
	stm, ok := streamObj.(*Stream)
	if !ok {
		return nil, 0, 0, &ReadError{Msg: "xref stream object is not a stream", Pos: pos}
	}
	d := stm.Dict

	widths, ok := d["W"].(Array)
	if !ok || len(widths) < 3 {
		return nil, 0, 0, &ReadError{Msg: "xref stream missing /W", Pos: pos}
	}
	w := make([]int, 3)
	for i := 0; i < 3; i++ {
		iv, ok := widths[i].(Integer)
		if !ok {
			return nil, 0, 0, &ReadError{Msg: "/W entry is not an integer", Pos: pos}
		}
		w[i] = int(iv)
	}

	var index []int64
	if idxArr, ok := d["Index"].(Array); ok {
		for _, v := range idxArr {
			iv, ok := v.(Integer)
			if !ok {
				return nil, 0, 0, &ReadError{Msg: "/Index entry is not an integer", Pos: pos}
			}
			index = append(index, int64(iv))
		}
	} else {
		size, _ := d["Size"].(Integer)
		index = []int64{0, int64(size)}
	}

	data, err := stm.Data()
	if err != nil {
		return nil, 0, 0, err
	}

	entryWidth := w[0] + w[1] + w[2]
	offset := 0
	for i := 0; i+1 < len(index); i += 2 {
		firstID := index[i]
		count := index[i+1]
		for j := int64(0); j < count; j++ {
			if offset+entryWidth > len(data) {
				return nil, 0, 0, &ReadError{Msg: "truncated xref stream data"}
			}
			entry := data[offset : offset+entryWidth]
			offset += entryWidth

			typ := int64(1)
			o := 0
			if w[0] > 0 {
				typ = readBEInt(entry[0:w[0]])
				o = w[0]
			}
			f1 := readBEInt(entry[o : o+w[1]])
			o += w[1]
			f2 := readBEInt(entry[o : o+w[2]])

			id := uint32(firstID + j)
			switch typ {
			case 0:
				if err := r.cache.FreeRef(id, uint16(f2)); err != nil {
					return nil, 0, 0, err
				}
			case 1:
				if err := r.cache.PutRef(id, uint16(f2), f1); err != nil {
					return nil, 0, 0, err
				}
			case 2:
				r.cache.PutObjStreamRef(id, uint32(f1), int(f2))
			default:
				// unknown type: skip
			}
		}
	}

	prev := int64(0)
	if v, ok := d["Prev"].(Integer); ok {
		prev = int64(v)
	}

	r.cache.FinishSection(pos, XRefContainerInfo{IsStream: true, Trailer: d})
	return d, prev, 0, nil
}

func readBEInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// readIndirectObjectAt reads a complete "id gen obj ... endobj" (or
// "... stream ... endstream endobj") construct starting at pos.
func (r *Reader) readIndirectObjectAt(pos int64) (Object, int64, error) {
	pos = r.skipWhiteSpace(pos)
	_, pos, err := r.readInt(pos)
	if err != nil {
		return nil, 0, err
	}
	pos = r.skipWhiteSpace(pos)
	_, pos, err = r.readInt(pos)
	if err != nil {
		return nil, 0, err
	}
	pos = r.skipWhiteSpace(pos)
	pos, err = r.expectBytes(pos, "obj")
	if err != nil {
		return nil, 0, err
	}

	obj, pos, err := r.readObject(pos)
	if err != nil {
		return nil, 0, err
	}

	pos = r.skipWhiteSpace(pos)
	if pos+6 <= int64(len(r.data)) && string(r.data[pos:pos+6]) == "stream" {
		pos += 6
		if pos < int64(len(r.data)) && r.data[pos] == '\r' {
			pos++
		}
		if pos < int64(len(r.data)) && r.data[pos] == '\n' {
			pos++
		}
		dict, ok := obj.(Dict)
		if !ok {
			return nil, 0, &ReadError{Msg: "stream keyword without a preceding dictionary", Pos: pos}
		}
		length, ok := dict["Length"].(Integer)
		if !ok {
			return nil, 0, &ReadError{Msg: "stream /Length must be a direct integer", Pos: pos}
		}
		end := pos + int64(length)
		if end > int64(len(r.data)) {
			return nil, 0, &ReadError{Msg: "stream data runs past end of file", Pos: pos}
		}
		raw := r.data[pos:end]
		pos = end

		stream := NewStream(dict, raw, func(enc []byte) ([]byte, error) {
			return decodeStreamFilters(dict, enc)
		})
		pos = r.skipWhiteSpace(pos)
		if pos+9 <= int64(len(r.data)) && string(r.data[pos:pos+9]) == "endstream" {
			pos += 9
		}
		obj = stream
	}

	pos = r.skipWhiteSpace(pos)
	if pos+6 <= int64(len(r.data)) && string(r.data[pos:pos+6]) == "endobj" {
		pos += 6
	}
	return obj, pos, nil
}

// decodeStreamFilters applies /Filter (a name or array of names) to raw
// stream bytes. Only /FlateDecode is implemented; unknown filters are
// passed through unchanged (this matches the teacher's conservative
// handling of filters it does not recognize).
func decodeStreamFilters(dict Dict, raw []byte) ([]byte, error) {
	var names []Name
	switch f := dict["Filter"].(type) {
	case Name:
		names = []Name{f}
	case Array:
		for _, v := range f {
			if n, ok := v.(Name); ok {
				names = append(names, n)
			}
		}
	}

	data := raw
	for _, name := range names {
		switch name {
		case "FlateDecode", "Fl":
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, &ReadError{Msg: "FlateDecode: " + err.Error()}
			}
			out, err := io.ReadAll(zr)
			if err != nil {
				return nil, &ReadError{Msg: "FlateDecode: " + err.Error()}
			}
			data = out
		default:
			// Identity and unrecognized filters: pass through.
		}
	}
	return data, nil
}

// readObject parses one direct object at pos (§3.1 "Tokenizer primitives").
func (r *Reader) readObject(pos int64) (Object, int64, error) {
	pos = r.skipWhiteSpace(pos)
	if pos >= int64(len(r.data)) {
		return nil, pos, &ReadError{Msg: "unexpected end of file", Pos: pos}
	}

	switch b := r.data[pos]; {
	case b == '/':
		return r.readName(pos)
	case b == '(':
		return r.readLiteralString(pos)
	case b == '<':
		if pos+1 < int64(len(r.data)) && r.data[pos+1] == '<' {
			return r.readDict(pos)
		}
		return r.readHexString(pos)
	case b == '[':
		return r.readArray(pos)
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		return r.readNumberOrReference(pos)
	default:
		kw, end := r.readKeyword(pos)
		switch kw {
		case "true":
			return Bool(true), end, nil
		case "false":
			return Bool(false), end, nil
		case "null":
			return Null{}, end, nil
		}
		return nil, pos, &ReadError{Msg: "unrecognized object at \"" + kw + "\"", Pos: pos}
	}
}

func (r *Reader) readName(pos int64) (Object, int64, error) {
	pos++ // consume '/'
	var buf bytes.Buffer
	for pos < int64(len(r.data)) {
		b := r.data[pos]
		if isWhiteSpace(b) || isDelimiter(b) {
			break
		}
		if b == '#' && pos+2 < int64(len(r.data)) {
			hi, errHi := hexDigit(r.data[pos+1])
			lo, errLo := hexDigit(r.data[pos+2])
			if errHi == nil && errLo == nil {
				buf.WriteByte(byte(hi<<4 | lo))
				pos += 3
				continue
			}
		}
		buf.WriteByte(b)
		pos++
	}
	return Name(buf.String()), pos, nil
}

func hexDigit(b byte) (int, error) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), nil
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, nil
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, nil
	}
	return 0, &ReadError{Msg: "invalid hex digit"}
}

func (r *Reader) readLiteralString(pos int64) (Object, int64, error) {
	pos++ // consume '('
	depth := 1
	var buf bytes.Buffer
	for pos < int64(len(r.data)) && depth > 0 {
		b := r.data[pos]
		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
			pos++
		case ')':
			depth--
			pos++
			if depth > 0 {
				buf.WriteByte(b)
			}
		case '\\':
			pos++
			if pos >= int64(len(r.data)) {
				break
			}
			esc := r.data[pos]
			switch esc {
			case 'n':
				buf.WriteByte('\n')
				pos++
			case 'r':
				buf.WriteByte('\r')
				pos++
			case 't':
				buf.WriteByte('\t')
				pos++
			case 'b':
				buf.WriteByte('\b')
				pos++
			case 'f':
				buf.WriteByte('\f')
				pos++
			case '(', ')', '\\':
				buf.WriteByte(esc)
				pos++
			case '\r':
				pos++
				if pos < int64(len(r.data)) && r.data[pos] == '\n' {
					pos++
				}
			case '\n':
				pos++
			default:
				if esc >= '0' && esc <= '7' {
					val := 0
					for i := 0; i < 3 && pos < int64(len(r.data)) && r.data[pos] >= '0' && r.data[pos] <= '7'; i++ {
						val = val*8 + int(r.data[pos]-'0')
						pos++
					}
					buf.WriteByte(byte(val))
				} else {
					buf.WriteByte(esc)
					pos++
				}
			}
		default:
			buf.WriteByte(b)
			pos++
		}
	}
	return NewString(buf.Bytes()), pos, nil
}

func (r *Reader) readHexString(pos int64) (Object, int64, error) {
	pos++ // consume '<'
	var digits []byte
	for pos < int64(len(r.data)) && r.data[pos] != '>' {
		if !isWhiteSpace(r.data[pos]) {
			digits = append(digits, r.data[pos])
		}
		pos++
	}
	pos++ // consume '>'
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi, err := hexDigit(digits[2*i])
		if err != nil {
			return nil, pos, err
		}
		lo, err := hexDigit(digits[2*i+1])
		if err != nil {
			return nil, pos, err
		}
		out[i] = byte(hi<<4 | lo)
	}
	return NewString(out), pos, nil
}

func (r *Reader) readArray(pos int64) (Object, int64, error) {
	pos++ // consume '['
	var arr Array
	for {
		pos = r.skipWhiteSpace(pos)
		if pos >= int64(len(r.data)) {
			return nil, pos, &ReadError{Msg: "unterminated array", Pos: pos}
		}
		if r.data[pos] == ']' {
			pos++
			break
		}
		obj, next, err := r.readObject(pos)
		if err != nil {
			return nil, pos, err
		}
		arr = append(arr, obj)
		pos = next
	}
	return arr, pos, nil
}

func (r *Reader) readDict(pos int64) (Object, int64, error) {
	pos += 2 // consume '<<'
	d := Dict{}
	for {
		pos = r.skipWhiteSpace(pos)
		if pos+2 <= int64(len(r.data)) && r.data[pos] == '>' && r.data[pos+1] == '>' {
			pos += 2
			break
		}
		keyObj, next, err := r.readObject(pos)
		if err != nil {
			return nil, pos, err
		}
		key, ok := keyObj.(Name)
		if !ok {
			return nil, pos, &ReadError{Msg: "dictionary key is not a name", Pos: pos}
		}
		pos = r.skipWhiteSpace(next)
		val, next2, err := r.readObject(pos)
		if err != nil {
			return nil, pos, err
		}
		d[key] = val
		pos = next2
	}
	return d, pos, nil
}

// readNumberOrReference parses an integer or real, then looks ahead for the
// "gen R" suffix that turns two consecutive non-negative integers into an
// indirect reference.
func (r *Reader) readNumberOrReference(pos int64) (Object, int64, error) {
	start := pos
	isReal := false
	if pos < int64(len(r.data)) && (r.data[pos] == '+' || r.data[pos] == '-') {
		pos++
	}
	for pos < int64(len(r.data)) {
		b := r.data[pos]
		if b >= '0' && b <= '9' {
			pos++
		} else if b == '.' && !isReal {
			isReal = true
			pos++
		} else {
			break
		}
	}
	text := string(r.data[start:pos])

	if isReal {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, pos, &ReadError{Msg: "malformed real number", Pos: start}
		}
		return Real(f), pos, nil
	}

	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, pos, &ReadError{Msg: "malformed integer", Pos: start}
	}

	if n >= 0 {
		save := pos
		p2 := r.skipWhiteSpace(pos)
		if p2 < int64(len(r.data)) && r.data[p2] >= '0' && r.data[p2] <= '9' {
			gen, p3, err := r.readInt(p2)
			if err == nil && gen >= 0 {
				p4 := r.skipWhiteSpace(p3)
				if p4 < int64(len(r.data)) && r.data[p4] == 'R' &&
					(p4+1 >= int64(len(r.data)) || isWhiteSpace(r.data[p4+1]) || isDelimiter(r.data[p4+1])) {
					return Reference{Number: uint32(n), Generation: uint16(gen)}, p4 + 1, nil
				}
			}
		}
		pos = save
	}

	return Integer(n), pos, nil
}

// --- Getter implementation ---

var _ Getter = (*Reader)(nil)

// Get reads and (if authenticated and encrypted) decrypts the object
// referred to by ref, using the xref cache's current (most recent) entry.
func (r *Reader) Get(ref Reference) (Object, error) {
	return r.getAtEntry(ref, currentRevision, func() (XRefEntry, bool) { return r.cache.Lookup(ref) })
}

// GetAt behaves like Get but clamps the lookup to a specific historical
// revision.
func (r *Reader) GetAt(ref Reference, revision int) (Object, error) {
	return r.getAtEntry(ref, revision, func() (XRefEntry, bool) {
		e, err := r.cache.GetHistoricalRef(ref, revision)
		return e, err == nil
	})
}

func (r *Reader) getAtEntry(ref Reference, revision int, lookup func() (XRefEntry, bool)) (Object, error) {
	key := objCacheKey{ref: ref, revision: revision}
	if obj, ok := r.objCache[key]; ok {
		return obj, nil
	}

	entry, ok := lookup()
	if !ok || entry.IsFree() {
		return Null{}, nil
	}

	var raw Object
	var err error
	switch {
	case entry.IsInUse():
		raw, _, err = r.readIndirectObjectAt(entry.Offset)
	case entry.IsCompressed():
		raw, err = r.getFromObjectStream(entry.StreamID, entry.Index)
	}
	if err != nil {
		return nil, err
	}

	if r.sec != nil && r.hasEncRef && ref != r.encryptRef {
		raw, err = r.decryptObject(ref, raw)
		if err != nil {
			return nil, err
		}
	}

	r.objCache[key] = raw
	return raw, nil
}

// getFromObjectStream extracts the idx-th compressed object from the
// object stream streamID (ISO 32000-1, 7.5.7).
func (r *Reader) getFromObjectStream(streamID uint32, idx int) (Object, error) {
	stmObj, err := r.Get(Reference{Number: streamID, Generation: 0})
	if err != nil {
		return nil, err
	}
	stm, ok := stmObj.(*Stream)
	if !ok {
		return nil, &ReadError{Msg: "object stream reference does not point to a stream"}
	}
	data, err := stm.Data()
	if err != nil {
		return nil, err
	}
	n, _ := stm.Dict["N"].(Integer)
	first, _ := stm.Dict["First"].(Integer)

	headerReader := &Reader{data: data}
	pos := int64(0)
	var offsets []int64
	for i := int64(0); i < int64(n); i++ {
		pos = headerReader.skipWhiteSpace(pos)
		if _, pos2, err := headerReader.readInt(pos); err == nil {
			pos = headerReader.skipWhiteSpace(pos2)
			off, pos3, err := headerReader.readInt(pos)
			if err != nil {
				return nil, &ReadError{Msg: "malformed object stream header"}
			}
			offsets = append(offsets, off)
			pos = pos3
		}
	}
	if idx < 0 || idx >= len(offsets) {
		return nil, &ReadError{Msg: "object stream index out of range"}
	}

	bodyReader := &Reader{data: data}
	obj, _, err := bodyReader.readObject(int64(first) + offsets[idx])
	return obj, err
}

// decryptObject applies the crypt filter configuration to every String and
// Stream reachable in obj, recursing into Dict and Array (§6.1 "streams,
// dictionaries... raw_get bypassing decryption"). ref is the containing
// indirect object's reference, used for per-object key derivation.
func (r *Reader) decryptObject(ref Reference, obj Object) (Object, error) {
	cfg := r.sec.CryptFilterConfigFor()
	if cfg == nil {
		return obj, nil
	}

	switch v := obj.(type) {
	case String:
		f, err := cfg.StringFilter()
		if err != nil {
			return nil, err
		}
		dec, err := f.Decrypt(ref, v.RawBytes())
		if err != nil {
			return nil, err
		}
		return v.WithBytes(dec), nil
	case Dict:
		out := Dict{}
		for k, val := range v {
			dv, err := r.decryptObject(ref, val)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	case Array:
		out := make(Array, len(v))
		for i, val := range v {
			dv, err := r.decryptObject(ref, val)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case *Stream:
		newDict, err := r.decryptObject(ref, v.Dict)
		if err != nil {
			return nil, err
		}
		dict := newDict.(Dict)
		f, err := cfg.StreamFilter()
		if err != nil {
			return nil, err
		}
		encoded := v.EncodedData()
		return NewStream(dict, encoded, func(enc []byte) ([]byte, error) {
			plain, err := f.Decrypt(ref, enc)
			if err != nil {
				return nil, err
			}
			return decodeStreamFilters(dict, plain)
		}), nil
	default:
		return obj, nil
	}
}
