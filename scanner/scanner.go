// Package scanner tokenizes PDF syntax. It reads from an io.ReaderAt
// in fixed-size windows so a large file is never loaded up front, and
// consults a recovery.Strategy when the input is malformed.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"leanpdf/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // integer or real
	TokenBoolean                      // true / false
	TokenNull                         // null
	TokenRef                          // 'N G R'
	TokenStream                       // stream payload
	TokenInlineImage                  // ID ... EI payload (content streams)
	TokenKeyword                      // obj, endobj, >>, ], operators
)

// Token carries the typed value for its Type: Str for names and
// keywords, Bytes for strings and stream payloads, Int/Float for
// numbers, Num/Gen for refs.
type Token struct {
	Type  TokenType
	Pos   int64
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Hex   bool
	Num   int
	Gen   int
}

// Config bounds resource use while scanning hostile input.
type Config struct {
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	WindowSize      int64
	Recovery        recovery.Strategy
}

// Scanner walks PDF tokens over a windowed byte buffer.
type Scanner struct {
	reader        io.ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	window        int64
	eof           bool
	arrayDepth    int
	dictDepth     int
	loc           recovery.Location
	lastAction    recovery.Action
}

const defaultWindow = 64 * 1024

func New(r io.ReaderAt, cfg Config) *Scanner {
	w := cfg.WindowSize
	if w <= 0 {
		w = defaultWindow
	}
	return &Scanner{reader: r, cfg: cfg, nextStreamLen: -1, window: w}
}

func (s *Scanner) Position() int64 { return s.pos }

// SeekTo repositions the scanner at an absolute byte offset.
func (s *Scanner) SeekTo(offset int64) error {
	if offset < 0 {
		return errors.New("seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	s.arrayDepth = 0
	s.dictDepth = 0
	return nil
}

// SetNextStreamLength tells the scanner how many bytes the next stream
// keyword carries, sparing it the endstream search. The hint is
// consumed by the next stream token.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

// SetLocation seeds the object coordinates reported to the recovery
// strategy.
func (s *Scanner) SetLocation(loc recovery.Location) { s.loc = loc }

// Next returns the next token, or io.EOF at end of input.
func (s *Scanner) Next() (Token, error) {
	if err := s.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isNumberStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
}

func (s *Scanner) skipSpaceAndComments() error {
	for {
		if s.pos >= int64(len(s.data)) {
			if err := s.ensure(s.pos); err != nil {
				return err
			}
			if s.pos >= int64(len(s.data)) {
				return io.EOF
			}
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				if s.pos >= int64(len(s.data)) {
					return io.EOF
				}
				if isEOL(s.data[s.pos]) {
					break
				}
			}
			continue
		}
		return nil
	}
}

func (s *Scanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) loadMore() error {
	buf := make([]byte, s.window)
	n, err := s.reader.ReadAt(buf, int64(len(s.data)))
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF || n == 0 {
		s.eof = true
		return nil
	}
	return err
}

func (s *Scanner) peek(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var out bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' {
			s.pos++
			hi := s.hexNibble()
			lo := s.hexNibble()
			out.WriteByte(hi<<4 | lo)
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *Scanner) hexNibble() byte {
	if s.pos >= int64(len(s.data)) {
		return 0
	}
	c := s.data[s.pos]
	s.pos++
	return fromHex(c)
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for depth > 0 {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		switch {
		case c == '\\':
			s.pos++
			if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
				return Token{}, err
			}
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				// Line continuation swallows the EOL.
				s.pos++
				if s.peekCur() == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(unescape(esc))
				s.pos++
			}
		case c == '(':
			depth++
			buf.WriteByte(c)
			s.pos++
		case c == ')':
			depth--
			if depth > 0 {
				buf.WriteByte(c)
			}
			s.pos++
		default:
			buf.WriteByte(c)
			s.pos++
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if depth > 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil && s.lastAction != recovery.ActionFix {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var nibbles []byte
	closed := false
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			closed = true
			break
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		nibbles = append(nibbles, c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(len(nibbles)/2) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("hex string too long"), "hex")
		}
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil && s.lastAction != recovery.ActionFix {
			return Token{}, err
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0')
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, fromHex(nibbles[i])<<4|fromHex(nibbles[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	var buf bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		buf.WriteByte(c)
		s.pos++
	}
	switch kw := buf.String(); kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID":
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first := s.scanNumberText()
	if first == "" {
		return Token{}, errors.New("invalid number")
	}
	if isIntegerText(first) {
		// Lookahead for 'G R'.
		save := s.pos
		_ = s.skipSpaceAndComments()
		second := s.scanNumberText()
		if second != "" && isIntegerText(second) {
			_ = s.skipSpaceAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.peek(1))) {
				s.pos++
				num, _ := strconv.Atoi(first)
				gen, _ := strconv.Atoi(second)
				return Token{Type: TokenRef, Num: num, Gen: gen, Pos: start}, nil
			}
		}
		s.pos = save
	}
	if i, err := strconv.ParseInt(first, 10, 64); err == nil {
		return s.emit(Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start})
	}
	f, err := strconv.ParseFloat(normalizeReal(first), 64)
	if err != nil {
		return Token{}, s.recover(errors.New("malformed number "+strconv.Quote(first)), "number")
	}
	return s.emit(Token{Type: TokenNumber, Float: f, Pos: start})
}

func (s *Scanner) scanNumberText() string {
	start := s.pos
	var buf bytes.Buffer
	seenDigit := false
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return ""
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if !isNumberStart(c) {
			break
		}
		if c >= '0' && c <= '9' {
			seenDigit = true
		}
		buf.WriteByte(c)
		s.pos++
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return buf.String()
}

// scanStream consumes the payload after a stream keyword. With a
// length hint the bytes are sliced directly; otherwise the scanner
// searches for a well-delimited endstream marker.
func (s *Scanner) scanStream(start int64) (Token, error) {
	if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	// An EOL must separate the keyword from the data.
	switch {
	case s.pos < int64(len(s.data)) && s.data[s.pos] == '\r':
		s.pos++
		if s.peekCur() == '\n' {
			s.pos++
		}
	case s.pos < int64(len(s.data)) && s.data[s.pos] == '\n':
		s.pos++
	default:
		if err := s.recover(errors.New("stream keyword not followed by EOL"), "stream"); err != nil && s.lastAction != recovery.ActionFix {
			return Token{}, err
		}
	}
	dataStart := s.pos
	if hint := s.nextStreamLen; hint >= 0 {
		s.nextStreamLen = -1
		return s.scanStreamWithLength(start, dataStart, hint)
	}
	return s.scanStreamBySearch(start, dataStart)
}

func (s *Scanner) scanStreamWithLength(start, dataStart, length int64) (Token, error) {
	if s.cfg.MaxStreamLength > 0 && length > s.cfg.MaxStreamLength {
		return Token{}, s.recover(errors.New("stream exceeds length limit"), "stream")
	}
	if err := s.ensure(dataStart + length); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	if dataStart+length > int64(len(s.data)) {
		if err := s.recover(errors.New("stream shorter than declared length"), "stream"); err != nil && s.lastAction != recovery.ActionFix {
			return Token{}, err
		}
		length = int64(len(s.data)) - dataStart
	}
	payload := append([]byte(nil), s.data[dataStart:dataStart+length]...)
	s.pos = dataStart + length
	// Skip the EOL and the endstream keyword if present.
	if s.peekCur() == '\r' {
		s.pos++
	}
	if s.peekCur() == '\n' {
		s.pos++
	}
	marker := []byte("endstream")
	if err := s.ensure(s.pos + int64(len(marker))); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	if s.pos+int64(len(marker)) <= int64(len(s.data)) && bytes.Equal(s.data[s.pos:s.pos+int64(len(marker))], marker) {
		s.pos += int64(len(marker))
	} else if idx := bytes.Index(s.data[s.pos:], marker); idx >= 0 {
		s.pos += int64(idx + len(marker))
	}
	return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
}

func (s *Scanner) scanStreamBySearch(start, dataStart int64) (Token, error) {
	marker := []byte("endstream")
	i := dataStart
	for {
		if err := s.ensure(i + int64(len(marker))); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if i+int64(len(marker)) > int64(len(s.data)) {
			// Ran off the end without a marker.
			payload := append([]byte(nil), s.data[dataStart:]...)
			if err := s.recover(errors.New("endstream marker not found"), "stream"); err != nil && s.lastAction != recovery.ActionFix {
				return Token{}, err
			}
			s.pos = int64(len(s.data))
			return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
		}
		if s.cfg.MaxStreamScan > 0 && i-dataStart > s.cfg.MaxStreamScan {
			return Token{}, s.recover(errors.New("endstream search limit exceeded"), "stream")
		}
		if s.data[i] == 'e' && bytes.Equal(s.data[i:i+int64(len(marker))], marker) {
			afterOK := i+int64(len(marker)) >= int64(len(s.data)) || isDelimiter(s.data[i+int64(len(marker))])
			beforeOK := i == dataStart || isWhitespace(s.data[i-1])
			if afterOK && beforeOK {
				break
			}
		}
		i++
	}
	// Trim the EOL that belongs to the marker, not the data.
	end := i
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
		return Token{}, s.recover(errors.New("stream exceeds length limit"), "stream")
	}
	s.pos = i + int64(len(marker))
	return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
}

// scanInlineImage consumes bytes after ID up to a whitespace-delimited
// EI. The image dictionary preceding ID is the caller's business.
func (s *Scanner) scanInlineImage(start int64) (Token, error) {
	if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	if s.pos >= int64(len(s.data)) || !isWhitespace(s.data[s.pos]) {
		return Token{}, s.recover(errors.New("inline image missing whitespace after ID"), "inline-image")
	}
	s.pos++
	dataStart := s.pos
	for {
		if err := s.ensure(s.pos + 2); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos+1 >= int64(len(s.data)) {
			return Token{}, s.recover(errors.New("unterminated inline image"), "inline-image")
		}
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' {
			beforeOK := s.pos > dataStart && isWhitespace(s.data[s.pos-1])
			afterOK := s.pos+2 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+2])
			if beforeOK && afterOK {
				payload := append([]byte(nil), s.data[dataStart:s.pos-1]...)
				s.pos += 2
				return s.emit(Token{Type: TokenInlineImage, Bytes: payload, Pos: start})
			}
		}
		s.pos++
		if s.cfg.MaxInlineImage > 0 && s.pos-dataStart > s.cfg.MaxInlineImage {
			return Token{}, s.recover(errors.New("inline image exceeds length limit"), "inline-image")
		}
	}
}

func (s *Scanner) peekCur() byte {
	if err := s.ensure(s.pos); err != nil {
		return 0
	}
	if s.pos >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos]
}

func (s *Scanner) recover(err error, where string) error {
	if s.cfg.Recovery == nil {
		s.lastAction = recovery.ActionFail
		return err
	}
	loc := s.loc
	loc.ByteOffset = s.pos
	loc.Component = "scanner:" + where
	s.lastAction = s.cfg.Recovery.OnError(err, loc)
	switch s.lastAction {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	default:
		return err
	}
}

func (s *Scanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, s.recover(errors.New("array nesting too deep"), "array")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, s.recover(errors.New("dict nesting too deep"), "dict")
		}
	case TokenKeyword:
		switch tok.Str {
		case "]":
			if s.arrayDepth > 0 {
				s.arrayDepth--
			}
		case ">>":
			if s.dictDepth > 0 {
				s.dictDepth--
			}
		}
	}
	return tok, nil
}

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return isWhitespace(c)
}

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func isRegular(c byte) bool { return !isDelimiter(c) }

func isIntegerText(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '.' || ((c == '+' || c == '-') && i > 0) {
			return false
		}
	}
	return true
}

// normalizeReal patches writer shorthand like "4." and "-.5" so
// ParseFloat accepts it.
func normalizeReal(s string) string {
	if len(s) == 0 {
		return s
	}
	if s[len(s)-1] == '.' {
		s += "0"
	}
	if s[0] == '.' {
		s = "0" + s
	} else if len(s) > 1 && (s[0] == '+' || s[0] == '-') && s[1] == '.' {
		s = string(s[0]) + "0" + s[1:]
	}
	return s
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}
