package scanner

import (
	"bytes"
	"io"
	"testing"

	"leanpdf/recovery"
)

func next(t *testing.T, s *Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return tok
}

func scan(data string, cfg Config) *Scanner {
	return New(bytes.NewReader([]byte(data)), cfg)
}

func TestBasicTokens(t *testing.T) {
	s := scan("%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Nothing null >>\nendobj", Config{})

	tok := next(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("want number 1, got %+v", tok)
	}
	tok = next(t, s)
	if tok.Type != TokenNumber || tok.Int != 0 {
		t.Fatalf("want number 0, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenKeyword || tok.Str != "obj" {
		t.Fatalf("want obj keyword, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenDict {
		t.Fatalf("want dict open, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("want /Name, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("want /Value, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenName || tok.Str != "Nums" {
		t.Fatalf("want /Nums, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenArray {
		t.Fatalf("want array open, got %+v", tok)
	}
	for i := int64(1); i <= 3; i++ {
		if tok = next(t, s); tok.Type != TokenNumber || tok.Int != i {
			t.Fatalf("want %d, got %+v", i, tok)
		}
	}
	if tok = next(t, s); tok.Type != TokenKeyword || tok.Str != "]" {
		t.Fatalf("want array close, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenName || tok.Str != "Flag" {
		t.Fatalf("want /Flag, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("want true, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenName || tok.Str != "Nothing" {
		t.Fatalf("want /Nothing, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenNull {
		t.Fatalf("want null, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenKeyword || tok.Str != ">>" {
		t.Fatalf("want dict close, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenKeyword || tok.Str != "endobj" {
		t.Fatalf("want endobj, got %+v", tok)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestIndirectReference(t *testing.T) {
	s := scan("/Parent 3 0 R /Count 12 7", Config{})
	next(t, s) // /Parent
	tok := next(t, s)
	if tok.Type != TokenRef || tok.Num != 3 || tok.Gen != 0 {
		t.Fatalf("want ref 3 0, got %+v", tok)
	}
	next(t, s) // /Count
	// "12 7" at end of input: two integers, not a ref.
	if tok = next(t, s); tok.Type != TokenNumber || tok.Int != 12 {
		t.Fatalf("want 12, got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenNumber || tok.Int != 7 {
		t.Fatalf("want 7, got %+v", tok)
	}
}

func TestRealNumbers(t *testing.T) {
	s := scan("3.14 -.5 4. +2", Config{})
	if tok := next(t, s); tok.IsInt || tok.Float != 3.14 {
		t.Fatalf("want 3.14, got %+v", tok)
	}
	if tok := next(t, s); tok.IsInt || tok.Float != -0.5 {
		t.Fatalf("want -0.5, got %+v", tok)
	}
	if tok := next(t, s); tok.IsInt || tok.Float != 4 {
		t.Fatalf("want 4.0, got %+v", tok)
	}
	if tok := next(t, s); !tok.IsInt || tok.Int != 2 {
		t.Fatalf("want 2, got %+v", tok)
	}
}

func TestLiteralStringEscapes(t *testing.T) {
	s := scan(`(a\(b\)c\\d\n\101 nested (parens) too)`, Config{})
	tok := next(t, s)
	if tok.Type != TokenString {
		t.Fatalf("want string, got %+v", tok)
	}
	want := "a(b)c\\d\nA nested (parens) too"
	if string(tok.Bytes) != want {
		t.Errorf("got %q, want %q", tok.Bytes, want)
	}
}

func TestLiteralStringLineContinuation(t *testing.T) {
	s := scan("(split\\\nline)", Config{})
	tok := next(t, s)
	if string(tok.Bytes) != "splitline" {
		t.Errorf("got %q", tok.Bytes)
	}
}

func TestHexString(t *testing.T) {
	s := scan("<48 65 6C6C 6F> <48656C6C6F2>", Config{})
	tok := next(t, s)
	if tok.Type != TokenString || !tok.Hex || string(tok.Bytes) != "Hello" {
		t.Fatalf("got %+v", tok)
	}
	// Odd nibble count pads with zero.
	tok = next(t, s)
	if string(tok.Bytes) != "Hello " {
		t.Errorf("odd-length hex gave %q", tok.Bytes)
	}
}

func TestNameHexEscape(t *testing.T) {
	s := scan("/A#20B /Lime#20Green", Config{})
	if tok := next(t, s); tok.Str != "A B" {
		t.Errorf("got %q", tok.Str)
	}
	if tok := next(t, s); tok.Str != "Lime Green" {
		t.Errorf("got %q", tok.Str)
	}
}

func TestStreamWithLengthHint(t *testing.T) {
	data := "<< /Length 11 >> stream\nhello world\nendstream extra"
	s := scan(data, Config{})
	// Consume the dictionary tokens.
	for i := 0; i < 4; i++ {
		next(t, s)
	}
	s.SetNextStreamLength(11)
	tok := next(t, s)
	if tok.Type != TokenStream || string(tok.Bytes) != "hello world" {
		t.Fatalf("got %+v", tok)
	}
	if tok = next(t, s); tok.Type != TokenKeyword || tok.Str != "extra" {
		t.Fatalf("scanner not positioned after endstream: %+v", tok)
	}
}

func TestStreamWithoutLengthSearchesEndstream(t *testing.T) {
	s := scan("stream\nsome\nbinary endstream-ish data\nendstream", Config{})
	tok := next(t, s)
	if tok.Type != TokenStream {
		t.Fatalf("got %+v", tok)
	}
	if string(tok.Bytes) != "some\nbinary endstream-ish data" {
		t.Errorf("payload %q", tok.Bytes)
	}
}

func TestCommentsSkipped(t *testing.T) {
	s := scan("% a comment\n42 % trailing\n/Name", Config{})
	if tok := next(t, s); tok.Int != 42 {
		t.Fatalf("got %+v", tok)
	}
	if tok := next(t, s); tok.Str != "Name" {
		t.Fatalf("got %+v", tok)
	}
}

func TestSmallWindowStillScans(t *testing.T) {
	s := scan("<< /Kids [1 0 R 2 0 R] /Count 2 >>", Config{WindowSize: 4})
	count := 0
	for {
		_, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != 9 {
		t.Errorf("token count = %d, want 9", count)
	}
}

func TestUnterminatedStringStrictFails(t *testing.T) {
	s := scan("(never closed", Config{Recovery: recovery.NewStrict()})
	if _, err := s.Next(); err == nil {
		t.Error("strict recovery should fail on unterminated string")
	}
}

func TestUnterminatedStringLenientFixes(t *testing.T) {
	lenient := recovery.NewLenient()
	s := scan("(never closed", Config{Recovery: lenient})
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("lenient recovery should continue: %v", err)
	}
	if string(tok.Bytes) != "never closed" {
		t.Errorf("payload %q", tok.Bytes)
	}
	if len(lenient.Errors) == 0 {
		t.Error("lenient strategy should have recorded the problem")
	}
}

func TestDepthLimit(t *testing.T) {
	s := scan("[[[[[", Config{MaxArrayDepth: 3, Recovery: recovery.NewStrict()})
	var err error
	for i := 0; i < 5 && err == nil; i++ {
		_, err = s.Next()
	}
	if err == nil {
		t.Error("expected array depth failure")
	}
}

func TestSeekTo(t *testing.T) {
	s := scan("ignored 99 /Target", Config{})
	if err := s.SeekTo(8); err != nil {
		t.Fatal(err)
	}
	if tok := next(t, s); tok.Int != 99 {
		t.Fatalf("got %+v", tok)
	}
	if err := s.SeekTo(-1); err == nil {
		t.Error("negative seek should fail")
	}
}
