package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"leanpdf/object"
)

// serialize renders one object body. Dictionary keys come out sorted
// so a given store always serializes to the same bytes.
func serialize(o object.Object) []byte {
	switch v := o.(type) {
	case object.Name:
		return []byte("/" + nameLiteral(string(v)))
	case object.Integer:
		return []byte(strconv.FormatInt(int64(v), 10))
	case object.Real:
		return []byte(formatReal(float64(v)))
	case object.Bool:
		if v {
			return []byte("true")
		}
		return []byte("false")
	case object.Null:
		return []byte("null")
	case object.String:
		if v.Hex {
			dst := make([]byte, hex.EncodedLen(len(v.Data)))
			hex.Encode(dst, v.Data)
			return []byte("<" + strings.ToUpper(string(dst)) + ">")
		}
		return escapeLiteralString(v.Data)
	case object.Reference:
		return []byte(fmt.Sprintf("%d %d R", v.Ref.Num, v.Ref.Gen))
	case *object.Array:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(serialize(item))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *object.Dict:
		return serializeDict(v)
	case *object.Stream:
		var b bytes.Buffer
		v.Dict.Set("Length", object.Integer(len(v.Raw)))
		b.Write(serializeDict(v.Dict))
		b.WriteString("\nstream\n")
		b.Write(v.Raw)
		b.WriteString("\nendstream")
		return b.Bytes()
	default:
		return []byte("null")
	}
}

func serializeDict(d *object.Dict) []byte {
	var b bytes.Buffer
	b.WriteString("<<")
	for _, key := range d.SortedKeys() {
		b.WriteString(" /" + nameLiteral(string(key)) + " ")
		val, _ := d.Get(key)
		b.Write(serialize(val))
	}
	b.WriteString(" >>")
	return b.Bytes()
}

func escapeLiteralString(raw []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range raw {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// nameLiteral hash-escapes the delimiters and whitespace a name may
// carry. Names already containing escapes pass through.
func nameLiteral(value string) string {
	if strings.Contains(value, "#") {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x21 && ch < 0x7F && !strings.ContainsRune("()<>[]{}/%#", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

// formatReal keeps the minimal decimal form; trailing zeros and a bare
// trailing point are trimmed.
func formatReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 5, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// groupConsecutive splits sorted object numbers into the contiguous
// runs a classic xref section lists as subsections.
func groupConsecutive(nums []int) [][]int {
	if len(nums) == 0 {
		return nil
	}
	sort.Ints(nums)
	var groups [][]int
	start := 0
	for i := 1; i <= len(nums); i++ {
		if i == len(nums) || nums[i] != nums[i-1]+1 {
			groups = append(groups, nums[start:i])
			start = i
		}
	}
	return groups
}
