package compiler

import (
	"strings"

	"github.com/chazu/datex/pkg/dxerr"
)

// unescape resolves backslash escapes in string literals:
// \b \f \n \r \t \v, octal \0 .. \377, \uXXXX and \xXX. Any other escaped
// character stands for itself.
func unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	src := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '\\' || i+1 >= len(src) || src[i+1] == '\n' {
			sb.WriteRune(c)
			continue
		}
		i++
		switch c = src[i]; c {
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'v':
			sb.WriteByte('\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			n, code := octal(src[i:])
			sb.WriteRune(rune(code))
			i += n - 1
		case 'u':
			code, ok := hexDigits(src[i+1:], 4)
			if !ok {
				return "", escapeError("Invalid Unicode escape sequence", src[i-1:])
			}
			sb.WriteRune(rune(code))
			i += 4
		case 'x':
			code, ok := hexDigits(src[i+1:], 2)
			if !ok {
				return "", escapeError("Invalid hexadecimal escape sequence", src[i-1:])
			}
			sb.WriteRune(rune(code))
			i += 2
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String(), nil
}

func escapeError(msg string, at []rune) error {
	if len(at) > 6 {
		at = at[:6]
	}
	return &dxerr.SyntaxError{Msg: msg, Near: string(at)}
}

// octal reads up to three octal digits; three only if the value stays
// below 256.
func octal(r []rune) (n, code int) {
	for n < len(r) && n < 3 && r[n] >= '0' && r[n] <= '7' {
		next := code*8 + int(r[n]-'0')
		if next > 255 {
			break
		}
		code = next
		n++
	}
	return n, code
}

func hexDigits(r []rune, n int) (int, bool) {
	if len(r) < n {
		return 0, false
	}
	code := 0
	for _, c := range r[:n] {
		switch {
		case c >= '0' && c <= '9':
			code = code*16 + int(c-'0')
		case c >= 'a' && c <= 'f':
			code = code*16 + int(c-'a'+10)
		case c >= 'A' && c <= 'F':
			code = code*16 + int(c-'A'+10)
		default:
			return 0, false
		}
	}
	return code, true
}
