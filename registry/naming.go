package registry

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ceyewan/shenyu-register/xerrors"
)

// DNSSeparator 规范化时替换非字母数字字符的分隔符
const DNSSeparator = '-'

// NormalizeForDNS 把任意服务名转换为可作为注册中心标识的字符串
//
// 输入必须以字母开头、以字母或数字结尾；连续的非字母数字字符折叠为一个 '-'。
//
//	NormalizeForDNS("My App!!Name-1") // "My-App-Name-1"
func NormalizeForDNS(s string) (string, error) {
	if s == "" {
		return "", xerrors.Wrap(ErrValidation, "name must not be empty")
	}
	first, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsLetter(first) {
		return "", xerrors.Wrapf(ErrValidation, "name %q must start with a letter", s)
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	if !isLetterOrDigit(last) {
		return "", xerrors.Wrapf(ErrValidation, "name %q must end with a letter or digit", s)
	}

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		if !isLetterOrDigit(r) {
			pendingSep = true
			continue
		}
		if pendingSep {
			b.WriteRune(DNSSeparator)
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

func isLetterOrDigit(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
