package registry

import (
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shenyu-register/xerrors"
)

func TestNormalizeForDNS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My App!!Name-1", "My-App-Name-1"},
		{"demo", "demo"},
		{"order_service.v2", "order-service-v2"},
		{"a--__--b", "a-b"},
		{"服务 名称1", "服务-名称1"},
		{"x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeForDNS(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeForDNS_Invalid(t *testing.T) {
	for _, in := range []string{"", "1abc", "abc_", "-abc", "abc ", "_"} {
		t.Run(in, func(t *testing.T) {
			_, err := NormalizeForDNS(in)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
			assert.Equal(t, CodeValidation, xerrors.GetCode(err))
		})
	}
}

func TestNormalizeForDNS_Properties(t *testing.T) {
	inputs := []string{"a b c", "A!!!!!!!1", "svc.order/v1:8080x", "Ünïcode~~~Näme9", "a\t\n b"}
	for _, in := range inputs {
		out, err := NormalizeForDNS(in)
		require.NoError(t, err, in)

		var kept, orig []rune
		prevSep := false
		for _, r := range out {
			if r == DNSSeparator {
				assert.False(t, prevSep, "consecutive separators in %q", out)
				prevSep = true
				continue
			}
			assert.True(t, unicode.IsLetter(r) || unicode.IsDigit(r), "unexpected rune %q in %q", r, out)
			prevSep = false
			kept = append(kept, r)
		}
		for _, r := range in {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				orig = append(orig, r)
			}
		}
		assert.Equal(t, string(orig), string(kept), "letters and digits must be preserved in order")
		assert.NotEqual(t, DNSSeparator, []rune(out)[0])
		assert.NotEqual(t, DNSSeparator, []rune(out)[len([]rune(out))-1])
	}
}
