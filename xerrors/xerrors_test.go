package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	require.Error(t, wrapped)
	assert.Equal(t, "context: base error", wrapped.Error())
	assert.True(t, errors.Is(wrapped, base))
}

func TestWrapf(t *testing.T) {
	assert.Nil(t, Wrapf(nil, "path %s", "/a"))

	wrapped := Wrapf(ErrNotFound, "path %s", "/shenyu/register")
	assert.Equal(t, "path /shenyu/register: not found", wrapped.Error())
	assert.True(t, Is(wrapped, ErrNotFound))
}

func TestWithCode(t *testing.T) {
	assert.Nil(t, WithCode(nil, "CONFIG"))

	coded := WithCode(ErrInvalidInput, "CONFIG")
	assert.Equal(t, "[CONFIG] invalid input", coded.Error())
	assert.Equal(t, "CONFIG", GetCode(coded))

	// 包装后依然可以提取错误码
	wrapped := Wrap(coded, "init registrar")
	assert.Equal(t, "CONFIG", GetCode(wrapped))
	assert.True(t, Is(wrapped, ErrInvalidInput))

	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestCombine(t *testing.T) {
	assert.Nil(t, Combine(nil, nil))

	e1 := errors.New("first")
	assert.Equal(t, e1, Combine(nil, e1))

	e2 := errors.New("second")
	combined := Combine(e1, nil, e2)
	require.Error(t, combined)
	assert.Equal(t, "first (and 1 more errors)", combined.Error())
	assert.True(t, errors.Is(combined, e2))
}
