package utils

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("user@example.com"))
	assert.True(t, IsValidEmail("  first.last+x@sub.example.org "))
	for _, bad := range []string{"", "user", "user@", "@example.com", "user@example", "a b@example.com"} {
		assert.False(t, IsValidEmail(bad), bad)
	}
}

func TestIsValidHandle(t *testing.T) {
	assert.True(t, IsValidHandle("@user_name"))
	assert.True(t, IsValidHandle("username1"))
	for _, bad := range []string{"", "@abc", "user-name", "@" + string(make([]byte, 40)), "имя_пользователя"} {
		assert.False(t, IsValidHandle(bad), bad)
	}
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "@user_name", NormalizeHandle(" user_name "))
	assert.Equal(t, "@user_name", NormalizeHandle("@user_name"))
	assert.Equal(t, "", NormalizeHandle(" @ "))
}

func TestMaskContact(t *testing.T) {
	assert.Equal(t, "u***@e***.com", MaskContact("user@example.com"))
	assert.Equal(t, "***@e***.com", MaskContact("u@example.com"))
	assert.Equal(t, "@u******", MaskContact("@username_long"))
	assert.Equal(t, "@h****", MaskContact("hello"))
	assert.Equal(t, "@***", MaskContact(""))
}

func TestMask_MultiByteFirstCharacter(t *testing.T) {
	email := MaskEmail("élodie@ünicode.fr")
	assert.Equal(t, "é***@ü***.fr", email)
	assert.True(t, utf8.ValidString(email))

	handle := MaskHandle("@Жанна")
	assert.Equal(t, "@Ж****", handle)
	assert.True(t, utf8.ValidString(handle))

	assert.Equal(t, "***@ä***", MaskEmail("x@äb"))
}
