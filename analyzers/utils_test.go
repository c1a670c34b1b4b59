package analyzers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileRegularExpression(t *testing.T) {
	re, err := CompileRegularExpression("evil", []string{"IGNORECASE"})
	assert.NoError(t, err)
	assert.True(t, re.MatchString("EvIl"))

	re, err = CompileRegularExpression("^b", []string{"re.MULTILINE"})
	assert.NoError(t, err)
	assert.True(t, re.MatchString("a\nb"))

	re, err = CompileRegularExpression("a.b", []string{"DOTALL"})
	assert.NoError(t, err)
	assert.True(t, re.MatchString("a\nb"))

	// ASCII is the default mode and compiles to the same program.
	_, err = CompileRegularExpression("foo", []string{"ASCII"})
	assert.NoError(t, err)

	_, err = CompileRegularExpression("foo", []string{"VERBOSE"})
	assert.Error(t, err)

	_, err = CompileRegularExpression("foo", []string{"LOCALE"})
	assert.Error(t, err)

	_, err = CompileRegularExpression("", nil)
	assert.Error(t, err)
}

func TestGetDomain(t *testing.T) {
	assert.Equal(t, "www.example.com",
		GetDomain("https://www.example.com/path?q=1"))
	assert.Equal(t, "example.com",
		GetDomain("http://user@example.com:8080/x"))
	assert.Equal(t, "mail.google.com",
		GetDomain("mail.google.com/mail/u/0/#search/foo"))
}

func TestGetTLD(t *testing.T) {
	assert.Equal(t, "example.com",
		GetTLD("https://www.example.com/path"))
	assert.Equal(t, "example.co.uk",
		GetTLD("http://foo.bar.example.co.uk/"))
	assert.Equal(t, "example.github.io",
		GetTLD("https://example.github.io/page"))
}

func TestStripWWW(t *testing.T) {
	assert.Equal(t, "example.com", StripWWW("www.example.com"))
	assert.Equal(t, "example.com", StripWWW("example.com"))
}
