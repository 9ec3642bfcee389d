package certcode

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codeShape = regexp.MustCompile(`^CERT-[0-9A-HJKMNP-TV-Z]{4}-[0-9A-HJKMNP-TV-Z]{4}-[0-9A-HJKMNP-TV-Z]{4}-[0-9A-HJKMNP-TV-Z]$`)

func TestGenerate_Shape(t *testing.T) {
	g := New()
	code, err := g.Generate()
	require.NoError(t, err)

	assert.Regexp(t, codeShape, code)

	canonical, ok := Validate(code)
	assert.True(t, ok)
	assert.Equal(t, code, canonical)
}

func TestGenerate_Unique(t *testing.T) {
	g := New()
	seen := make(map[string]struct{}, 2000)
	for i := 0; i < 2000; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

func TestGenerate_DeterministicWithFixedRandom(t *testing.T) {
	src := bytes.Repeat([]byte{0x01}, bodyLength)
	g := New(WithRandom(bytes.NewReader(src)))

	code, err := g.Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "CERT-1111-1111-1111-"))
}

func TestGenerate_ShortRandom(t *testing.T) {
	g := New(WithRandom(bytes.NewReader([]byte{1, 2, 3})))
	_, err := g.Generate()
	assert.Error(t, err)
}

func TestWithPrefix(t *testing.T) {
	g := New(WithPrefix(" academy "))
	code, err := g.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(code, "ACADEMY-"))
	_, ok := Validate(code)
	assert.True(t, ok)
}

func TestValidate_AcceptsSloppyInput(t *testing.T) {
	code, err := New().Generate()
	require.NoError(t, err)

	sloppy := strings.ToLower(code)
	canonical, ok := Validate(sloppy)
	assert.True(t, ok)
	assert.Equal(t, code, canonical)
}

func TestValidate_RejectsTypos(t *testing.T) {
	code, err := New().Generate()
	require.NoError(t, err)

	// Flip the checksum character to a different symbol.
	last := code[len(code)-1]
	replacement := byte('0')
	if last == '0' {
		replacement = '1'
	}
	tampered := code[:len(code)-1] + string(replacement)

	_, ok := Validate(tampered)
	assert.False(t, ok)
}

func TestValidate_RejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"CERT",
		"CERT-1234-5678-9ABC",
		"CERT-12345-678-9ABC-0",
		"CERT-UUUU-5678-9ABC-0",
		"-1234-5678-9ABC-0",
	} {
		_, ok := Validate(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "0111", Normalize(" oIl1 "))
}
