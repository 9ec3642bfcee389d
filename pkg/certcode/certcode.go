// Package certcode generates and validates public certificate codes.
//
// A code looks like CERT-7K2M-Q9XD-4TRB-H. The twelve body characters are
// random Crockford base32 (60 bits). The final character is a checksum over the
// prefix and body taken from BLAKE2b, so a mistyped code is rejected before any
// lookup. Codes carry no information about the learner or the course.
package certcode

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// DefaultPrefix is prepended to every code.
const DefaultPrefix = "CERT"

const (
	alphabet   = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	groups     = 3
	groupSize  = 4
	bodyLength = groups * groupSize
)

// Generator creates codes with a fixed prefix.
type Generator struct {
	prefix string
	rand   io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithPrefix overrides DefaultPrefix. The prefix is upper-cased.
func WithPrefix(prefix string) Option {
	return func(g *Generator) {
		if p := strings.ToUpper(strings.TrimSpace(prefix)); p != "" {
			g.prefix = p
		}
	}
}

// WithRandom overrides the entropy source. Tests only.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.rand = r
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{prefix: DefaultPrefix, rand: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh code.
func (g *Generator) Generate() (string, error) {
	raw := make([]byte, bodyLength)
	if _, err := io.ReadFull(g.rand, raw); err != nil {
		return "", fmt.Errorf("certcode: read random: %w", err)
	}

	body := make([]byte, bodyLength)
	for i, b := range raw {
		body[i] = alphabet[b&0x1f]
	}

	var sb strings.Builder
	sb.WriteString(g.prefix)
	for i := 0; i < groups; i++ {
		sb.WriteByte('-')
		sb.Write(body[i*groupSize : (i+1)*groupSize])
	}
	sb.WriteByte('-')
	sb.WriteByte(checksum(g.prefix, string(body)))
	return sb.String(), nil
}

// Normalize upper-cases a typed code, drops spaces and maps the Crockford
// look-alikes O to 0 and I, L to 1. It does not validate.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t':
			return -1
		case 'O':
			return '0'
		case 'I', 'L':
			return '1'
		}
		return r
	}, code)
}

// Validate normalizes code and checks its shape and checksum. It returns the
// canonical form on success.
func Validate(code string) (string, bool) {
	parts := strings.Split(code, "-")
	if len(parts) != groups+2 {
		return "", false
	}

	// The prefix keeps its letters; only the body and checksum are normalized.
	prefix := strings.ToUpper(strings.TrimSpace(parts[0]))
	if prefix == "" {
		return "", false
	}

	var body strings.Builder
	for _, group := range parts[1 : groups+1] {
		group = Normalize(group)
		if len(group) != groupSize || !inAlphabet(group) {
			return "", false
		}
		body.WriteString(group)
	}

	check := Normalize(parts[groups+1])
	if len(check) != 1 || !inAlphabet(check) {
		return "", false
	}
	if check[0] != checksum(prefix, body.String()) {
		return "", false
	}

	b := body.String()
	return fmt.Sprintf("%s-%s-%s-%s-%s", prefix, b[0:4], b[4:8], b[8:12], check), true
}

func inAlphabet(s string) bool {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

func checksum(prefix, body string) byte {
	sum := blake2b.Sum256([]byte(prefix + ":" + body))
	return alphabet[sum[0]&0x1f]
}
