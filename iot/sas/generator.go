package sas

import (
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/sastoken/core/clock"
)

const (
	// DefaultLeadSeconds is the usual lead time for IsExpiringSoon
	DefaultLeadSeconds = 300

	// signatureBaseSize is the capacity for the canonical string
	signatureBaseSize = 256
	// encodedSignatureSize is the capacity for the Base64 encoded digest
	encodedSignatureSize = 256
)

// Client is the broker client which knows how the broker wants its credentials
// formatted. Both methods write into dst and return the number of bytes written.
// They must return an error wrapping ErrCapacityExceeded if dst is too small.
type Client interface {
	// SignatureBase writes the canonical string "resource\nexpiry" to be signed
	SignatureBase(dst []byte, expiry uint64) (int, error)
	// Password writes the final credential which embeds the Base64 signature, the
	// expiry and the optional key name.
	Password(dst []byte, expiry uint64, signature []byte, keyName string) (int, error)
}

// Generator produces time-bounded SAS tokens for a single device.
//
// The device key and both buffers are owned by the caller and must outlive the
// generator. A Generator is not safe for concurrent use.
type Generator struct {
	client    Client
	deviceKey []byte
	signature []byte
	token     []byte
	keyName   string
	clock     clock.Clock

	// staging receives the password; it is copied to token only on success
	staging []byte
	base    [signatureBaseSize]byte
	encoded [encodedSignatureSize]byte

	tokenLen   int
	expiration uint64
}

// Builder is a builder helper for the Generator
type Builder struct {
	// Client formats the canonical string and the password. This is mandatory.
	Client Client
	// DeviceKey is the Base64 encoded device key. It is never modified. This is mandatory.
	DeviceKey []byte
	// SignatureBuffer is scratch space for the decoded key and the digest. It must
	// hold at least the decoded key and no less than DigestSize bytes.
	SignatureBuffer []byte
	// TokenBuffer receives the token. This is mandatory.
	TokenBuffer []byte
	// KeyName is the optional shared access policy name. Device keys have none.
	KeyName string
	// Clock is optional, the default is the wall clock
	Clock clock.Clock
}

// NewGenerator returns a new generator without a token.
func NewGenerator(b *Builder) *Generator {
	if b.Client == nil {
		panic("Client is missing")
	}
	if len(b.TokenBuffer) == 0 {
		panic("TokenBuffer is missing")
	}
	c := b.Clock
	if c == nil {
		c = clock.Real()
	}
	return &Generator{
		client:    b.Client,
		deviceKey: b.DeviceKey,
		signature: b.SignatureBuffer,
		token:     b.TokenBuffer,
		keyName:   b.KeyName,
		clock:     c,
		staging:   make([]byte, len(b.TokenBuffer)),
	}
}

// Generate creates a new token valid for validityMinutes. On success the token is
// available with Get and the expiration moves forward. On failure both the current
// token and its expiration remain untouched.
func (g *Generator) Generate(validityMinutes uint) error {
	if validityMinutes == 0 {
		return fmt.Errorf("validity must be at least one minute: %w", ErrMalformedInput)
	}
	now := g.now()
	if uint64(validityMinutes) > (math.MaxInt64-now)/60 {
		return fmt.Errorf("validity of %d minutes overflows the expiry: %w", validityMinutes, ErrMalformedInput)
	}
	expiry := now + uint64(validityMinutes)*60

	n, err := g.client.SignatureBase(g.base[:], expiry)
	if err != nil {
		return upstream("signature base", err)
	}
	base := g.base[:n]

	keyLen, err := decodeInto(g.signature, g.deviceKey)
	if err != nil {
		return fmt.Errorf("decode device key: %w", err)
	}
	if len(g.signature) < DigestSize {
		clear(g.signature[:keyLen])
		return fmt.Errorf("signature buffer has %d bytes, digest needs %d: %w",
			len(g.signature), DigestSize, ErrCapacityExceeded)
	}

	digest := (*[DigestSize]byte)(g.signature[:DigestSize])
	sign(g.signature[:keyLen], base, digest)
	if keyLen > DigestSize {
		clear(g.signature[DigestSize:keyLen])
	}

	m, err := encodeInto(g.encoded[:], digest[:])
	if err != nil {
		return fmt.Errorf("encode signature: %w", err)
	}

	p, err := g.client.Password(g.staging, expiry, g.encoded[:m], g.keyName)
	if err != nil {
		return upstream("password", err)
	}

	g.tokenLen = copy(g.token, g.staging[:p])
	g.expiration = expiry
	return nil
}

// Get returns the current token. The returned slice points into the token buffer
// and is overwritten by the next successful Generate. It is empty before the first
// successful Generate.
func (g *Generator) Get() []byte {
	return g.token[:g.tokenLen:g.tokenLen]
}

// IsExpired returns true if the current token has expired, or if there is none
func (g *Generator) IsExpired() bool {
	return g.now() >= g.expiration
}

// IsExpiringSoon returns true if the current token expires within leadSeconds
func (g *Generator) IsExpiringSoon(leadSeconds uint) bool {
	now := g.now()
	return now >= g.expiration || uint64(leadSeconds) >= g.expiration-now
}

// Expiration returns the expiry of the current token, or the zero time if there is none
func (g *Generator) Expiration() time.Time {
	if g.expiration == 0 {
		return time.Time{}
	}
	return time.Unix(int64(g.expiration), 0)
}

func (g *Generator) now() uint64 {
	now := g.clock.Now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}
