package sas_test

import (
	"errors"
	"testing"
	"time"

	"github.com/relabs-tech/sastoken/iot/sas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndVerify(t *testing.T) {
	g, _, _, _ := newTestGenerator(testKey, 256, 256, nil)
	require.NoError(t, g.Generate(60))

	claims, err := sas.Parse(string(g.Get()))
	require.NoError(t, err)
	assert.Equal(t, "myhub.azure-devices.net/devices/dev1", claims.Resource)
	assert.Equal(t, uint64(t0.Unix()+3600), claims.Expiry)
	assert.Equal(t, t0.Add(time.Hour), claims.ExpiresAt())
	assert.Empty(t, claims.KeyName)

	assert.NoError(t, sas.Verify(claims, testKey, t0))

	err = sas.Verify(claims, "b3RoZXJrZXk=", t0)
	assert.True(t, errors.Is(err, sas.ErrSignatureMismatch))

	err = sas.Verify(claims, testKey, t0.Add(time.Hour))
	assert.True(t, errors.Is(err, sas.ErrTokenExpired))

	err = sas.Verify(claims, "%%%", t0)
	assert.True(t, errors.Is(err, sas.ErrMalformedInput))
}

func TestVerifyDetectsTampering(t *testing.T) {
	g, _, _, _ := newTestGenerator(testKey, 256, 256, nil)
	require.NoError(t, g.Generate(60))

	claims, err := sas.Parse(string(g.Get()))
	require.NoError(t, err)
	claims.Expiry += 3600
	assert.True(t, errors.Is(sas.Verify(claims, testKey, t0), sas.ErrSignatureMismatch))
}

func TestParseKeyName(t *testing.T) {
	claims, err := sas.Parse("SharedAccessSignature se=10&skn=device&sr=a%2Fb&sig=abc%3D")
	require.NoError(t, err)
	assert.Equal(t, "a/b", claims.Resource)
	assert.Equal(t, "abc=", claims.Signature)
	assert.Equal(t, "device", claims.KeyName)
	assert.Equal(t, uint64(10), claims.Expiry)
}

func TestParseMalformed(t *testing.T) {
	for _, token := range []string{
		"",
		"sr=a&sig=b&se=1",
		"SharedAccessSignature sr=a&sig=b",
		"SharedAccessSignature sr=a&sig=b&se=soon",
		"SharedAccessSignature sr=a&sig=b&se=1&foo=bar",
		"SharedAccessSignature sr=a&sig&se=1",
		"SharedAccessSignature sr=%zz&sig=b&se=1",
	} {
		_, err := sas.Parse(token)
		assert.True(t, errors.Is(err, sas.ErrMalformedInput), "token %q", token)
	}
}
