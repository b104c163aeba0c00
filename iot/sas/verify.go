package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Scheme is the prefix of every shared access signature
const Scheme = "SharedAccessSignature"

// Claims are the fields of a parsed SAS token
type Claims struct {
	// Resource is the decoded resource URI, e.g. "myhub.azure-devices.net/devices/dev1"
	Resource string
	// Signature is the decoded Base64 signature
	Signature string
	// Expiry is the expiry in seconds since the unix epoch
	Expiry uint64
	// KeyName is the optional shared access policy name
	KeyName string

	// rawResource is the resource exactly as it appears in the token. It is part
	// of the signed string.
	rawResource string
}

// ExpiresAt returns the expiry as time
func (c *Claims) ExpiresAt() time.Time {
	return time.Unix(int64(c.Expiry), 0)
}

// Parse parses a token of the form
//
//	SharedAccessSignature sr={resource}&sig={signature}&se={expiry}[&skn={keyname}]
//
// The fields may come in any order.
func Parse(token string) (*Claims, error) {
	rest, ok := strings.CutPrefix(token, Scheme+" ")
	if !ok {
		return nil, fmt.Errorf("missing %q scheme: %w", Scheme, ErrMalformedInput)
	}

	c := &Claims{}
	var haveExpiry bool
	for _, field := range strings.Split(rest, "&") {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("field %q has no value: %w", field, ErrMalformedInput)
		}
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %v: %w", name, err, ErrMalformedInput)
		}
		switch name {
		case "sr":
			c.rawResource = value
			c.Resource = decoded
		case "sig":
			c.Signature = decoded
		case "se":
			c.Expiry, err = strconv.ParseUint(decoded, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid expiry %q: %w", decoded, ErrMalformedInput)
			}
			haveExpiry = true
		case "skn":
			c.KeyName = decoded
		default:
			return nil, fmt.Errorf("unknown field %q: %w", name, ErrMalformedInput)
		}
	}
	if c.rawResource == "" || c.Signature == "" || !haveExpiry {
		return nil, fmt.Errorf("token needs sr, sig and se: %w", ErrMalformedInput)
	}
	return c, nil
}

// Verify checks that the claims are signed with the Base64 encoded deviceKey and
// have not expired at now.
func Verify(c *Claims, deviceKey string, now time.Time) error {
	key, err := base64.StdEncoding.DecodeString(deviceKey)
	if err != nil {
		return fmt.Errorf("decode device key: %v: %w", err, ErrMalformedInput)
	}
	signature, err := base64.StdEncoding.DecodeString(c.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %v: %w", err, ErrMalformedInput)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(c.rawResource + "\n" + strconv.FormatUint(c.Expiry, 10)))
	if !hmac.Equal(mac.Sum(nil), signature) {
		return ErrSignatureMismatch
	}
	if uint64(now.Unix()) >= c.Expiry {
		return fmt.Errorf("expired at %s: %w", c.ExpiresAt().UTC().Format(time.RFC3339), ErrTokenExpired)
	}
	return nil
}
