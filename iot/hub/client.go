package hub

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/relabs-tech/sastoken/iot/sas"
)

// APIVersion is the service API version announced in the MQTT user name
const APIVersion = "2020-09-30"

// ErrIdentityMissing is returned when the client has no hostname or device id
var ErrIdentityMissing = errors.New("hostname and device id are required")

// Client is the broker client for one device or module identity
type Client struct {
	// Hostname of the hub, e.g. "myhub.azure-devices.net"
	Hostname string
	// DeviceID is the device identity
	DeviceID string
	// ModuleID is optional
	ModuleID string
}

var _ sas.Client = (*Client)(nil)

// SignatureBase writes the URL encoded resource URI, a newline and the expiry
func (c *Client) SignatureBase(dst []byte, expiry uint64) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	w := writer{dst: dst}
	c.resource(&w)
	w.writeByte('\n')
	w.writeUint(expiry)
	return w.result("signature base")
}

// Password writes the SAS token for the Base64 encoded signature. keyName is
// optional.
func (c *Client) Password(dst []byte, expiry uint64, signature []byte, keyName string) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	if len(signature) == 0 {
		return 0, errors.New("signature is empty")
	}
	w := writer{dst: dst}
	w.writeString(sas.Scheme)
	w.writeString(" sr=")
	c.resource(&w)
	w.writeString("&sig=")
	escape(&w, signature)
	w.writeString("&se=")
	w.writeUint(expiry)
	if keyName != "" {
		w.writeString("&skn=")
		escape(&w, keyName)
	}
	return w.result("password")
}

// UserName writes the MQTT user name
func (c *Client) UserName(dst []byte) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	w := writer{dst: dst}
	w.writeString(c.Hostname)
	w.writeByte('/')
	w.writeString(c.DeviceID)
	if c.ModuleID != "" {
		w.writeByte('/')
		w.writeString(c.ModuleID)
	}
	w.writeString("/?api-version=")
	w.writeString(APIVersion)
	return w.result("user name")
}

// ClientID writes the MQTT client id
func (c *Client) ClientID(dst []byte) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	w := writer{dst: dst}
	w.writeString(c.DeviceID)
	if c.ModuleID != "" {
		w.writeByte('/')
		w.writeString(c.ModuleID)
	}
	return w.result("client id")
}

// TelemetryTopic writes the topic for device-to-cloud messages
func (c *Client) TelemetryTopic(dst []byte) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	w := writer{dst: dst}
	w.writeString("devices/")
	w.writeString(c.DeviceID)
	if c.ModuleID != "" {
		w.writeString("/modules/")
		w.writeString(c.ModuleID)
	}
	w.writeString("/messages/events/")
	return w.result("telemetry topic")
}

// Resource returns the plain resource URI, as found in the sr field of a parsed token
func (c *Client) Resource() string {
	r := c.Hostname + "/devices/" + c.DeviceID
	if c.ModuleID != "" {
		r += "/modules/" + c.ModuleID
	}
	return r
}

func (c *Client) validate() error {
	if c.Hostname == "" || c.DeviceID == "" {
		return ErrIdentityMissing
	}
	return nil
}

// resource writes the URL encoded resource URI
func (c *Client) resource(w *writer) {
	escape(w, c.Hostname)
	w.writeString("%2Fdevices%2F")
	escape(w, c.DeviceID)
	if c.ModuleID != "" {
		w.writeString("%2Fmodules%2F")
		escape(w, c.ModuleID)
	}
}

// writer appends to a fixed buffer and remembers the first overflow
type writer struct {
	dst      []byte
	n        int
	overflow bool
}

func (w *writer) writeByte(c byte) {
	if w.overflow || w.n >= len(w.dst) {
		w.overflow = true
		return
	}
	w.dst[w.n] = c
	w.n++
}

func (w *writer) writeString(s string) {
	if w.overflow || len(s) > len(w.dst)-w.n {
		w.overflow = true
		return
	}
	w.n += copy(w.dst[w.n:], s)
}

func (w *writer) writeUint(v uint64) {
	var tmp [20]byte
	digits := strconv.AppendUint(tmp[:0], v, 10)
	if w.overflow || len(digits) > len(w.dst)-w.n {
		w.overflow = true
		return
	}
	w.n += copy(w.dst[w.n:], digits)
}

func (w *writer) result(what string) (int, error) {
	if w.overflow {
		return 0, fmt.Errorf("%s does not fit into %d bytes: %w", what, len(w.dst), sas.ErrCapacityExceeded)
	}
	return w.n, nil
}

const hexDigits = "0123456789ABCDEF"

// escape writes s percent-encoded. Only the unreserved characters of RFC 3986
// pass through unchanged.
func escape[T ~string | ~[]byte](w *writer, s T) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			w.writeByte(c)
			continue
		}
		w.writeByte('%')
		w.writeByte(hexDigits[c>>4])
		w.writeByte(hexDigits[c&0x0f])
	}
}

func unreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
