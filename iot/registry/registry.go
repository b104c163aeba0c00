/*Package registry looks up the keys of registered devices

The broker needs a device's key to verify the SAS token the device presents, and the
credentials API needs it to issue tokens. Keys are Base64 encoded, exactly as the
device itself holds them.

Two registries are provided: Memory, optionally loaded from a JSON document like

	{
	  "devices": [
	    {"device_id": "dev1", "key": "dGVzdGtleQ=="}
	  ]
	}

and SQL, which reads the table {schema}.device_key of a postgres database.
*/
package registry

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/goccy/go-json"
	"github.com/relabs-tech/sastoken/core/schema"
)

// ErrUnknownDevice is returned for devices which are not registered
var ErrUnknownDevice = errors.New("unknown device")

// Registry returns the Base64 encoded key of a device
type Registry interface {
	DeviceKey(ctx context.Context, deviceID string) (string, error)
}

const devicesSchemaID = "https://relabs.tech/sastoken/devices.json"

//go:embed schemas/*.json
var schemasFS embed.FS

var validator = func() *schema.Validator {
	sub, err := fs.Sub(schemasFS, "schemas")
	if err != nil {
		panic(err)
	}
	v, err := schema.NewValidatorFromFS(sub)
	if err != nil {
		panic(err)
	}
	return v
}()

// Memory is an in-memory registry. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemory returns an empty memory registry
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]string)}
}

// Device is an entry of the JSON device document
type Device struct {
	DeviceID string `json:"device_id"`
	Key      string `json:"key"`
}

// LoadJSON returns a memory registry with the devices of a JSON document. The document
// is validated against the devices schema first.
func LoadJSON(data []byte) (*Memory, error) {
	if err := validator.ValidateBytes(data, devicesSchemaID); err != nil {
		return nil, err
	}
	var doc struct {
		Devices []Device `json:"devices"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse devices: %w", err)
	}
	m := NewMemory()
	for _, d := range doc.Devices {
		if _, ok := m.keys[d.DeviceID]; ok {
			return nil, fmt.Errorf("device %q is listed twice", d.DeviceID)
		}
		m.Put(d.DeviceID, d.Key)
	}
	return m, nil
}

// Put registers or replaces a device key
func (m *Memory) Put(deviceID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[deviceID] = key
}

// Delete removes a device
func (m *Memory) Delete(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, deviceID)
}

// Len returns the number of registered devices
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// DeviceKey implements Registry
func (m *Memory) DeviceKey(ctx context.Context, deviceID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[deviceID]
	if !ok {
		return "", fmt.Errorf("%q: %w", deviceID, ErrUnknownDevice)
	}
	return key, nil
}
