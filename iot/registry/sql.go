package registry

import (
	"context"
	"fmt"

	"github.com/relabs-tech/sastoken/core/csql"
)

// SQL is a registry backed by postgres
type SQL struct {
	db *csql.DB
}

// NewSQL returns a postgres registry. It creates the table device_key in the
// database's schema if it does not exist.
func NewSQL(db *csql.DB) *SQL {
	if db == nil {
		panic("DB is missing")
	}
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Table("device_key") + `
(device_id varchar PRIMARY KEY,
key varchar NOT NULL,
created_at timestamp NOT NULL DEFAULT now()
);`)
	if err != nil {
		panic(err)
	}
	return &SQL{db: db}
}

// Put registers or replaces a device key
func (s *SQL) Put(ctx context.Context, deviceID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.db.Table("device_key")+`(device_id, key) VALUES($1, $2)
		ON CONFLICT (device_id) DO UPDATE SET key=$2;`, deviceID, key)
	return err
}

// DeviceKey implements Registry
func (s *SQL) DeviceKey(ctx context.Context, deviceID string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT key FROM `+s.db.Table("device_key")+` WHERE device_id=$1;`, deviceID).Scan(&key)
	if err == csql.ErrNoRows {
		return "", fmt.Errorf("%q: %w", deviceID, ErrUnknownDevice)
	}
	if err != nil {
		return "", err
	}
	return key, nil
}
