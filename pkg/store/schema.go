package store

import (
	"fmt"

	"adcprecorder/pkg/logger"
)

// schemaVersion identifies the current on-disk key layout. Bump this and
// extend EnsureSchema whenever the key format in keys.go changes.
const schemaVersion = "1"

const schemaVersionKey = "schema_version"

// EnsureSchema runs an idempotent, version-gated startup check: on a fresh
// database it stamps the current schema version; on an existing database
// it verifies the stored version matches what this binary expects. It is
// the recorder's equivalent of the teacher's progressor.Run version gate,
// scoped to a single keyspace layout rather than multi-step migrations,
// since the recorder has never shipped an incompatible key format yet.
func EnsureSchema() error {
	stored, err := GetKey(sysKey(schemaVersionKey))
	if err != nil {
		if !IsNotFound(err) {
			return fmt.Errorf("reading schema version: %w", err)
		}
		if err := SaveKey(sysKey(schemaVersionKey), []byte(schemaVersion)); err != nil {
			return fmt.Errorf("stamping schema version: %w", err)
		}
		logger.Info("schema_initialized", "version", schemaVersion)
		return nil
	}
	if stored != schemaVersion {
		return fmt.Errorf("on-disk schema version %q is incompatible with this binary's version %q", stored, schemaVersion)
	}
	logger.Debug("schema_version_ok", "version", schemaVersion)
	return nil
}
