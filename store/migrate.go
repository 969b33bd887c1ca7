package store

import (
	"encoding/json"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// schemaVersion is the current on-disk layout. Version 1 stored the running
// timer's last-tick instant as epoch milliseconds under "lastTickMs";
// version 2 stores it as an RFC 3339 instant under "lastTick".
const schemaVersion = 2

const schemaVersionKey = "schema_version"

// migrate runs any pending schema upgrade once at open, inside the same
// transaction that creates the buckets.
func migrate(tx *bolt.Tx) error {
	meta := tx.Bucket([]byte(metaBucket))

	version := 1
	if v := meta.Get([]byte(schemaVersionKey)); len(v) != 0 {
		parsed, err := strconv.Atoi(string(v))
		if err != nil {
			return err
		}

		version = parsed
	}

	if version < 2 {
		if err := migrateTimerLastTick(tx); err != nil {
			return err
		}
	}

	return meta.Put(
		[]byte(schemaVersionKey),
		[]byte(strconv.Itoa(schemaVersion)),
	)
}

// migrateTimerLastTick rewrites a v1 running-timer record to the current
// shape. Absent or already-current records pass through untouched.
func migrateTimerLastTick(tx *bolt.Tx) error {
	bucket := tx.Bucket([]byte(timerBucket))

	v := bucket.Get([]byte(singletonKey))
	if len(v) == 0 {
		return nil
	}

	var raw map[string]json.RawMessage

	if err := json.Unmarshal(v, &raw); err != nil {
		return err
	}

	legacy, ok := raw["lastTickMs"]
	if !ok {
		return nil
	}

	delete(raw, "lastTickMs")

	var ms *int64

	if err := json.Unmarshal(legacy, &ms); err != nil {
		return err
	}

	if ms == nil {
		raw["lastTick"] = json.RawMessage("null")
	} else {
		instant := time.UnixMilli(*ms).UTC()

		encoded, err := json.Marshal(instant)
		if err != nil {
			return err
		}

		raw["lastTick"] = encoded
	}

	updated, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	return bucket.Put([]byte(singletonKey), updated)
}
