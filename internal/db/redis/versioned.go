package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/creditgate/internal/db"
)

// Records are hashes {v: version, d: payload}.
const (
	fieldVersion = "v"
	fieldData    = "d"
)

// casScript writes ARGV[2] iff the stored version equals ARGV[1].
// A missing key has version 0.
var casScript = rueidis.NewLuaScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur == false then cur = '0' end
if cur ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'v', tostring(tonumber(ARGV[1]) + 1), 'd', ARGV[2])
return 1
`)

// GetVersioned returns the payload and version stored at key.
func (s *Store) GetVersioned(ctx context.Context, key string) ([]byte, uint64, error) {
	cmd := s.b().Hmget().Key(key).Field(fieldVersion, fieldData).Build()
	vals, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, 0, &db.Error{Op: db.OpHMGet, Err: err}
	}
	if len(vals) != 2 || vals[0].IsNil() {
		return nil, 0, db.ErrKeyNotFound
	}

	rawVer, err := vals[0].ToString()
	if err != nil {
		return nil, 0, &db.Error{Op: db.OpHMGet, Err: err}
	}
	ver, err := strconv.ParseUint(rawVer, 10, 64)
	if err != nil {
		return nil, 0, &db.Error{Op: db.OpHMGet, Err: fmt.Errorf("version %q: %w", rawVer, db.ErrCorruptRecord)}
	}

	var data []byte
	if !vals[1].IsNil() {
		data, err = vals[1].AsBytes()
		if err != nil {
			return nil, 0, &db.Error{Op: db.OpHMGet, Err: err}
		}
	}
	return data, ver, nil
}

// CompareAndSwap atomically replaces the payload when version matches.
func (s *Store) CompareAndSwap(ctx context.Context, key string, version uint64, value []byte) error {
	res := casScript.Exec(ctx, s.client, []string{key}, []string{
		strconv.FormatUint(version, 10),
		string(value),
	})
	swapped, err := res.AsInt64()
	if err != nil {
		return &db.Error{Op: db.OpCAS, Err: err}
	}
	if swapped != 1 {
		return db.ErrVersionConflict
	}
	return nil
}
