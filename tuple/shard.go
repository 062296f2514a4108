package tuple

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/on-the-ground/automemo/weakref"
)

func hash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// shardIndex picks the trie shard for a tuple from its first part. Equal parts
// must always land on the same shard.
func shardIndex(parts []any, numShards int) int {
	switch {
	case numShards == 0:
		panic("number of shards cannot be 0")
	case numShards == 1, len(parts) == 0:
		return 0
	default:
		return int(hash(partitionKey(parts[0])) % uint64(numShards))
	}
}

// partitionKey renders a part cheaply and canonically: references by address,
// basic values by value, and everything else by type alone.
func partitionKey(v any) string {
	if v == nil {
		return ""
	}
	if weakref.IsReference(v) {
		return fmt.Sprintf("%T@%p", v, v)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		switch {
		case f == 0:
			return "0"
		case math.IsNaN(f):
			return "NaN"
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprintf("%T", v)
}
