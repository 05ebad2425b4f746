//go:build !(sqlite_vec && cgo)

package store

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"
)

// driverName selects the pure-Go modernc driver.
const driverName = "sqlite"

func init() {
	// Same name and semantics as sqlite-vec's function so queries are
	// identical under both drivers.
	_ = sqlite.RegisterDeterministicScalarFunction("vec_distance_cosine", 2, vecDistanceCosine)
}

// serializeVector encodes a vector as little-endian float32, the layout
// sqlite-vec uses for blob vectors.
func serializeVector(v []float32) ([]byte, error) {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

func vecDistanceCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_distance_cosine expects 2 arguments")
	}
	a, err := decodeFloat32(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeFloat32(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vec_distance_cosine: dimension mismatch %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return float64(1), nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

// decodeFloat32 converts supported driver.Value types into a float32 slice.
func decodeFloat32(v driver.Value) ([]float32, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vec_distance_cosine: blob length %d not multiple of 4", len(x))
		}
		out := make([]float32, len(x)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(x[i*4:]))
		}
		return out, nil
	case string:
		return decodeFloat32([]byte(x))
	default:
		return nil, fmt.Errorf("vec_distance_cosine: unsupported type %T", v)
	}
}
