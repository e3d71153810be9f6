package client

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/worldsync/internal/core/geom"
)

// Fingerprint hashes an appearance so unchanged equipment is not reapplied.
func Fingerprint(equipment []string, colors []geom.Color) uint64 {
	d := xxhash.New()
	var buf [12]byte
	for _, e := range equipment {
		_, _ = d.WriteString(e)
		_, _ = d.Write([]byte{0})
	}
	_, _ = d.Write([]byte{0xff})
	for _, c := range colors {
		binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(c.R))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(c.G))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(c.B))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
