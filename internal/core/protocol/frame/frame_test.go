package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildStream(t *testing.T, packets [][]byte) []byte {
	t.Helper()
	var stream []byte
	for _, p := range packets {
		var err error
		stream, err = Append(stream, p)
		require.NoError(t, err)
	}
	return stream
}

func collect(t *testing.T, d *Decoder, chunks [][]byte) [][]byte {
	t.Helper()
	var out [][]byte
	for _, c := range chunks {
		err := d.Feed(c, func(p []byte) {
			out = append(out, bytes.Clone(p))
		})
		require.NoError(t, err)
	}
	return out
}

func testPackets() [][]byte {
	big := bytes.Repeat([]byte{0xAB}, 1500)
	return [][]byte{
		{1, 7, 0, 0, 0, 0, 0, 0, 0},
		{4},
		big,
		{22, 1, 2, 3},
		{255},
	}
}

func TestFeedWhole(t *testing.T) {
	packets := testPackets()
	stream := buildStream(t, packets)

	var d Decoder
	got := collect(t, &d, [][]byte{stream})
	assert.Equal(t, packets, got)
	assert.Equal(t, 0, d.Buffered())
}

func TestFeedEverySplitPoint(t *testing.T) {
	packets := testPackets()
	stream := buildStream(t, packets)

	for i := 0; i <= len(stream); i++ {
		var d Decoder
		got := collect(t, &d, [][]byte{stream[:i], stream[i:]})
		require.Equal(t, packets, got, "split at %d", i)
	}
}

func TestFeedRandomChunks(t *testing.T) {
	packets := testPackets()
	stream := buildStream(t, packets)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var chunks [][]byte
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(64)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}

		var d Decoder
		require.Equal(t, packets, collect(t, &d, chunks), "round %d", round)
	}
}

func TestFeedByteAtATime(t *testing.T) {
	packets := testPackets()
	stream := buildStream(t, packets)

	var chunks [][]byte
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	var d Decoder
	assert.Equal(t, packets, collect(t, &d, chunks))
}

func TestAppendTooLarge(t *testing.T) {
	_, err := Append(nil, make([]byte, MaxSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	out, err := Append(nil, make([]byte, MaxSize))
	require.NoError(t, err)
	assert.Len(t, out, MaxSize+HeaderSize)
}

func TestFeedZeroLengthFrame(t *testing.T) {
	var d Decoder
	err := d.Feed([]byte{0, 0, 1}, func([]byte) { t.Fatal("unexpected frame") })
	assert.ErrorIs(t, err, ErrEmptyFrame)
	assert.Equal(t, 0, d.Buffered())
}
