package metrics

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameHeaderMatchesPayloadLength(t *testing.T) {
	frame := EncodeFrame([]Sample{{Name: "queue.tasks_queued", Timestamp: 1000, Value: 3}})

	require.True(t, len(frame) > 4)
	length := binary.BigEndian.Uint32(frame[:4])
	assert.Equal(t, int(length), len(frame)-4)
}

func TestEncodeFrameEmptyList(t *testing.T) {
	frame := EncodeFrame(nil)
	length := binary.BigEndian.Uint32(frame[:4])
	assert.Equal(t, int(length), len(frame)-4)

	payload := frame[4:]
	assert.Equal(t, byte(opProto), payload[0])
	assert.Equal(t, byte(2), payload[1])
	assert.Equal(t, byte(opEmptyList), payload[2])
	assert.Equal(t, byte(opStop), payload[len(payload)-1])
}

func TestEncodeFrameContainsMetricName(t *testing.T) {
	frame := EncodeFrame([]Sample{{Name: "abc", Timestamp: 1, Value: 2}})
	assert.Contains(t, string(frame), "abc")
}
