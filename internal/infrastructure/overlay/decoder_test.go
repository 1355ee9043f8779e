package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_DetectionsShape(t *testing.T) {
	now := time.Now()
	batch, err := NewDecoder(nil).Decode([]byte(`{"detections":[
		{"x1":0.1,"y1":0.2,"x2":0.3,"y2":0.4,"label":"scalpel","confidence":0.91},
		{"x1":0.9,"y1":0.9,"x2":1.4,"y2":-0.2,"label":"hand","confidence":0.5}
	]}`), now)
	require.NoError(t, err)
	require.Len(t, batch.Detections, 2)

	first := batch.Detections[0]
	assert.Equal(t, "scalpel", first.Label)
	assert.InDelta(t, 0.1, first.X1, 1e-9)
	assert.InDelta(t, 0.4, first.Y2, 1e-9)
	assert.Equal(t, now, batch.ReceivedAt)

	second := batch.Detections[1]
	assert.InDelta(t, 1.0, second.X2, 1e-9)
	assert.InDelta(t, 0.0, second.Y1, 1e-9)
	assert.InDelta(t, 0.9, second.Y2, 1e-9)
}

func TestDecode_EdgeDetectorShape(t *testing.T) {
	d := NewDecoder([]string{"person", "bicycle"})
	batch, err := d.Decode([]byte(`{"t":1718000000.5,"w":1280,"h":720,"dets":[
		{"cls":0,"conf":0.88,"x":0.25,"y":0.5,"w":0.5,"h":0.25},
		{"cls":7,"conf":0.4,"x":0.8,"y":0.8,"w":0.5,"h":0.5}
	]}`), time.Now())
	require.NoError(t, err)
	require.Len(t, batch.Detections, 2)
	assert.Equal(t, 1280, batch.FrameW)
	assert.Equal(t, 720, batch.FrameH)

	person := batch.Detections[0]
	assert.Equal(t, "person", person.Label)
	assert.InDelta(t, 0.75, person.X2, 1e-9)
	assert.InDelta(t, 0.75, person.Y2, 1e-9)
	assert.InDelta(t, 0.88, person.Confidence, 1e-9)

	unknown := batch.Detections[1]
	assert.Equal(t, "class 7", unknown.Label)
	assert.InDelta(t, 1.0, unknown.X2, 1e-9)
}

func TestDecode_EmptyBatchIsValid(t *testing.T) {
	batch, err := NewDecoder(nil).Decode([]byte(`{"t":1,"dets":[],"w":640,"h":480}`), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, batch.Detections)
	assert.Empty(t, batch.Detections)
}

func TestDecode_Rejects(t *testing.T) {
	d := NewDecoder(nil)

	_, err := d.Decode([]byte(`not json`), time.Now())
	assert.Error(t, err)

	_, err = d.Decode([]byte(`{"boxes":[]}`), time.Now())
	assert.ErrorIs(t, err, ErrUnknownPayload)
}
