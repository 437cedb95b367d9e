package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackKindIsAudio(t *testing.T) {
	assert.False(t, TrackScreenVideo.IsAudio())
	assert.True(t, TrackScreenAudio.IsAudio())
	assert.True(t, TrackMicAudio.IsAudio())
	assert.False(t, TrackKind(0).IsAudio())
}

func TestTrackKindString(t *testing.T) {
	assert.Equal(t, "screen-video", TrackScreenVideo.String())
	assert.Equal(t, "screen-audio", TrackScreenAudio.String())
	assert.Equal(t, "mic-audio", TrackMicAudio.String())
	assert.Equal(t, "unknown", TrackKind(99).String())
}

func TestStreamHasTrack(t *testing.T) {
	s := NewStream("s1", []TrackKind{TrackScreenVideo, TrackMicAudio}, make(chan Frame), nil)
	assert.True(t, s.HasTrack(TrackScreenVideo))
	assert.True(t, s.HasTrack(TrackMicAudio))
	assert.False(t, s.HasTrack(TrackScreenAudio))
}

func TestStreamReleaseIsIdempotent(t *testing.T) {
	releases := 0
	s := NewStream("s1", nil, make(chan Frame), func() { releases++ })

	s.Release()
	s.Release()
	assert.Equal(t, 1, releases)
}

func TestStreamReleaseWithoutFunc(t *testing.T) {
	s := NewStream("s1", nil, make(chan Frame), nil)
	assert.NotPanics(t, s.Release)
}
