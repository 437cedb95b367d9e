package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformByID(t *testing.T) {
	tests := []struct {
		id         string
		wantName   string
		wantStatus string
	}{
		{"google-meet", "Google Meet", "connected"},
		{"zoom", "Zoom", "ready"},
		{"microsoft-teams", "Microsoft Teams", "ready"},
		{"webex", "Cisco Webex", "ready"},
		{"discord", "Discord", "ready"},
		{"skype", "Skype", "ready"},
		{"something-else", "Generic Platform", "ready"},
		{"", "Generic Platform", "ready"},
	}
	for _, tt := range tests {
		spec := platformByID(tt.id)
		assert.Equal(t, tt.wantName, spec.Name, "id %q", tt.id)
		assert.Equal(t, tt.wantStatus, spec.Status, "id %q", tt.id)
	}
}

func TestPlatformCapabilities(t *testing.T) {
	for _, spec := range platformTable {
		assert.True(t, spec.Capabilities.AudioCapture, spec.ID)
		assert.True(t, spec.Capabilities.Transcription, spec.ID)
	}
	assert.False(t, platformByID("skype").Capabilities.ScreenCapture)
	assert.True(t, platformByID("zoom").Capabilities.ScreenCapture)
}

func TestBeginJoinsStaggersParticipants(t *testing.T) {
	spec := platformSpec{
		joinDelay:    5 * time.Millisecond,
		joinEvery:    5 * time.Millisecond,
		participants: []string{"John Smith", "Sarah Johnson", "Mike Wilson"},
	}

	var mu sync.Mutex
	var joined []string
	cancel := spec.beginJoins(func(name string) {
		mu.Lock()
		defer mu.Unlock()
		joined = append(joined, name)
	})
	defer cancel()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(joined) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"John Smith", "Sarah Johnson", "Mike Wilson"}, joined)
}

func TestBeginJoinsCancelStopsPendingTimers(t *testing.T) {
	spec := platformSpec{
		joinDelay:    20 * time.Millisecond,
		joinEvery:    20 * time.Millisecond,
		participants: simulatedParticipants,
	}

	var mu sync.Mutex
	joined := 0
	cancel := spec.beginJoins(func(string) {
		mu.Lock()
		defer mu.Unlock()
		joined++
	})
	cancel()
	cancel() // idempotent

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, joined)
}
