package capture

import (
	"sync"
	"time"
)

// Capabilities describes what a platform integration can capture.
type Capabilities struct {
	VideoCapture  bool `json:"videoCapture"`
	AudioCapture  bool `json:"audioCapture"`
	ScreenCapture bool `json:"screenCapture"`
	Transcription bool `json:"transcription"`
}

// PlatformIntegration is the static descriptor shown to the UI. Status is
// informational only; starting a capture does not consult it.
type PlatformIntegration struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Status       string       `json:"status"`
	Icon         string       `json:"icon"`
	Capabilities Capabilities `json:"capabilities"`
}

// platformSpec is one row of the platform table: descriptor metadata plus
// the simulated participant-join schedule. The platforms differ only in
// metadata today, so a data table replaces per-platform types.
type platformSpec struct {
	PlatformIntegration
	joinDelay    time.Duration
	joinEvery    time.Duration
	participants []string
}

var simulatedParticipants = []string{
	"John Smith", "Sarah Johnson", "Mike Wilson", "Emily Davis", "Alex Chen",
}

var allCapabilities = Capabilities{
	VideoCapture:  true,
	AudioCapture:  true,
	ScreenCapture: true,
	Transcription: true,
}

var platformTable = []platformSpec{
	{
		PlatformIntegration: PlatformIntegration{
			ID: "google-meet", Name: "Google Meet", Status: "connected", Icon: "🎥",
			Capabilities: allCapabilities,
		},
		joinDelay: time.Second, joinEvery: 2 * time.Second, participants: simulatedParticipants,
	},
	{
		PlatformIntegration: PlatformIntegration{
			ID: "zoom", Name: "Zoom", Status: "ready", Icon: "📹",
			Capabilities: allCapabilities,
		},
		joinDelay: time.Second, joinEvery: 2 * time.Second, participants: simulatedParticipants,
	},
	{
		PlatformIntegration: PlatformIntegration{
			ID: "microsoft-teams", Name: "Microsoft Teams", Status: "ready", Icon: "💼",
			Capabilities: allCapabilities,
		},
		joinDelay: time.Second, joinEvery: 2 * time.Second, participants: simulatedParticipants,
	},
	{
		PlatformIntegration: PlatformIntegration{
			ID: "webex", Name: "Cisco Webex", Status: "ready", Icon: "🌐",
			Capabilities: allCapabilities,
		},
		joinDelay: time.Second, joinEvery: 2 * time.Second, participants: simulatedParticipants,
	},
	{
		PlatformIntegration: PlatformIntegration{
			ID: "discord", Name: "Discord", Status: "ready", Icon: "🎮",
			Capabilities: allCapabilities,
		},
		joinDelay: time.Second, joinEvery: 2 * time.Second, participants: simulatedParticipants,
	},
	{
		PlatformIntegration: PlatformIntegration{
			ID: "skype", Name: "Skype", Status: "ready", Icon: "📞",
			Capabilities: Capabilities{
				VideoCapture: true, AudioCapture: true, ScreenCapture: false, Transcription: true,
			},
		},
		joinDelay: time.Second, joinEvery: 2 * time.Second, participants: simulatedParticipants,
	},
}

// genericPlatform is the fallback for meeting URLs on unknown platforms.
var genericPlatform = platformSpec{
	PlatformIntegration: PlatformIntegration{
		ID: "generic", Name: "Generic Platform", Status: "ready", Icon: "🔗",
		Capabilities: allCapabilities,
	},
	joinDelay: time.Second, joinEvery: 2 * time.Second, participants: simulatedParticipants,
}

func platformByID(id string) platformSpec {
	for _, p := range platformTable {
		if p.ID == id {
			return p
		}
	}
	return genericPlatform
}

// beginJoins schedules the staggered simulated participant-join events.
// The returned cancel stops every pending timer; joins already fired are
// not undone.
func (p platformSpec) beginJoins(join func(name string)) (cancel func()) {
	timers := make([]*time.Timer, 0, len(p.participants))
	for i, name := range p.participants {
		name := name
		timers = append(timers, time.AfterFunc(p.joinDelay+time.Duration(i)*p.joinEvery, func() {
			join(name)
		}))
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, t := range timers {
				t.Stop()
			}
		})
	}
}
