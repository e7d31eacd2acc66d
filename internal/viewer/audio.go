package viewer

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(44100)

// chirpLength is the duration of one death chirp.
const chirpLength = 60 * time.Millisecond

// Chirper plays a short tone whenever a body dies. The pitch follows the
// body's last opacity, so a redshifted body sounds lower.
type Chirper struct {
	mu    sync.Mutex
	ready bool
	muted bool
}

// NewChirper initializes the speaker. Audio is optional: on failure the
// chirper stays silent and the error is returned for logging.
func NewChirper() (*Chirper, error) {
	c := &Chirper{}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return c, err
	}
	c.ready = true
	return c, nil
}

// ToggleMute flips muting and returns the new state.
func (c *Chirper) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = !c.muted
	return c.muted
}

// Play chirps for a body that died at the given opacity.
func (c *Chirper) Play(opacity float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready || c.muted {
		return
	}
	s, err := Chirp(ChirpFrequency(opacity))
	if err != nil {
		return
	}
	speaker.Play(s)
}

// ChirpFrequency maps opacity in [0, 1] exponentially onto 110–880 Hz.
func ChirpFrequency(opacity float64) float64 {
	o := math.Min(1, math.Max(0, opacity))
	return 110 * math.Pow(2, 3*o)
}

// Chirp returns a finite sine burst at freq Hz.
func Chirp(freq float64) (beep.Streamer, error) {
	sine, err := generators.SineTone(sampleRate, freq)
	if err != nil {
		return nil, err
	}
	return beep.Take(sampleRate.N(chirpLength), sine), nil
}
