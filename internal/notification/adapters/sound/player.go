// Package sound plays the notification sound bank.
package sound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/hajimehoshi/oto/v2"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
)

// Sound names an entry in the bank
type Sound string

const (
	SoundDefault     Sound = "default"
	SoundAchievement Sound = "achievement"
	SoundUrgent      Sound = "urgent"
)

// DefaultVolume is the fixed playback fraction
const DefaultVolume = 0.5

var (
	ErrUnknownSound     = errors.New("sound not in bank")
	ErrSampleRateChange = errors.New("asset sample rate differs from the audio context")
)

// Select picks the bank entry for a notification: achievements have their
// own sound, urgent priority has its own, everything else uses the default.
func Select(n model.Notification) Sound {
	switch {
	case n.Type == model.TypeAchievement:
		return SoundAchievement
	case n.Priority == model.PriorityUrgent:
		return SoundUrgent
	default:
		return SoundDefault
	}
}

// Player plays a bank entry, blocking until playback ends or ctx is done
type Player interface {
	Play(ctx context.Context, s Sound) error
}

// Bank maps sounds to mp3 asset paths
type Bank map[Sound]string

// NopPlayer discards every request, for headless hosts
type NopPlayer struct{}

func (NopPlayer) Play(context.Context, Sound) error { return nil }

// OtoPlayer decodes mp3 assets and plays them through a single shared
// oto context. oto allows one context per process, so its sample rate is
// fixed by the first asset played.
type OtoPlayer struct {
	bank     Bank
	volume   float64
	readFile func(string) ([]byte, error)

	mu         sync.Mutex
	assets     map[Sound][]byte
	audio      *oto.Context
	sampleRate int

	playMu sync.Mutex
}

// NewOtoPlayer creates a player for bank. A volume outside (0,1] falls
// back to DefaultVolume.
func NewOtoPlayer(bank Bank, volume float64) *OtoPlayer {
	if volume <= 0 || volume > 1 {
		volume = DefaultVolume
	}
	return &OtoPlayer{
		bank:     bank,
		volume:   volume,
		readFile: os.ReadFile,
		assets:   make(map[Sound][]byte),
	}
}

func (p *OtoPlayer) Play(ctx context.Context, s Sound) error {
	asset, err := p.asset(s)
	if err != nil {
		return err
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(asset))
	if err != nil {
		return fmt.Errorf("mp3 decoder: %w", err)
	}

	audio, err := p.context(decoder.SampleRate())
	if err != nil {
		return err
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	player := audio.NewPlayer(decoder)
	defer player.Close()
	player.SetVolume(p.volume)
	player.Play()

	ticker := time.NewTicker(15 * time.Millisecond)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

func (p *OtoPlayer) asset(s Sound) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if data, ok := p.assets[s]; ok {
		return data, nil
	}
	path, ok := p.bank[s]
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSound, s)
	}
	data, err := p.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sound %s: %w", s, err)
	}
	p.assets[s] = data
	return data, nil
}

func (p *OtoPlayer) context(sampleRate int) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.audio != nil {
		if sampleRate != p.sampleRate {
			return nil, fmt.Errorf("%w: %d != %d", ErrSampleRateChange, sampleRate, p.sampleRate)
		}
		return p.audio, nil
	}

	audio, ready, err := oto.NewContext(sampleRate, 2, 2)
	if err != nil {
		return nil, fmt.Errorf("oto context: %w", err)
	}
	<-ready

	p.audio = audio
	p.sampleRate = sampleRate
	return audio, nil
}
