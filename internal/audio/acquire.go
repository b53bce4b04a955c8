package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/dread"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/fsutil"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/logging"
)

// ConfigFileName is the per-level audio config written next to the samples.
const ConfigFileName = "audio_config.toml"

// DefaultInterval separates two dread-level batches.
const DefaultInterval = 3 * time.Second

// Slot is one category of sound in a level's soundscape.
type Slot string

const (
	SlotAmbient         Slot = "ambient"
	SlotStingers        Slot = "stingers"
	SlotCompanionTrauma Slot = "companion_trauma"
	SlotEnvironmental   Slot = "environmental"
)

// Slots lists the slots in acquisition order.
var Slots = []Slot{SlotAmbient, SlotStingers, SlotCompanionTrauma, SlotEnvironmental}

// Limit returns how many tracks a slot keeps.
func (s Slot) Limit() int {
	if s == SlotAmbient {
		return 2
	}
	return 1
}

// keywords maps dread level to the search keywords of each slot. A slot
// without keywords is skipped at that level.
var keywords = [dread.MaxLevel + 1]map[Slot][]string{
	{
		SlotAmbient:       {"peaceful", "forest", "birds"},
		SlotStingers:      {"gentle", "chime"},
		SlotEnvironmental: {"village", "ambience"},
	},
	{
		SlotAmbient:         {"wind", "eerie", "forest"},
		SlotStingers:        {"distant", "howl"},
		SlotCompanionTrauma: {"uneasy", "sigh"},
		SlotEnvironmental:   {"creaking", "wood"},
	},
	{
		SlotAmbient:         {"dark", "drone"},
		SlotStingers:        {"horror", "hit"},
		SlotCompanionTrauma: {"whimper"},
		SlotEnvironmental:   {"dripping", "cave"},
	},
	{
		SlotAmbient:         {"horror", "atmosphere", "low"},
		SlotStingers:        {"scream", "distant"},
		SlotCompanionTrauma: {"crying", "despair"},
		SlotEnvironmental:   {"heartbeat"},
	},
	{
		SlotAmbient:         {"dragon", "breathing", "cave"},
		SlotStingers:        {"monster", "roar"},
		SlotCompanionTrauma: {"betrayal", "scream"},
		SlotEnvironmental:   {"fire", "crackling", "rumble"},
	},
}

// Query returns the search query for a slot at a dread level, or "" when the
// slot is not used at that level.
func Query(level int, slot Slot) string {
	if level < 0 || level > dread.MaxLevel {
		return ""
	}
	return strings.Join(keywords[level][slot], " ")
}

// Track is one acquired sample.
type Track struct {
	Name            string   `toml:"name"`
	SourceID        *int     `toml:"source_id,omitempty"`
	Tags            []string `toml:"tags"`
	DurationS       *float64 `toml:"duration_s,omitempty"`
	HorrorIntensity float64  `toml:"horror_intensity"`
	Path            string   `toml:"path"`
}

// AssetConfig is the per-level audio config.
type AssetConfig struct {
	DreadLevel      int     `toml:"dread_level"`
	Ambient         []Track `toml:"ambient"`
	Stingers        []Track `toml:"stingers"`
	CompanionTrauma []Track `toml:"companion_trauma"`
	Environmental   []Track `toml:"environmental"`
}

func newAssetConfig(level int) *AssetConfig {
	return &AssetConfig{
		DreadLevel:      level,
		Ambient:         []Track{},
		Stingers:        []Track{},
		CompanionTrauma: []Track{},
		Environmental:   []Track{},
	}
}

func (c *AssetConfig) slot(s Slot) *[]Track {
	switch s {
	case SlotAmbient:
		return &c.Ambient
	case SlotStingers:
		return &c.Stingers
	case SlotCompanionTrauma:
		return &c.CompanionTrauma
	default:
		return &c.Environmental
	}
}

// Tracks returns the tracks of a slot.
func (c *AssetConfig) Tracks(s Slot) []Track { return *c.slot(s) }

// TrackFailure records a slot search or track download that failed.
type TrackFailure struct {
	Slot    Slot
	SoundID int
	Err     error
}

// LevelResult summarises the acquisition of one dread level.
type LevelResult struct {
	DreadLevel int
	Config     *AssetConfig
	ConfigPath string
	Tracks     int
	Bytes      int64
	Failures   []TrackFailure
	Success    bool
}

// Acquirer downloads the soundscape of each dread level.
type Acquirer struct {
	client  *Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewAcquirer creates an acquirer that waits interval between level batches.
func NewAcquirer(client *Client, interval time.Duration, logger *zap.Logger) *Acquirer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Acquirer{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logging.OrNop(logger),
	}
}

// AcquireLevel searches and downloads every slot of a dread level into dest
// and writes dest/audio_config.toml. The level succeeds when every slot with
// keywords produced at least one track. Per-track failures are recorded, not
// returned; the error covers cancellation and config writes only.
func (a *Acquirer) AcquireLevel(ctx context.Context, level int, dest string) (*LevelResult, error) {
	if err := dread.CheckLevel(level); err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("creating %s", dest), err)
	}

	result := &LevelResult{DreadLevel: level, Config: newAssetConfig(level), Success: true}
	intensity := float64(level) / float64(dread.MaxLevel)

	for _, slot := range Slots {
		query := Query(level, slot)
		if query == "" {
			continue
		}

		sounds, err := a.client.Search(ctx, query, slot.Limit())
		if err != nil {
			a.logger.Warn("Sound search failed",
				zap.Int("dread_level", level), zap.String("slot", string(slot)), zap.Error(err))
			result.Failures = append(result.Failures, TrackFailure{Slot: slot, Err: err})
			result.Success = false
			continue
		}

		tracks := result.Config.slot(slot)
		for _, s := range sounds {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			name, size, err := a.client.Download(ctx, s, dest)
			if err != nil {
				a.logger.Warn("Track download failed",
					zap.Int("dread_level", level), zap.String("slot", string(slot)),
					zap.Int("sound_id", s.ID), zap.Error(err))
				result.Failures = append(result.Failures, TrackFailure{Slot: slot, SoundID: s.ID, Err: err})
				continue
			}

			id, duration := s.ID, s.Duration
			*tracks = append(*tracks, Track{
				Name:            s.Name,
				SourceID:        &id,
				Tags:            nonNil(s.Tags),
				DurationS:       &duration,
				HorrorIntensity: intensity,
				Path:            name,
			})
			result.Tracks++
			result.Bytes += size
		}
		if len(*tracks) == 0 {
			result.Success = false
		}
	}

	result.ConfigPath = filepath.Join(dest, ConfigFileName)
	if err := WriteConfig(result.ConfigPath, result.Config); err != nil {
		return nil, err
	}

	a.logger.Info("Acquired audio",
		zap.Int("dread_level", level), zap.Int("tracks", result.Tracks),
		zap.Int("failures", len(result.Failures)), zap.Bool("success", result.Success))
	return result, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// WriteConfig stores cfg at path as TOML.
func WriteConfig(path string, cfg *AssetConfig) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "encoding audio config", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("writing %s", path), err)
	}
	return nil
}

// LoadConfig reads an audio config written by WriteConfig.
func LoadConfig(path string) (*AssetConfig, error) {
	var cfg AssetConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParse, fmt.Sprintf("decoding %s", path), err)
	}
	return &cfg, nil
}
