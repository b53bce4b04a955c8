package dread

import "math"

// Palette is a UI colour set in hex notation.
type Palette struct {
	Primary    string `json:"primary" toml:"primary"`
	Accent     string `json:"accent" toml:"accent"`
	Background string `json:"background" toml:"background"`
}

var palettes = [...]Palette{
	{Primary: "#d9c9a3", Accent: "#6a8f4e", Background: "#f4efe1"},
	{Primary: "#bfae8a", Accent: "#8a7a3e", Background: "#e2dac6"},
	{Primary: "#8f7f66", Accent: "#8a3e2f", Background: "#a69d8b"},
	{Primary: "#5c4f45", Accent: "#7a1f1f", Background: "#4a433d"},
	{Primary: "#2e2420", Accent: "#a30000", Background: "#120d0b"},
}

// UIConfig is the deterministic interface treatment for a dread level.
type UIConfig struct {
	DreadLevel  int     `json:"dread_level" toml:"dread_level"`
	Stage       string  `json:"stage" toml:"stage"`
	Palette     Palette `json:"palette" toml:"palette"`
	Saturation  float64 `json:"saturation" toml:"saturation"`
	Vignette    float64 `json:"vignette" toml:"vignette"`
	TextJitter  float64 `json:"text_jitter" toml:"text_jitter"`
	HUDOpacity  float64 `json:"hud_opacity" toml:"hud_opacity"`
	Whispers    bool    `json:"whispers" toml:"whispers"`
	CompanionUI int     `json:"companion_portraits" toml:"companion_portraits"`
}

// UIConfigFor derives the UI config of level from its progression vector.
func UIConfigFor(level int) (UIConfig, error) {
	v, err := VectorFor(level)
	if err != nil {
		return UIConfig{}, err
	}
	companions, _ := Companions(level)
	present := 0
	for _, c := range companions {
		if c.Present && !c.Betrayed {
			present++
		}
	}

	return UIConfig{
		DreadLevel:  level,
		Stage:       v.Stage,
		Palette:     palettes[level],
		Saturation:  round2(1 - 0.8*v.WorldCorruption),
		Vignette:    round2(0.1 + 0.6*v.DragonProximity),
		TextJitter:  round2(v.CompanionTrauma * 0.5),
		HUDOpacity:  round2(1 - 0.4*v.WorldCorruption),
		Whispers:    level >= 2,
		CompanionUI: present,
	}, nil
}

// DecayConfig is the deterministic world-decay treatment for a dread level.
type DecayConfig struct {
	DreadLevel      int     `json:"dread_level" toml:"dread_level"`
	Stage           string  `json:"stage" toml:"stage"`
	WorldCorruption float64 `json:"world_corruption" toml:"world_corruption"`
	VegetationDecay float64 `json:"vegetation_decay" toml:"vegetation_decay"`
	StructureDecay  float64 `json:"structure_decay" toml:"structure_decay"`
	WaterTaint      float64 `json:"water_taint" toml:"water_taint"`
	FogDensity      float64 `json:"fog_density" toml:"fog_density"`
	SpreadRate      float64 `json:"spread_rate" toml:"spread_rate"`
	DragonProximity float64 `json:"dragon_proximity" toml:"dragon_proximity"`
}

// DecayConfigFor derives the decay config of level from its progression vector.
func DecayConfigFor(level int) (DecayConfig, error) {
	v, err := VectorFor(level)
	if err != nil {
		return DecayConfig{}, err
	}
	c := v.WorldCorruption
	return DecayConfig{
		DreadLevel:      level,
		Stage:           v.Stage,
		WorldCorruption: c,
		VegetationDecay: round2(c * 0.9),
		StructureDecay:  round2(c * c),
		WaterTaint:      round2(math.Min(1, c*1.2)),
		FogDensity:      round2(0.05 + 0.5*v.DragonProximity),
		SpreadRate:      round2(0.01 + 0.09*c),
		DragonProximity: v.DragonProximity,
	}, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
