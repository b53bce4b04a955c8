package audit

import (
	"strconv"
	"time"
)

// Record is one audited measurement. Each record type owns a stable CSV
// schema in its category.
type Record interface {
	AuditCategory() string
	AuditHeaders() []string
	AuditRow() []string
	NumericFields() map[string]float64
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// StageRecord measures one pipeline stage.
type StageRecord struct {
	Stage     string
	Duration  time.Duration
	Items     int
	Files     int
	Bytes     int64
	Success   bool
	Timestamp time.Time
}

func (r StageRecord) AuditCategory() string { return "stages" }

func (r StageRecord) AuditHeaders() []string {
	return []string{"timestamp", "stage", "duration_ms", "items", "files", "bytes", "items_per_second", "success"}
}

func (r StageRecord) throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Items) / r.Duration.Seconds()
}

func (r StageRecord) AuditRow() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Stage,
		formatFloat(ms(r.Duration)),
		strconv.Itoa(r.Items),
		strconv.Itoa(r.Files),
		strconv.FormatInt(r.Bytes, 10),
		formatFloat(r.throughput()),
		strconv.FormatBool(r.Success),
	}
}

func (r StageRecord) NumericFields() map[string]float64 {
	return map[string]float64{
		"duration_ms":      ms(r.Duration),
		"items":            float64(r.Items),
		"files":            float64(r.Files),
		"bytes":            float64(r.Bytes),
		"items_per_second": r.throughput(),
	}
}

// GenerationRecord measures one generation request.
type GenerationRecord struct {
	Agent      string
	DreadLevel int
	AssetID    string
	Source     string
	TokensUsed int
	Duration   time.Duration
	Success    bool
	Error      string
	Timestamp  time.Time
}

func (r GenerationRecord) AuditCategory() string { return "generation" }

func (r GenerationRecord) AuditHeaders() []string {
	return []string{"timestamp", "agent", "dread_level", "asset_id", "source", "tokens_used", "duration_ms", "success", "error"}
}

func (r GenerationRecord) AuditRow() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Agent,
		strconv.Itoa(r.DreadLevel),
		r.AssetID,
		r.Source,
		strconv.Itoa(r.TokensUsed),
		formatFloat(ms(r.Duration)),
		strconv.FormatBool(r.Success),
		r.Error,
	}
}

func (r GenerationRecord) NumericFields() map[string]float64 {
	return map[string]float64{
		"tokens_used": float64(r.TokensUsed),
		"duration_ms": ms(r.Duration),
	}
}

// AudioRecord measures the audio acquisition of one dread level.
type AudioRecord struct {
	DreadLevel int
	Tracks     int
	Failed     int
	Bytes      int64
	Duration   time.Duration
	Success    bool
	Timestamp  time.Time
}

func (r AudioRecord) AuditCategory() string { return "audio" }

func (r AudioRecord) AuditHeaders() []string {
	return []string{"timestamp", "dread_level", "tracks", "failed", "bytes", "duration_ms", "success"}
}

func (r AudioRecord) AuditRow() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		strconv.Itoa(r.DreadLevel),
		strconv.Itoa(r.Tracks),
		strconv.Itoa(r.Failed),
		strconv.FormatInt(r.Bytes, 10),
		formatFloat(ms(r.Duration)),
		strconv.FormatBool(r.Success),
	}
}

func (r AudioRecord) NumericFields() map[string]float64 {
	return map[string]float64{
		"tracks":      float64(r.Tracks),
		"failed":      float64(r.Failed),
		"bytes":       float64(r.Bytes),
		"duration_ms": ms(r.Duration),
	}
}
