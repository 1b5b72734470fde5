package botconfig

// Category names an announcement category; the values are the config
// keys under "announcements".
type Category string

const (
	CategoryRecordBreak  Category = "record_breaks"
	CategoryFirstTime    Category = "first_time_scores"
	CategoryPersonalBest Category = "personal_bests"
	CategoryFullCombo    Category = "full_combos"
)

// HashFormat selects how the chart id field renders.
type HashFormat string

const (
	HashAbbreviated HashFormat = "abbreviated"
	HashFull        HashFormat = "full"
)

// AccuracyFormat selects how the accuracy/notes field renders.
type AccuracyFormat string

const (
	AccuracyPercentageOnly          AccuracyFormat = "percentage_only"
	AccuracyNotesOnly               AccuracyFormat = "notes_only"
	AccuracyCombinedPercentageFirst AccuracyFormat = "combined_percentage_first"
	AccuracyCombinedNotesFirst      AccuracyFormat = "combined_notes_first"
	AccuracySeparateFields          AccuracyFormat = "separate_fields"
)

// FieldPalette is one category's field toggles. The formatter walks
// the toggles in a fixed order; adding a field is a schema change
// here, never a string lookup.
type FieldPalette struct {
	SongTitle            bool       `mapstructure:"song_title"`
	Artist               bool       `mapstructure:"artist"`
	DifficultyInstrument bool       `mapstructure:"difficulty_instrument"`
	Score                bool       `mapstructure:"score"`
	Stars                bool       `mapstructure:"stars"`
	Charter              bool       `mapstructure:"charter"`
	Accuracy             bool       `mapstructure:"accuracy"`
	PlayCount            bool       `mapstructure:"play_count"`
	BestStreak           bool       `mapstructure:"best_streak"`
	PreviousRecord       bool       `mapstructure:"previous_record"`
	PreviousBest         bool       `mapstructure:"previous_best"`
	ServerRecordHolder   bool       `mapstructure:"server_record_holder"`
	Improvement          bool       `mapstructure:"improvement"`
	EnchorLink           bool       `mapstructure:"enchor_link"`
	ChartHash            bool       `mapstructure:"chart_hash"`
	ChartHashFormat      HashFormat `mapstructure:"chart_hash_format"`
	Timestamp            bool       `mapstructure:"timestamp"`

	FooterShowPreviousHolder bool `mapstructure:"footer_show_previous_holder"`
	FooterShowPreviousScore  bool `mapstructure:"footer_show_previous_score"`
	FooterShowHeldDuration   bool `mapstructure:"footer_show_held_duration"`
	FooterShowSetTimestamp   bool `mapstructure:"footer_show_set_timestamp"`
	FooterShowPreviousBest   bool `mapstructure:"footer_show_previous_best"`
	FooterShowImprovement    bool `mapstructure:"footer_show_improvement"`
}

// CategorySettings is the typed view of one announcement category.
type CategorySettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	EmbedColor string `mapstructure:"embed_color"`
	Style      string `mapstructure:"style"` // "full" | "minimalist"

	// record_breaks only.
	MinScoreThreshold  int  `mapstructure:"min_score_threshold"`
	PingPreviousHolder bool `mapstructure:"ping_previous_holder"`

	// personal_bests only.
	MinImprovementPercent float64 `mapstructure:"min_improvement_percent"`
	MinImprovementPoints  int     `mapstructure:"min_improvement_points"`
	ThresholdMode         string  `mapstructure:"threshold_mode"`

	// full_combos only.
	AnnounceRegularFC      bool `mapstructure:"announce_regular_fc"`
	AnnounceFirstFC        bool `mapstructure:"announce_first_fc"`
	AnnounceFCRecordBreak  bool `mapstructure:"announce_fc_record_break"`
	AnnounceRetroactiveFCs bool `mapstructure:"announce_retroactive_fcs"`

	FullFields       FieldPalette `mapstructure:"full_fields"`
	MinimalistFields FieldPalette `mapstructure:"minimalist_fields"`
}

// Fields returns the palette selected by the style key.
func (c CategorySettings) Fields() FieldPalette {
	if c.Style == "minimalist" {
		return c.MinimalistFields
	}
	return c.FullFields
}

// AccuracyDisplay is the per-category accuracy rendering rule.
type AccuracyDisplay struct {
	Format         AccuracyFormat `mapstructure:"format"`
	ShowNotesLabel bool           `mapstructure:"show_notes_label"`
}

// DisplaySettings controls presentation of timestamps.
type DisplaySettings struct {
	Timezone             string `mapstructure:"timezone"`
	DateFormat           string `mapstructure:"date_format"` // MM/DD/YYYY | DD/MM/YYYY | YYYY-MM-DD
	TimeFormat           string `mapstructure:"time_format"` // 12-hour | 24-hour
	ShowTimezoneInEmbeds bool   `mapstructure:"show_timezone_in_embeds"`
}

// RateLimiting bounds the HTTP API.
type RateLimiting struct {
	Enabled              bool `mapstructure:"enabled"`
	MaxRequestsPerMinute int  `mapstructure:"max_requests_per_minute"`
	FailedAuthLimit      int  `mapstructure:"failed_auth_limit"`
}

// APISettings configures the HTTP server.
type APISettings struct {
	Host          string       `mapstructure:"host"`
	Port          int          `mapstructure:"port"`
	DebugPassword string       `mapstructure:"debug_password"`
	RateLimiting  RateLimiting `mapstructure:"rate_limiting"`
}

// LogRotation configures size-based log rotation.
type LogRotation struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxSizeMB   int  `mapstructure:"max_size_mb"`
	KeepBackups int  `mapstructure:"keep_backups"`
}

// LoggingSettings configures the server logger.
type LoggingSettings struct {
	Enabled  bool        `mapstructure:"enabled"`
	Level    string      `mapstructure:"level"`
	Rotation LogRotation `mapstructure:"rotation"`
}

// DifficultyTier is one NPS bucket for chart-difficulty display.
type DifficultyTier struct {
	Name   string  `mapstructure:"name"`
	Emoji  string  `mapstructure:"emoji"`
	MinNPS float64 `mapstructure:"min_nps"`
	MaxNPS float64 `mapstructure:"max_nps"`
}

// HardestSettings configures the hardest-charts query defaults.
type HardestSettings struct {
	MinNotesFilter int     `mapstructure:"min_notes_filter"`
	DefaultMinNPS  float64 `mapstructure:"default_min_nps"`
	DefaultMaxNPS  float64 `mapstructure:"default_max_nps"`
}

// DailyActivitySettings configures the daily activity log.
type DailyActivitySettings struct {
	Enabled        bool   `mapstructure:"enabled"`
	GenerationTime string `mapstructure:"generation_time"` // "HH:MM"
	KeepDays       int    `mapstructure:"keep_days"`
}

// Announcements is the full typed view consumed by the formatter.
type Announcements struct {
	RecordBreaks CategorySettings
	FirstTime    CategorySettings
	PersonalBest CategorySettings
	FullCombos   CategorySettings
	Accuracy     map[Category]AccuracyDisplay
	Display      DisplaySettings
}

// Category returns the typed settings for one category.
func (m *Manager) Category(cat Category) CategorySettings {
	var out CategorySettings
	if err := m.decode("announcements."+string(cat), &out); err != nil {
		zerologWarn(err, string(cat))
	}
	return out
}

// AccuracyFor returns the accuracy display rule for a category.
func (m *Manager) AccuracyFor(cat Category) AccuracyDisplay {
	var out AccuracyDisplay
	if err := m.decode("announcements.accuracy_display."+string(cat), &out); err != nil {
		zerologWarn(err, string(cat))
		out.Format = AccuracyPercentageOnly
	}
	if out.Format == "" {
		out.Format = AccuracyPercentageOnly
	}
	return out
}

// Display returns the typed display settings.
func (m *Manager) Display() DisplaySettings {
	out := DisplaySettings{Timezone: "UTC", DateFormat: "MM/DD/YYYY", TimeFormat: "12-hour"}
	if err := m.decode("display", &out); err != nil {
		zerologWarn(err, "display")
	}
	if out.Timezone == "" {
		out.Timezone = "UTC"
	}
	return out
}

// API returns the typed API settings.
func (m *Manager) API() APISettings {
	out := APISettings{Host: "localhost", Port: 8080}
	if err := m.decode("api", &out); err != nil {
		zerologWarn(err, "api")
	}
	return out
}

// Logging returns the typed logging settings.
func (m *Manager) Logging() LoggingSettings {
	out := LoggingSettings{Enabled: true, Level: "info"}
	if err := m.decode("logging", &out); err != nil {
		zerologWarn(err, "logging")
	}
	return out
}

// Tiers returns the configured difficulty tiers, ordered tier1..tier4.
func (m *Manager) Tiers() []DifficultyTier {
	out := make([]DifficultyTier, 0, 4)
	for _, key := range []string{"tier1", "tier2", "tier3", "tier4"} {
		var tier DifficultyTier
		if err := m.decode("difficulty_tiers."+key, &tier); err != nil {
			continue
		}
		out = append(out, tier)
	}
	return out
}

// Hardest returns the hardest-charts query defaults.
func (m *Manager) Hardest() HardestSettings {
	var out HardestSettings
	if err := m.decode("hardest_command", &out); err != nil {
		zerologWarn(err, "hardest_command")
	}
	return out
}

// DailyActivity returns the daily activity log settings.
func (m *Manager) DailyActivity() DailyActivitySettings {
	var out DailyActivitySettings
	if err := m.decode("daily_activity_log", &out); err != nil {
		zerologWarn(err, "daily_activity_log")
	}
	return out
}

// Announcements assembles the full typed view in one call.
func (m *Manager) Announcements() Announcements {
	acc := make(map[Category]AccuracyDisplay, 4)
	for _, cat := range []Category{CategoryRecordBreak, CategoryFirstTime, CategoryPersonalBest, CategoryFullCombo} {
		acc[cat] = m.AccuracyFor(cat)
	}
	return Announcements{
		RecordBreaks: m.Category(CategoryRecordBreak),
		FirstTime:    m.Category(CategoryFirstTime),
		PersonalBest: m.Category(CategoryPersonalBest),
		FullCombos:   m.Category(CategoryFullCombo),
		Accuracy:     acc,
		Display:      m.Display(),
	}
}
