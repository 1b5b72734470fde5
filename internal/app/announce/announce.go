// Package announce projects a classified score submission into a
// structured announcement document, driven entirely by the typed
// configuration palettes.
package announce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/domain/song"
	"github.com/goofenthol/chscore/internal/infra/botconfig"
)

// RGB is the accent color of an announcement.
type RGB struct {
	R, G, B uint8
}

// ParseColor parses "#RRGGBB". The zero RGB is returned for malformed
// input.
func ParseColor(s string) RGB {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return RGB{}
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
}

// Field is one name/value entry of an announcement.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Announcement is the structured document handed to the chat
// transport.
type Announcement struct {
	Category    botconfig.Category
	Title       string
	Description string
	AccentColor RGB
	Fields      []Field
	Footer      string

	// PingExternalID is the previous record holder's chat id when the
	// category config asks for a ping.
	PingExternalID string
}

// Score is the score payload the formatter renders.
type Score struct {
	ChartID           score.ChartID
	Instrument        score.Instrument
	Difficulty        score.Difficulty
	Value             int
	Stars             int
	CompletionPercent float64
	NotesHit          *int
	NotesTotal        *int
	BestStreak        *int
	PlayCount         *int
}

// Input carries one classified submission into the formatter. Now is
// injected so that rendering is deterministic.
type Input struct {
	Category botconfig.Category

	UserName       string
	UserExternalID string

	Meta  song.Metadata
	Score Score

	// Record-break context.
	PreviousScore            *int
	PreviousHolder           *string
	PreviousHolderExternalID *string
	PreviousRecordAt         *time.Time

	// The submitting user's own previous best, for improvement deltas.
	UserPreviousScore *int

	// Full-combo context.
	IsFirstFC   bool
	Retroactive bool

	Now time.Time
}

// Format renders the announcement for the input, or returns ok=false
// when the category is disabled or a threshold suppresses it.
func Format(in Input, cfg botconfig.Announcements) (*Announcement, bool) {
	cat := categorySettings(in.Category, cfg)
	if !cat.Enabled {
		return nil, false
	}
	if !passesThresholds(in, cat) {
		return nil, false
	}

	fields := cat.Fields()
	out := &Announcement{
		Category:    in.Category,
		Title:       title(in),
		AccentColor: ParseColor(cat.EmbedColor),
	}
	if in.Category == botconfig.CategoryRecordBreak && cat.PingPreviousHolder && in.PreviousHolderExternalID != nil {
		out.PingExternalID = *in.PreviousHolderExternalID
	}

	out.Description = description(in, fields)
	out.Fields = buildFields(in, fields, cfg)
	out.Footer = footer(in, fields, cfg.Display)
	return out, true
}

func categorySettings(cat botconfig.Category, cfg botconfig.Announcements) botconfig.CategorySettings {
	switch cat {
	case botconfig.CategoryRecordBreak:
		return cfg.RecordBreaks
	case botconfig.CategoryFirstTime:
		return cfg.FirstTime
	case botconfig.CategoryPersonalBest:
		return cfg.PersonalBest
	default:
		return cfg.FullCombos
	}
}

// passesThresholds applies the category gates: the record-break score
// floor, and the personal-best dual improvement thresholds (both must
// be met).
func passesThresholds(in Input, cat botconfig.CategorySettings) bool {
	switch in.Category {
	case botconfig.CategoryRecordBreak:
		return in.Score.Value >= cat.MinScoreThreshold
	case botconfig.CategoryPersonalBest:
		if in.UserPreviousScore == nil || *in.UserPreviousScore <= 0 {
			return true
		}
		points := in.Score.Value - *in.UserPreviousScore
		percent := float64(points) / float64(*in.UserPreviousScore) * 100
		return points >= cat.MinImprovementPoints && percent >= cat.MinImprovementPercent
	case botconfig.CategoryFullCombo:
		switch {
		case in.Retroactive:
			return cat.AnnounceRetroactiveFCs
		case in.IsFirstFC:
			return cat.AnnounceFirstFC
		default:
			return cat.AnnounceRegularFC
		}
	default:
		return true
	}
}

func title(in Input) string {
	switch in.Category {
	case botconfig.CategoryRecordBreak:
		return "🏆 NEW RECORD SET!"
	case botconfig.CategoryFirstTime:
		return "🎸 FIRST SCORE ON CHART!"
	case botconfig.CategoryPersonalBest:
		return "📈 PERSONAL BEST!"
	default:
		if in.IsFirstFC {
			return "💯 FIRST FULL COMBO ON CHART!"
		}
		return "💯 FULL COMBO!"
	}
}

func actionText(in Input) string {
	switch in.Category {
	case botconfig.CategoryRecordBreak:
		return "set a new server record!"
	case botconfig.CategoryFirstTime:
		return "was the first to score on this chart!"
	case botconfig.CategoryPersonalBest:
		return "improved their personal best!"
	default:
		if in.Retroactive {
			return "full combo'd this chart (retroactively detected)!"
		}
		return "full combo'd this chart!"
	}
}

func chartDisplay(in Input) string {
	title := in.Meta.DisplayTitle()
	if in.Meta.Title != "" && in.Meta.Artist != "" {
		return title + " - " + in.Meta.Artist
	}
	return title
}

func description(in Input, fields botconfig.FieldPalette) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", in.UserName, actionText(in))
	if fields.SongTitle {
		fmt.Fprintf(&sb, "\n**Song:** *%s*", chartDisplay(in))
	}
	if fields.Score {
		fmt.Fprintf(&sb, "\n**Score:** *%s* points", formatInt(in.Score.Value))
		if fields.Improvement && in.UserPreviousScore != nil && improvementApplies(in.Category) {
			fmt.Fprintf(&sb, " (+%s)", formatInt(in.Score.Value-*in.UserPreviousScore))
		}
	}
	return sb.String()
}

func improvementApplies(cat botconfig.Category) bool {
	return cat == botconfig.CategoryRecordBreak || cat == botconfig.CategoryPersonalBest
}

// buildFields enumerates the palette in its fixed order.
func buildFields(in Input, fields botconfig.FieldPalette, cfg botconfig.Announcements) []Field {
	var out []Field
	add := func(name, value string, inline bool) {
		out = append(out, Field{Name: name, Value: value, Inline: inline})
	}

	if fields.DifficultyInstrument {
		add("Instrument", in.Score.Instrument.String(), true)
		add("Difficulty", in.Score.Difficulty.String(), true)
	}
	if fields.Stars {
		add("Stars", starsDisplay(in.Score.Stars), true)
	}
	if fields.Charter && in.Meta.Charter != "" {
		add("Charter", in.Meta.Charter, true)
	}
	if fields.Accuracy {
		out = append(out, accuracyFields(in, cfg.Accuracy[in.Category])...)
	}
	if fields.PlayCount && in.Score.PlayCount != nil {
		add("Play Count", strconv.Itoa(*in.Score.PlayCount), true)
	}
	if fields.BestStreak && in.Score.BestStreak != nil {
		add("Best Streak", strconv.Itoa(*in.Score.BestStreak), true)
	}
	if fields.PreviousRecord && in.Category == botconfig.CategoryRecordBreak &&
		in.PreviousHolder != nil && in.PreviousScore != nil {
		add("Previous Record", fmt.Sprintf("%s: %s pts", *in.PreviousHolder, formatInt(*in.PreviousScore)), false)
	}
	if fields.PreviousBest && in.Category == botconfig.CategoryPersonalBest && in.UserPreviousScore != nil {
		add("Previous Best", formatInt(*in.UserPreviousScore)+" pts", true)
	}
	if fields.ServerRecordHolder && in.Category == botconfig.CategoryPersonalBest &&
		in.PreviousHolder != nil && in.PreviousScore != nil {
		add("Server Record", fmt.Sprintf("%s: %s pts", *in.PreviousHolder, formatInt(*in.PreviousScore)), true)
	}
	if fields.EnchorLink {
		if u := EnchorURL(in.Meta.Title, in.Meta.Artist, in.Meta.Charter); u != "" {
			add("Find This Chart", fmt.Sprintf("[Search on enchor.us](%s)", u), false)
		}
	}
	if fields.ChartHash {
		hash := string(in.Score.ChartID)
		if fields.ChartHashFormat == botconfig.HashAbbreviated {
			hash = in.Score.ChartID.Abbrev()
		}
		add("Chart Hash", "`"+hash+"`", false)
	}
	if fields.Timestamp {
		add("Achieved", formatTimestamp(in.Now, cfg.Display), true)
	}
	return out
}

// accuracyFields renders the accuracy per the configured format; the
// separate_fields mode emits two fields.
func accuracyFields(in Input, acc botconfig.AccuracyDisplay) []Field {
	percent := fmt.Sprintf("%.1f%%", in.Score.CompletionPercent)
	haveNotes := in.Score.NotesHit != nil && in.Score.NotesTotal != nil
	var notes string
	if haveNotes {
		notes = fmt.Sprintf("%d/%d", *in.Score.NotesHit, *in.Score.NotesTotal)
		if acc.ShowNotesLabel {
			notes += " notes"
		}
	}

	format := acc.Format
	if !haveNotes {
		format = botconfig.AccuracyPercentageOnly
	}
	switch format {
	case botconfig.AccuracyNotesOnly:
		return []Field{{Name: "Notes", Value: notes, Inline: true}}
	case botconfig.AccuracyCombinedPercentageFirst:
		return []Field{{Name: "Accuracy", Value: fmt.Sprintf("%s (%s)", percent, notes), Inline: true}}
	case botconfig.AccuracyCombinedNotesFirst:
		return []Field{{Name: "Accuracy", Value: fmt.Sprintf("%s (%s)", notes, percent), Inline: true}}
	case botconfig.AccuracySeparateFields:
		return []Field{
			{Name: "Accuracy", Value: percent, Inline: true},
			{Name: "Notes", Value: notes, Inline: true},
		}
	default:
		return []Field{{Name: "Accuracy", Value: percent, Inline: true}}
	}
}

// footer composes the record-break footer from its enabled subparts,
// joined with " • ".
func footer(in Input, fields botconfig.FieldPalette, display botconfig.DisplaySettings) string {
	var parts []string

	if in.Category == botconfig.CategoryRecordBreak && in.PreviousHolder != nil {
		if fields.FooterShowPreviousHolder {
			parts = append(parts, "Previous record: "+*in.PreviousHolder)
		}
		if fields.FooterShowPreviousScore && in.PreviousScore != nil {
			parts = append(parts, formatInt(*in.PreviousScore)+" pts")
		}
		if fields.FooterShowHeldDuration && in.PreviousRecordAt != nil {
			parts = append(parts, "Held for "+heldDuration(in.Now.Sub(*in.PreviousRecordAt)))
		}
		if fields.FooterShowSetTimestamp && in.PreviousRecordAt != nil {
			parts = append(parts, "Set on "+formatTimestamp(*in.PreviousRecordAt, display))
		}
	}

	if in.Category == botconfig.CategoryPersonalBest && in.UserPreviousScore != nil {
		if fields.FooterShowPreviousBest {
			parts = append(parts, "Previous best: "+formatInt(*in.UserPreviousScore)+" pts")
		}
		if fields.FooterShowImprovement {
			parts = append(parts, "+"+formatInt(in.Score.Value-*in.UserPreviousScore)+" pts")
		}
	}

	return strings.Join(parts, " • ")
}

// heldDuration renders a duration as whole days, hours or minutes.
func heldDuration(d time.Duration) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= 24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	case d >= time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Minutes()), "minute")
	}
}

// formatTimestamp renders a UTC instant in the configured display
// timezone, date format and clock format, with the zone abbreviation
// when enabled.
func formatTimestamp(t time.Time, display botconfig.DisplaySettings) string {
	loc, err := time.LoadLocation(display.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)

	var dateLayout string
	switch display.DateFormat {
	case "DD/MM/YYYY":
		dateLayout = "02/01/2006"
	case "YYYY-MM-DD":
		dateLayout = "2006-01-02"
	default: // MM/DD/YYYY
		dateLayout = "01/02/2006"
	}
	timeLayout := "3:04 PM"
	if display.TimeFormat == "24-hour" {
		timeLayout = "15:04"
	}

	out := local.Format(dateLayout + " " + timeLayout)
	if display.ShowTimezoneInEmbeds {
		out += " " + local.Format("MST")
	}
	return out
}

func starsDisplay(stars int) string {
	if stars <= 0 {
		return "-"
	}
	return strings.Repeat("⭐", stars)
}

// formatInt renders an integer with thousands separators.
func formatInt(v int) string {
	s := strconv.Itoa(v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var sb strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	if neg {
		return "-" + sb.String()
	}
	return sb.String()
}
