package chartfile

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/goofenthol/chscore/internal/domain/chart"
	"github.com/goofenthol/chscore/internal/domain/score"
)

// midiTracks maps MIDI track names to instruments. Other tracks are
// ignored (vocals, venue, beat, ...).
var midiTracks = map[string]score.Instrument{
	"PART GUITAR": score.InstrumentLead,
	"PART BASS":   score.InstrumentBass,
	"PART RHYTHM": score.InstrumentRhythm,
	"PART KEYS":   score.InstrumentKeys,
	"PART DRUMS":  score.InstrumentDrums,
}

type noteTarget struct {
	difficulty score.Difficulty
	fret       int
}

// guitarNotes maps MIDI note numbers to (difficulty, fret) for fretted
// instruments: Expert 96-100, Hard 84-88, Medium 72-76, Easy 60-64.
var guitarNotes = buildNoteMap(false)

// drumNotes adds 110 (Expert orange cymbal) to the guitar ranges.
var drumNotes = buildNoteMap(true)

func buildNoteMap(drums bool) map[uint8]noteTarget {
	m := make(map[uint8]noteTarget)
	bases := map[score.Difficulty]uint8{
		score.DifficultyExpert: 96,
		score.DifficultyHard:   84,
		score.DifficultyMedium: 72,
		score.DifficultyEasy:   60,
	}
	for diff, base := range bases {
		for fret := 0; fret < 5; fret++ {
			m[base+uint8(fret)] = noteTarget{difficulty: diff, fret: fret}
		}
	}
	if drums {
		m[110] = noteTarget{difficulty: score.DifficultyExpert, fret: 5}
	}
	return m
}

var sectionEventRe = regexp.MustCompile(`(?i)^\[section\s+(.+)\]$`)

// ParseMIDI parses a .mid/.midi chart via standard MIDI file reading.
func ParseMIDI(path string) (*chart.Data, error) {
	mid, err := smf.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read midi file")
	}

	data := chart.New()
	if ticks, ok := mid.TimeFormat.(smf.MetricTicks); ok {
		data.Resolution = int(ticks.Resolution())
	}

	for _, track := range mid.Tracks {
		name := trackName(track)

		// Tempo events may live in any track, usually track 0.
		collectTempo(data, track)

		if strings.EqualFold(name, "EVENTS") {
			collectSections(data, track)
			continue
		}

		instrument, ok := midiTracks[name]
		if !ok {
			continue
		}
		noteMap := guitarNotes
		if instrument == score.InstrumentDrums {
			noteMap = drumNotes
		}
		collectNotes(data, track, instrument, noteMap)
	}

	data.Finalize()
	return data, nil
}

func trackName(track smf.Track) string {
	var name string
	for _, ev := range track {
		if ev.Message.GetMetaTrackName(&name) {
			return name
		}
	}
	return ""
}

func collectTempo(data *chart.Data, track smf.Track) {
	var tick uint32
	for _, ev := range track {
		tick += ev.Delta
		var bpm float64
		if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
			data.TempoMap = append(data.TempoMap, chart.TempoEvent{
				Tick:         int(tick),
				BPMTimes1000: int(bpm * 1000),
			})
		}
	}
}

func collectSections(data *chart.Data, track smf.Track) {
	var tick uint32
	for _, ev := range track {
		tick += ev.Delta
		var text string
		if !ev.Message.GetMetaText(&text) {
			continue
		}
		if m := sectionEventRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
			data.PracticeSections = append(data.PracticeSections, chart.PracticeSection{
				StartTick: int(tick),
				Name:      m[1],
			})
		}
	}
}

// collectNotes pairs note-on/note-off events into notes with durations.
func collectNotes(data *chart.Data, track smf.Track, instrument score.Instrument, noteMap map[uint8]noteTarget) {
	var tick uint32
	starts := make(map[uint8]uint32)

	for _, ev := range track {
		tick += ev.Delta

		var ch, key, vel uint8
		switch {
		case ev.Message.GetNoteStart(&ch, &key, &vel):
			starts[key] = tick
		case ev.Message.GetNoteEnd(&ch, &key):
			start, ok := starts[key]
			if !ok {
				continue
			}
			delete(starts, key)

			target, ok := noteMap[key]
			if !ok {
				continue
			}
			t := data.TrackFor(chart.TrackKey{
				Instrument: int(instrument),
				Difficulty: int(target.difficulty),
			})
			t.Notes = append(t.Notes, chart.Note{
				Tick:     int(start),
				Fret:     target.fret,
				Duration: int(tick - start),
				Kind:     chart.NoteNormal,
			})
		}
	}
}
