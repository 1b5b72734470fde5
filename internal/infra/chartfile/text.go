package chartfile

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/goofenthol/chscore/internal/domain/chart"
	"github.com/goofenthol/chscore/internal/domain/score"
)

// sectionTracks maps .chart section names to (instrument, difficulty).
var sectionTracks = map[string]chart.TrackKey{
	"EasySingle":   {Instrument: int(score.InstrumentLead), Difficulty: int(score.DifficultyEasy)},
	"MediumSingle": {Instrument: int(score.InstrumentLead), Difficulty: int(score.DifficultyMedium)},
	"HardSingle":   {Instrument: int(score.InstrumentLead), Difficulty: int(score.DifficultyHard)},
	"ExpertSingle": {Instrument: int(score.InstrumentLead), Difficulty: int(score.DifficultyExpert)},

	"EasyDoubleBass":   {Instrument: int(score.InstrumentBass), Difficulty: int(score.DifficultyEasy)},
	"MediumDoubleBass": {Instrument: int(score.InstrumentBass), Difficulty: int(score.DifficultyMedium)},
	"HardDoubleBass":   {Instrument: int(score.InstrumentBass), Difficulty: int(score.DifficultyHard)},
	"ExpertDoubleBass": {Instrument: int(score.InstrumentBass), Difficulty: int(score.DifficultyExpert)},

	"EasyDoubleRhythm":   {Instrument: int(score.InstrumentRhythm), Difficulty: int(score.DifficultyEasy)},
	"MediumDoubleRhythm": {Instrument: int(score.InstrumentRhythm), Difficulty: int(score.DifficultyMedium)},
	"HardDoubleRhythm":   {Instrument: int(score.InstrumentRhythm), Difficulty: int(score.DifficultyHard)},
	"ExpertDoubleRhythm": {Instrument: int(score.InstrumentRhythm), Difficulty: int(score.DifficultyExpert)},

	"EasyKeyboard":   {Instrument: int(score.InstrumentKeys), Difficulty: int(score.DifficultyEasy)},
	"MediumKeyboard": {Instrument: int(score.InstrumentKeys), Difficulty: int(score.DifficultyMedium)},
	"HardKeyboard":   {Instrument: int(score.InstrumentKeys), Difficulty: int(score.DifficultyHard)},
	"ExpertKeyboard": {Instrument: int(score.InstrumentKeys), Difficulty: int(score.DifficultyExpert)},

	"EasyDrums":   {Instrument: int(score.InstrumentDrums), Difficulty: int(score.DifficultyEasy)},
	"MediumDrums": {Instrument: int(score.InstrumentDrums), Difficulty: int(score.DifficultyMedium)},
	"HardDrums":   {Instrument: int(score.InstrumentDrums), Difficulty: int(score.DifficultyHard)},
	"ExpertDrums": {Instrument: int(score.InstrumentDrums), Difficulty: int(score.DifficultyExpert)},

	"EasyGHLGuitar":   {Instrument: int(score.InstrumentGhlLead), Difficulty: int(score.DifficultyEasy)},
	"MediumGHLGuitar": {Instrument: int(score.InstrumentGhlLead), Difficulty: int(score.DifficultyMedium)},
	"HardGHLGuitar":   {Instrument: int(score.InstrumentGhlLead), Difficulty: int(score.DifficultyHard)},
	"ExpertGHLGuitar": {Instrument: int(score.InstrumentGhlLead), Difficulty: int(score.DifficultyExpert)},

	"EasyGHLBass":   {Instrument: int(score.InstrumentGhlBass), Difficulty: int(score.DifficultyEasy)},
	"MediumGHLBass": {Instrument: int(score.InstrumentGhlBass), Difficulty: int(score.DifficultyMedium)},
	"HardGHLBass":   {Instrument: int(score.InstrumentGhlBass), Difficulty: int(score.DifficultyHard)},
	"ExpertGHLBass": {Instrument: int(score.InstrumentGhlBass), Difficulty: int(score.DifficultyExpert)},
}

// ParseChart parses a .chart text file.
func ParseChart(path string) (*chart.Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open chart file")
	}
	defer f.Close()

	data := chart.New()

	var (
		section string
		track   *chart.Track
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if line == "" || line == "{" || line == "}" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			if key, ok := sectionTracks[section]; ok {
				track = data.TrackFor(key)
			} else {
				track = nil
			}
			continue
		}

		switch {
		case section == "Song":
			parseSongLine(data, line)
		case section == "SyncTrack":
			parseSyncLine(data, line)
		case section == "Events":
			parseEventLine(data, line)
		case track != nil:
			parseNoteLine(track, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan chart file")
	}

	data.Finalize()
	return data, nil
}

// splitKV splits "key = value" lines. ok is false when no '=' exists.
func splitKV(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func parseSongLine(data *chart.Data, line string) {
	key, value, ok := splitKV(line)
	if !ok {
		return
	}
	value = strings.Trim(value, `"`)
	switch key {
	case "Name":
		data.Name = value
	case "Artist":
		data.Artist = value
	case "Charter":
		data.Charter = value
	case "Album":
		data.Album = value
	case "Year":
		data.Year = value
	case "Genre":
		data.Genre = value
	case "Resolution":
		if res, err := strconv.Atoi(value); err == nil && res > 0 {
			data.Resolution = res
		}
	}
}

func parseSyncLine(data *chart.Data, line string) {
	tickStr, value, ok := splitKV(line)
	if !ok {
		return
	}
	tick, err := strconv.Atoi(tickStr)
	if err != nil {
		return
	}
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return
	}
	switch fields[0] {
	case "B":
		data.TempoMap = append(data.TempoMap, chart.TempoEvent{Tick: tick, BPMTimes1000: n})
	case "TS":
		data.TimeSignatures = append(data.TimeSignatures, chart.TimeSignature{Tick: tick, Numerator: n, Denominator: 4})
	}
}

func parseEventLine(data *chart.Data, line string) {
	tickStr, value, ok := splitKV(line)
	if !ok {
		return
	}
	tick, err := strconv.Atoi(tickStr)
	if err != nil {
		return
	}
	if !strings.HasPrefix(value, "E ") {
		return
	}
	text := strings.Trim(strings.TrimSpace(value[2:]), `"`)
	if name, ok := strings.CutPrefix(text, "section "); ok {
		data.PracticeSections = append(data.PracticeSections, chart.PracticeSection{
			StartTick: tick,
			Name:      name,
		})
	}
}

// parseNoteLine handles "tick = N code duration" note events and
// "tick = S 2 duration" star-power phrases. Codes 0-4 are frets, 5 is
// the forced modifier, 6 tap, 7 open; modifiers attach to the chord at
// their tick and do not add a playable note of their own.
func parseNoteLine(track *chart.Track, line string) {
	tickStr, value, ok := splitKV(line)
	if !ok {
		return
	}
	tick, err := strconv.Atoi(tickStr)
	if err != nil {
		return
	}
	fields := strings.Fields(value)
	if len(fields) < 3 {
		return
	}
	code, err1 := strconv.Atoi(fields[1])
	duration, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return
	}

	switch fields[0] {
	case "N":
		note := chart.Note{Tick: tick, Duration: duration}
		switch code & 0x7 {
		case 5:
			note.Kind = chart.NoteHopo
			note.Fret = -1
		case 6:
			note.Kind = chart.NoteTap
			note.Fret = -1
		case 7:
			note.Kind = chart.NoteOpen
			note.Fret = 0
		default:
			note.Kind = chart.NoteNormal
			note.Fret = code & 0x7
		}
		track.Notes = append(track.Notes, note)
	case "S":
		if code == 2 {
			track.StarPowerPhrases = append(track.StarPowerPhrases, chart.StarPowerPhrase{
				StartTick: tick,
				EndTick:   tick + duration,
			})
		}
	}
}
