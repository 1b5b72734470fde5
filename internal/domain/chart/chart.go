// Package chart provides the parsed chart aggregate and its derived
// metrics (playable notes, chords, song length, note density).
package chart

import "sort"

// NoteKind classifies a playable note.
type NoteKind int

const (
	NoteNormal NoteKind = iota
	NoteHopo
	NoteTap
	NoteOpen
)

// Note is a single note event at a tick. Notes sharing a tick form one
// playable note (a chord).
type Note struct {
	Tick     int
	Fret     int
	Duration int
	Kind     NoteKind
}

// StarPowerPhrase is one star-power window.
type StarPowerPhrase struct {
	StartTick int
	EndTick   int
}

// PracticeSection is a practice-mode section marker.
type PracticeSection struct {
	StartTick int
	Name      string
}

// TempoEvent is one entry of the piecewise-constant tempo map. BPM is
// stored scaled by 1000, as the .chart format does.
type TempoEvent struct {
	Tick         int
	BPMTimes1000 int
}

// TimeSignature is a time-signature change.
type TimeSignature struct {
	Tick        int
	Numerator   int
	Denominator int
}

// TrackKey identifies one (instrument, difficulty) chart.
type TrackKey struct {
	Instrument int
	Difficulty int
}

// Track holds the note data for one (instrument, difficulty) chart.
type Track struct {
	Notes            []Note
	StarPowerPhrases []StarPowerPhrase

	// Derived by Finalize.
	TotalPlayableNotes int
	ChordCount         int
	HopoCount          int
	TapCount           int
	OpenCount          int
}

// Finalize sorts the notes and computes the per-track counters.
//
// A playable note is one distinct tick with at least one note at it; a
// chord of K frets counts as one playable note. A tick is a chord when
// two or more frets sound together (the open note occupies fret 0 and
// never stacks).
func (t *Track) Finalize() {
	sort.Slice(t.Notes, func(i, j int) bool {
		if t.Notes[i].Tick != t.Notes[j].Tick {
			return t.Notes[i].Tick < t.Notes[j].Tick
		}
		return t.Notes[i].Fret < t.Notes[j].Fret
	})

	t.TotalPlayableNotes = 0
	t.ChordCount = 0
	t.HopoCount = 0
	t.TapCount = 0
	t.OpenCount = 0

	i := 0
	for i < len(t.Notes) {
		j := i
		frets := 0
		hopo, tap, open := false, false, false
		for j < len(t.Notes) && t.Notes[j].Tick == t.Notes[i].Tick {
			switch t.Notes[j].Kind {
			case NoteHopo:
				hopo = true
			case NoteTap:
				tap = true
			case NoteOpen:
				open = true
				frets++
			default:
				frets++
			}
			j++
		}
		// Modifier-only ticks carry no playable note.
		if frets >= 1 {
			t.TotalPlayableNotes++
			if frets >= 2 {
				t.ChordCount++
			}
			if hopo {
				t.HopoCount++
			}
			if tap {
				t.TapCount++
			}
			if open {
				t.OpenCount++
			}
		}
		i = j
	}
}

// lastTickEnd returns the latest note onset + duration in the track.
func (t *Track) lastTickEnd() int {
	end := 0
	for _, n := range t.Notes {
		if n.Tick+n.Duration > end {
			end = n.Tick + n.Duration
		}
	}
	return end
}

// Data is the complete parsed chart aggregate.
type Data struct {
	// Metadata from [Song] / song.ini, when present.
	Name    string
	Artist  string
	Charter string
	Album   string
	Year    string
	Genre   string

	Resolution       int // ticks per beat
	TempoMap         []TempoEvent
	TimeSignatures   []TimeSignature
	PracticeSections []PracticeSection

	Tracks map[TrackKey]*Track

	SongLengthMS int
}

// New returns an empty aggregate with the .chart default resolution.
func New() *Data {
	return &Data{
		Resolution: 192,
		Tracks:     map[TrackKey]*Track{},
	}
}

// TrackFor returns the track for the key, creating it if needed.
func (d *Data) TrackFor(key TrackKey) *Track {
	t, ok := d.Tracks[key]
	if !ok {
		t = &Track{}
		d.Tracks[key] = t
	}
	return t
}

// Finalize computes per-track counters and the song length.
func (d *Data) Finalize() {
	maxEnd := 0
	for _, t := range d.Tracks {
		t.Finalize()
		if end := t.lastTickEnd(); end > maxEnd {
			maxEnd = end
		}
	}
	d.SongLengthMS = d.lengthMS(maxEnd)
}

// lengthMS integrates the tempo map from tick 0 to endTick. Each tempo
// segment contributes ticks / resolution / bpm * 60000 ms.
func (d *Data) lengthMS(endTick int) int {
	if endTick <= 0 || len(d.TempoMap) == 0 {
		return 0
	}
	res := d.Resolution
	if res <= 0 {
		res = 192
	}

	tempo := make([]TempoEvent, len(d.TempoMap))
	copy(tempo, d.TempoMap)
	sort.Slice(tempo, func(i, j int) bool { return tempo[i].Tick < tempo[j].Tick })

	totalMS := 0.0
	for i, ev := range tempo {
		segStart := ev.Tick
		segEnd := endTick
		if i+1 < len(tempo) && tempo[i+1].Tick < segEnd {
			segEnd = tempo[i+1].Tick
		}
		if segStart >= endTick || segEnd <= segStart {
			continue
		}
		bpm := float64(ev.BPMTimes1000) / 1000.0
		if bpm <= 0 {
			continue
		}
		beats := float64(segEnd-segStart) / float64(res)
		totalMS += beats / bpm * 60000
	}
	return int(totalMS)
}

// NoteDensity returns playable notes per second for one track, or 0
// when the song length is unknown.
func (d *Data) NoteDensity(key TrackKey) float64 {
	t, ok := d.Tracks[key]
	if !ok || d.SongLengthMS == 0 {
		return 0
	}
	return float64(t.TotalPlayableNotes) * 1000 / float64(d.SongLengthMS)
}
