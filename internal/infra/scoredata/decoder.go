// Package scoredata decodes the game's packed score file.
//
// Layout (all little-endian):
//
//	header(4) songCount(u32)
//	per song: chartId(16) instrCount(u8) playCount(u24)
//	per instrument: instrId(u16) difficulty(u8) num(u16) den(u16)
//	                stars(u8) padding(4) score(u32)
//
// Bytes after the declared song count belong to future game versions
// and are ignored; a short read inside a record is an error.
package scoredata

import (
	"encoding/binary"
	"encoding/hex"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/goofenthol/chscore/internal/domain/score"
)

// ErrTruncated is returned when the file ends inside a declared record.
var ErrTruncated = errors.New("scoredata: truncated record")

const (
	headerLen      = 4
	chartIDLen     = 16
	instrRecordLen = 2 + 1 + 2 + 2 + 1 + 4 + 4
)

// DecodeFile reads and decodes the score file at path.
func DecodeFile(path string) ([]score.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read score file")
	}
	return Decode(data)
}

// Decode parses a score file image into one entry per instrument record.
func Decode(data []byte) ([]score.Entry, error) {
	if len(data) < headerLen+4 {
		return nil, errors.Wrap(ErrTruncated, "file header")
	}
	pos := headerLen
	songCount := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4

	var entries []score.Entry
	for s := 0; s < songCount; s++ {
		if pos+chartIDLen+1+3 > len(data) {
			return nil, errors.Wrapf(ErrTruncated, "song %d header", s)
		}
		chartID := score.ChartID(hex.EncodeToString(data[pos : pos+chartIDLen]))
		pos += chartIDLen

		instrCount := int(data[pos])
		pos++

		playCount := int(data[pos]) | int(data[pos+1])<<8 | int(data[pos+2])<<16
		pos += 3

		for i := 0; i < instrCount; i++ {
			if pos+instrRecordLen > len(data) {
				return nil, errors.Wrapf(ErrTruncated, "song %d instrument %d", s, i)
			}
			instr := score.Instrument(binary.LittleEndian.Uint16(data[pos:]))
			diff := score.Difficulty(data[pos+2])
			num := int(binary.LittleEndian.Uint16(data[pos+3:]))
			den := int(binary.LittleEndian.Uint16(data[pos+5:]))
			stars := int(data[pos+7])
			// 4 padding bytes at pos+8
			value := int(binary.LittleEndian.Uint32(data[pos+12:]))
			pos += instrRecordLen

			entries = append(entries, score.Entry{
				Fingerprint: score.Fingerprint{
					ChartID:    chartID,
					Instrument: instr,
					Difficulty: diff,
				},
				Score:         value,
				Stars:         stars,
				CompletionNum: num,
				CompletionDen: den,
				PlayCount:     playCount,
			})
		}
	}
	// Trailing bytes past the declared count are future-version fields.
	return entries, nil
}
