package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

var requiredColumns = []string{Popularity, Danceability, Length, Genre}

// thousands matches numbers grouped with commas, e.g. 1,412 or 12,345.5.
var thousands = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// Read parses a delimited table with a header row into songs. Extra columns
// are ignored.
func Read(r io.Reader, opts Options) ([]Song, error) {
	delim := opts.Delimiter
	if delim == 0 {
		delim = ';'
	}

	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("reading header: %w", ErrEmpty)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	var songs []Song
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading rows: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if blank(record) {
			continue
		}

		song, err := parseSong(record, cols, delim)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		songs = append(songs, song)
	}
	return songs, nil
}

func locateColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		for _, want := range requiredColumns {
			if strings.EqualFold(h, want) {
				cols[want] = i
			}
		}
	}

	var missing []string
	for _, want := range requiredColumns {
		if _, ok := cols[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseSong(record []string, cols map[string]int, delim rune) (Song, error) {
	var song Song
	var err error

	cell := func(name string) (string, error) {
		i := cols[name]
		if i >= len(record) {
			return "", fmt.Errorf("column %s: %w", name, errors.New("missing cell"))
		}
		return strings.TrimSpace(record[i]), nil
	}
	number := func(name string) (float64, error) {
		raw, err := cell(name)
		if err != nil {
			return 0, err
		}
		if raw == "" {
			return 0, fmt.Errorf("column %s: empty cell", name)
		}
		if delim != ',' {
			raw = normalizeNumber(raw)
		}
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("column %s: non-finite value %q", name, raw)
		}
		return v, nil
	}

	if song.Popularity, err = number(Popularity); err != nil {
		return song, err
	}
	if song.Danceability, err = number(Danceability); err != nil {
		return song, err
	}
	if song.Length, err = number(Length); err != nil {
		return song, err
	}
	if song.Genre, err = cell(Genre); err != nil {
		return song, err
	}
	if song.Genre == "" {
		return song, fmt.Errorf("column %s: empty genre", Genre)
	}
	return song, nil
}

func blank(record []string) bool {
	for _, r := range record {
		if strings.TrimSpace(r) != "" {
			return false
		}
	}
	return true
}

// normalizeNumber strips thousands separators and turns a single decimal
// comma into a point. Anything else is left for the parser to reject.
func normalizeNumber(raw string) string {
	if thousands.MatchString(raw) {
		return strings.ReplaceAll(raw, ",", "")
	}
	if strings.Count(raw, ",") == 1 && !strings.Contains(raw, ".") {
		return strings.Replace(raw, ",", ".", 1)
	}
	return raw
}
