package dataset

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmpty         = errors.New("no songs")
	ErrDegenerate    = errors.New("degenerate data")
)

// Column names, as they appear in the input header.
const (
	Popularity         = "Popularity"
	Danceability       = "Danceability"
	Length             = "Length"
	Genre              = "Genre"
	LengthStandardized = "Length_standardized"
)

// Song is one observation.
type Song struct {
	Popularity         float64
	Danceability       float64
	Length             float64
	LengthStandardized float64
	Genre              string

	// GenreIndex is 1..J once the dataset has been indexed, 0 before.
	GenreIndex int
}

type Options struct {
	// Delimiter between cells. Zero means ';'.
	Delimiter rune

	// Songs with Length outside these quantiles of the raw input are dropped.
	LowerQuantile float64
	UpperQuantile float64
}

func DefaultOptions() Options {
	return Options{
		Delimiter:     ';',
		LowerQuantile: 0.01,
		UpperQuantile: 0.96,
	}
}

type Bounds struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// Dataset is a cleaned, genre-indexed table. It is not modified after Clean
// returns it.
type Dataset struct {
	songs  []Song
	genres []string

	// Raw is the number of songs read before outlier filtering.
	Raw int
	// Dropped is the number of songs removed as length outliers.
	Dropped int
	// LengthBounds are the quantile cutoffs applied to the raw length.
	LengthBounds Bounds
}

// Load reads and cleans the table at path.
func Load(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	songs, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Clean(songs, opts)
}

// Clean filters length outliers, rescales length to 0-100 and indexes genres.
func Clean(songs []Song, opts Options) (*Dataset, error) {
	if len(songs) == 0 {
		return nil, fmt.Errorf("clean: %w", ErrEmpty)
	}
	if opts.LowerQuantile < 0 || opts.UpperQuantile > 1 || opts.LowerQuantile >= opts.UpperQuantile {
		return nil, fmt.Errorf("clean: invalid quantile range [%g, %g]", opts.LowerQuantile, opts.UpperQuantile)
	}

	bounds := LengthQuantiles(songs, opts.LowerQuantile, opts.UpperQuantile)
	filtered := FilterLength(songs, bounds)
	if len(filtered) == 0 {
		return nil, fmt.Errorf("clean: after length filter: %w", ErrEmpty)
	}

	rescaled, err := RescaleLength(filtered)
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}

	indexed, genres := IndexGenres(rescaled)
	return &Dataset{
		songs:        indexed,
		genres:       genres,
		Raw:          len(songs),
		Dropped:      len(songs) - len(filtered),
		LengthBounds: bounds,
	}, nil
}

// LengthQuantiles returns the lower and upper length cutoffs over songs.
func LengthQuantiles(songs []Song, lower, upper float64) Bounds {
	lengths := make([]float64, len(songs))
	for i, s := range songs {
		lengths[i] = s.Length
	}
	sort.Float64s(lengths)
	return Bounds{
		Lower: quantile(lengths, lower),
		Upper: quantile(lengths, upper),
	}
}

// quantile interpolates linearly between the order statistics around
// p*(n-1), which is the default rule of most dataframe libraries. gonum's
// stat.Quantile only offers the empirical and the (n*p) interpolation rules.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := p * float64(len(sorted)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// FilterLength returns the songs whose length lies within bounds, inclusive.
func FilterLength(songs []Song, bounds Bounds) []Song {
	out := make([]Song, 0, len(songs))
	for _, s := range songs {
		if s.Length < bounds.Lower || s.Length > bounds.Upper {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RescaleLength returns a copy of songs with LengthStandardized set to the
// min-max rescaled length in [0, 100].
func RescaleLength(songs []Song) ([]Song, error) {
	if len(songs) == 0 {
		return nil, ErrEmpty
	}
	lengths := make([]float64, len(songs))
	for i, s := range songs {
		lengths[i] = s.Length
	}
	lo, hi := floats.Min(lengths), floats.Max(lengths)
	if hi == lo {
		return nil, fmt.Errorf("length has zero range (%g): %w", lo, ErrDegenerate)
	}

	out := make([]Song, len(songs))
	for i, s := range songs {
		s.LengthStandardized = (s.Length - lo) / (hi - lo) * 100
		out[i] = s
	}
	return out, nil
}

// IndexGenres assigns each distinct genre label an index 1..J in sorted label
// order. It returns a copy of songs and the labels, where labels[j-1] is the
// label of index j.
func IndexGenres(songs []Song) ([]Song, []string) {
	seen := make(map[string]bool)
	var labels []string
	for _, s := range songs {
		if !seen[s.Genre] {
			seen[s.Genre] = true
			labels = append(labels, s.Genre)
		}
	}
	sort.Strings(labels)

	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i + 1
	}

	out := make([]Song, len(songs))
	for i, s := range songs {
		s.GenreIndex = index[s.Genre]
		out[i] = s
	}
	return out, labels
}

func (d *Dataset) N() int {
	return len(d.songs)
}

// J is the number of distinct genres.
func (d *Dataset) J() int {
	return len(d.genres)
}

// Degenerate reports whether there are too few genres for the genre-indexed
// models to differ from the pooled one.
func (d *Dataset) Degenerate() bool {
	return d.J() < 2
}

// Genres returns the genre labels ordered by index.
func (d *Dataset) Genres() []string {
	return append([]string(nil), d.genres...)
}

// Genre returns the label for a 1-based index.
func (d *Dataset) Genre(j int) string {
	return d.genres[j-1]
}

func (d *Dataset) Song(i int) Song {
	return d.songs[i]
}

// GroupSizes returns the number of songs per genre, ordered by index.
func (d *Dataset) GroupSizes() []int {
	sizes := make([]int, d.J())
	for _, s := range d.songs {
		sizes[s.GenreIndex-1]++
	}
	return sizes
}

// Column returns a copy of a numeric column by its header name.
func (d *Dataset) Column(name string) ([]float64, error) {
	var get func(Song) float64
	switch name {
	case Popularity:
		get = func(s Song) float64 { return s.Popularity }
	case Danceability:
		get = func(s Song) float64 { return s.Danceability }
	case Length:
		get = func(s Song) float64 { return s.Length }
	case LengthStandardized:
		get = func(s Song) float64 { return s.LengthStandardized }
	default:
		return nil, fmt.Errorf("unknown numeric column %q", name)
	}
	out := make([]float64, len(d.songs))
	for i, s := range d.songs {
		out[i] = get(s)
	}
	return out, nil
}

// GenreColumn returns the 1-based genre index of every song.
func (d *Dataset) GenreColumn() []int {
	out := make([]int, len(d.songs))
	for i, s := range d.songs {
		out[i] = s.GenreIndex
	}
	return out
}
