package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func syntheticSongs(n int, genres []string, seed uint64) []Song {
	rng := rand.New(rand.NewPCG(seed, 7))
	songs := make([]Song, n)
	for i := range songs {
		songs[i] = Song{
			Popularity:   rng.Float64() * 100,
			Danceability: rng.Float64() * 100,
			Length:       100 + rng.Float64()*300,
			Genre:        genres[i%len(genres)],
		}
	}
	return songs
}

func TestRead(t *testing.T) {
	input := `Index;Title;Genre;Danceability;Length;Popularity
1;Sunrise;adult standards;53;201;71
2;Black Night;album rock;50;207;39

3;Clint Eastwood;alternative hip hop;97;"1,412";69
`
	songs, err := Read(strings.NewReader(input), DefaultOptions())
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(songs) != 3 {
		t.Fatalf("Expected 3 songs, got %d", len(songs))
	}

	want := Song{Popularity: 69, Danceability: 97, Length: 1412, Genre: "alternative hip hop"}
	if songs[2] != want {
		t.Errorf("Expected %+v, got %+v", want, songs[2])
	}
}

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1,412", "1412"},
		{"12,345.5", "12345.5"},
		{"1,234,567", "1234567"},
		{"0,5", "0.5"},
		{"201,75", "201.75"},
		{"1,2,3", "1,2,3"},
		{"207", "207"},
	}
	for _, tc := range tests {
		if got := normalizeNumber(tc.in); got != tc.want {
			t.Errorf("normalizeNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	songs, err := Read(strings.NewReader("Popularity;Danceability;Length;Genre\n71;0,5;201;pop\n"), DefaultOptions())
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if songs[0].Danceability != 0.5 {
		t.Errorf("Expected decimal comma to parse as 0.5, got %v", songs[0].Danceability)
	}
}

func TestReadCaseInsensitiveHeader(t *testing.T) {
	input := "popularity,DANCEABILITY, length ,genre\n10,20,300,pop\n"
	songs, err := Read(strings.NewReader(input), Options{Delimiter: ','})
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(songs) != 1 || songs[0].Length != 300 {
		t.Errorf("Unexpected songs: %+v", songs)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
		text  string
	}{
		{
			name:  "missing column",
			input: "Popularity;Danceability;Genre\n1;2;pop\n",
			want:  ErrMissingColumn,
			text:  "Length",
		},
		{
			name:  "empty input",
			input: "",
			want:  ErrEmpty,
		},
		{
			name:  "bad number",
			input: "Popularity;Danceability;Length;Genre\n1;2;3;pop\nx;2;3;pop\n",
			text:  "line 3",
		},
		{
			name:  "empty genre",
			input: "Popularity;Danceability;Length;Genre\n1;2;3;\n",
			text:  "empty genre",
		},
		{
			name:  "empty number",
			input: "Popularity;Danceability;Length;Genre\n1;;3;pop\n",
			text:  "empty cell",
		},
		{
			name:  "nan length",
			input: "Popularity;Danceability;Length;Genre\n1;2;3;pop\n50;40;NaN;a\n",
			text:  "line 3",
		},
		{
			name:  "infinite danceability",
			input: "Popularity;Danceability;Length;Genre\n60;Inf;300;b\n",
			text:  "non-finite",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.input), DefaultOptions())
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
			if tc.text != "" && !strings.Contains(err.Error(), tc.text) {
				t.Errorf("Expected error mentioning %q, got %v", tc.text, err)
			}
		})
	}
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.25, 2},
		{0.5, 3},
		{0.9, 4.6},
		{1, 5},
	}
	for _, tc := range tests {
		if got := quantile(sorted, tc.p); got < tc.want-1e-9 || got > tc.want+1e-9 {
			t.Errorf("quantile(%v) = %v, want %v", tc.p, got, tc.want)
		}
	}
}

func TestCleanLengthRange(t *testing.T) {
	songs := syntheticSongs(500, []string{"rock", "pop", "jazz"}, 1)
	d, err := Clean(songs, DefaultOptions())
	if err != nil {
		t.Fatalf("Clean() error: %v", err)
	}

	lengths, err := d.Column(LengthStandardized)
	if err != nil {
		t.Fatalf("Column() error: %v", err)
	}
	sawMin, sawMax := false, false
	for _, l := range lengths {
		if l < 0 || l > 100 {
			t.Fatalf("Standardized length %v out of [0, 100]", l)
		}
		if l == 0 {
			sawMin = true
		}
		if l == 100 {
			sawMax = true
		}
	}
	if !sawMin || !sawMax {
		t.Errorf("Expected standardized length to reach 0 and 100, min=%v max=%v", sawMin, sawMax)
	}
}

func TestCleanFilterBounds(t *testing.T) {
	songs := syntheticSongs(1000, []string{"rock", "pop"}, 2)
	d, err := Clean(songs, DefaultOptions())
	if err != nil {
		t.Fatalf("Clean() error: %v", err)
	}

	if d.Raw != 1000 || d.N()+d.Dropped != d.Raw {
		t.Errorf("Row accounting off: raw=%d n=%d dropped=%d", d.Raw, d.N(), d.Dropped)
	}
	if d.Dropped > 55 {
		t.Errorf("Expected at most ~5%% of rows dropped, got %d", d.Dropped)
	}

	// Every song strictly inside the bounds must survive.
	kept := make(map[float64]bool)
	for i := 0; i < d.N(); i++ {
		kept[d.Song(i).Length] = true
	}
	for _, s := range songs {
		if s.Length > d.LengthBounds.Lower && s.Length < d.LengthBounds.Upper && !kept[s.Length] {
			t.Errorf("Song with length %v inside bounds %+v was dropped", s.Length, d.LengthBounds)
		}
	}
}

func TestCleanOneHundredRows(t *testing.T) {
	songs := syntheticSongs(100, []string{"a", "b"}, 3)
	d, err := Clean(songs, DefaultOptions())
	if err != nil {
		t.Fatalf("Clean() error: %v", err)
	}
	// 1st percentile removes the minimum, 96th removes the top four.
	if d.Dropped != 5 {
		t.Errorf("Expected 5 dropped rows, got %d", d.Dropped)
	}
}

func TestIndexGenres(t *testing.T) {
	songs := []Song{
		{Genre: "rock", Length: 1},
		{Genre: "jazz", Length: 2},
		{Genre: "rock", Length: 3},
		{Genre: "blues", Length: 4},
	}

	indexed, labels := IndexGenres(songs)
	wantLabels := []string{"blues", "jazz", "rock"}
	if fmt.Sprint(labels) != fmt.Sprint(wantLabels) {
		t.Fatalf("Expected labels %v, got %v", wantLabels, labels)
	}
	wantIndex := []int{3, 2, 3, 1}
	for i, s := range indexed {
		if s.GenreIndex != wantIndex[i] {
			t.Errorf("Song %d: expected index %d, got %d", i, wantIndex[i], s.GenreIndex)
		}
		if labels[s.GenreIndex-1] != s.Genre {
			t.Errorf("Song %d: index %d does not map back to %q", i, s.GenreIndex, s.Genre)
		}
	}
	if songs[0].GenreIndex != 0 {
		t.Error("IndexGenres modified its input")
	}

	// Same input in a different order gives the same mapping.
	shuffled := []Song{songs[3], songs[2], songs[1], songs[0]}
	_, again := IndexGenres(shuffled)
	if fmt.Sprint(again) != fmt.Sprint(labels) {
		t.Errorf("Mapping not deterministic: %v vs %v", labels, again)
	}
}

func TestRescaleZeroRange(t *testing.T) {
	songs := []Song{{Length: 5, Genre: "a"}, {Length: 5, Genre: "b"}}
	_, err := RescaleLength(songs)
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("Expected ErrDegenerate, got %v", err)
	}
}

func TestCleanErrors(t *testing.T) {
	if _, err := Clean(nil, DefaultOptions()); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}

	opts := DefaultOptions()
	opts.LowerQuantile = 0.9
	opts.UpperQuantile = 0.1
	if _, err := Clean(syntheticSongs(10, []string{"a"}, 4), opts); err == nil {
		t.Error("Expected error for inverted quantiles")
	}
}

func TestDegenerate(t *testing.T) {
	d, err := Clean(syntheticSongs(50, []string{"only"}, 5), DefaultOptions())
	if err != nil {
		t.Fatalf("Clean() error: %v", err)
	}
	if !d.Degenerate() {
		t.Error("Expected single-genre dataset to be degenerate")
	}

	d, err = Clean(syntheticSongs(50, []string{"a", "b"}, 5), DefaultOptions())
	if err != nil {
		t.Fatalf("Clean() error: %v", err)
	}
	if d.Degenerate() {
		t.Error("Expected two-genre dataset not to be degenerate")
	}
	sizes := d.GroupSizes()
	if sizes[0]+sizes[1] != d.N() {
		t.Errorf("Group sizes %v do not add up to %d", sizes, d.N())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.csv")
	var sb strings.Builder
	sb.WriteString("Popularity;Danceability;Length;Genre\n")
	for _, s := range syntheticSongs(40, []string{"a", "b"}, 6) {
		fmt.Fprintf(&sb, "%g;%g;%g;%s\n", s.Popularity, s.Danceability, s.Length, s.Genre)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := Load(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Load(%s) error: %v", path, err)
	}
	if d.J() != 2 || d.Raw != 40 {
		t.Errorf("Unexpected dataset: J=%d raw=%d", d.J(), d.Raw)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv"), DefaultOptions()); err == nil {
		t.Error("Expected error for missing file")
	}
}
