package sampler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/model"
	"github.com/ademuri/genre-pooling/internal/posterior"
)

const (
	jagsModelFile  = "model.bug"
	jagsDataFile   = "data.R"
	jagsScriptFile = "run.cmd"
	jagsCodaStem   = "CODA"
)

// JAGS runs the model through an installed jags binary in batch mode and
// reads back its CODA output.
type JAGS struct {
	Binary string
	Logger *slog.Logger
}

func NewJAGS(binary string, logger *slog.Logger) *JAGS {
	if binary == "" {
		binary = "jags"
	}
	return &JAGS{Binary: binary, Logger: logger}
}

func (j *JAGS) Name() string {
	return "jags"
}

func (j *JAGS) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *JAGS) Sample(ctx context.Context, m model.Model, d *dataset.Dataset, cfg Config) (*posterior.Samples, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	bin, err := exec.LookPath(j.Binary)
	if err != nil {
		return nil, fmt.Errorf("jags binary %q not found: %w", j.Binary, err)
	}

	dir, err := os.MkdirTemp("", "genre-pooling-jags-")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := writeJAGSFiles(dir, m, d, cfg); err != nil {
		return nil, err
	}

	j.logger().Debug("running jags", "model", m.Name, "dir", dir)
	cmd := exec.CommandContext(ctx, bin, jagsScriptFile)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, jagsError(err, out)
	}
	// jags exits 0 after most script errors.
	if strings.Contains(string(out), "RUNTIME ERROR") || strings.Contains(string(out), "Error in node") {
		return nil, jagsError(fmt.Errorf("jags reported an error"), out)
	}

	return readCODAFiles(dir, m.Name, cfg.Chains, MonitoredNames(m, d.J()))
}

func jagsError(err error, out []byte) error {
	text := strings.TrimSpace(string(out))
	lower := strings.ToLower(text)
	if strings.Contains(lower, "initiali") {
		return fmt.Errorf("%w: %v\n%s", ErrInit, err, text)
	}
	return fmt.Errorf("running jags: %w\n%s", err, text)
}

func writeJAGSFiles(dir string, m model.Model, d *dataset.Dataset, cfg Config) error {
	files := map[string]string{
		jagsModelFile:  m.JAGS(),
		jagsDataFile:   DumpData(d),
		jagsScriptFile: Script(m, cfg),
	}
	for c := 0; c < cfg.Chains; c++ {
		files[initsFile(c)] = fmt.Sprintf("\".RNG.name\" <- \"base::Mersenne-Twister\"\n\".RNG.seed\" <- %d\n", cfg.Seed%2147483647+uint64(c))
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

func initsFile(c int) string {
	return fmt.Sprintf("inits%d.R", c+1)
}

// Script is the jags batch script: compile, adapt, burn in, then monitor
// every node and the deviance.
func Script(m model.Model, cfg Config) string {
	var b strings.Builder
	b.WriteString("load dic\n")
	fmt.Fprintf(&b, "model in \"%s\"\n", jagsModelFile)
	fmt.Fprintf(&b, "data in \"%s\"\n", jagsDataFile)
	fmt.Fprintf(&b, "compile, nchains(%d)\n", cfg.Chains)
	for c := 0; c < cfg.Chains; c++ {
		fmt.Fprintf(&b, "parameters in \"%s\", chain(%d)\n", initsFile(c), c+1)
	}
	b.WriteString("initialize\n")
	if cfg.Adapt > 0 {
		fmt.Fprintf(&b, "adapt %d\n", cfg.Adapt)
	}
	if cfg.BurnIn > 0 {
		fmt.Fprintf(&b, "update %d\n", cfg.BurnIn)
	}
	for _, n := range m.Nodes {
		fmt.Fprintf(&b, "monitor %s, thin(%d)\n", n.Name, cfg.Thin)
	}
	fmt.Fprintf(&b, "monitor %s, thin(%d)\n", posterior.Deviance, cfg.Thin)
	fmt.Fprintf(&b, "update %d\n", cfg.Draws*cfg.Thin)
	fmt.Fprintf(&b, "coda *, stem(%s)\n", jagsCodaStem)
	b.WriteString("exit\n")
	return b.String()
}

// DumpData writes the observed variables in R dump format.
func DumpData(d *dataset.Dataset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q <- %d\n", model.DataN, d.N())
	fmt.Fprintf(&b, "%q <- %d\n", model.DataJ, d.J())

	columns := []struct {
		name   string
		column string
	}{
		{model.DataPopularity, dataset.Popularity},
		{model.DataDanceability, dataset.Danceability},
		{model.DataLength, dataset.LengthStandardized},
	}
	for _, c := range columns {
		values, _ := d.Column(c.column)
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		fmt.Fprintf(&b, "%q <- c(%s)\n", c.name, strings.Join(parts, ", "))
	}

	genres := d.GenreColumn()
	parts := make([]string, len(genres))
	for i, g := range genres {
		parts[i] = strconv.Itoa(g)
	}
	fmt.Fprintf(&b, "%q <- c(%s)\n", model.DataGenre, strings.Join(parts, ", "))
	return b.String()
}

func readCODAFiles(dir, modelName string, chains int, names []string) (*posterior.Samples, error) {
	index, err := os.Open(filepath.Join(dir, jagsCodaStem+"index.txt"))
	if err != nil {
		return nil, fmt.Errorf("opening coda index: %w", err)
	}
	defer index.Close()

	var readers []io.Reader
	for c := 0; c < chains; c++ {
		f, err := os.Open(filepath.Join(dir, fmt.Sprintf("%schain%d.txt", jagsCodaStem, c+1)))
		if err != nil {
			return nil, fmt.Errorf("opening coda chain %d: %w", c+1, err)
		}
		defer f.Close()
		readers = append(readers, f)
	}
	return ParseCODA(index, readers, modelName, names)
}

type codaRange struct {
	start, end int
}

// ParseCODA reads a CODA index and one CODA file per chain into samples for
// the given parameter names.
func ParseCODA(index io.Reader, chains []io.Reader, modelName string, names []string) (*posterior.Samples, error) {
	ranges := make(map[string]codaRange)
	scanner := bufio.NewScanner(index)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("coda index: malformed line %q", scanner.Text())
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("coda index: %s: %w", fields[0], err)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("coda index: %s: %w", fields[0], err)
		}
		ranges[fields[0]] = codaRange{start, end}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("coda index: %w", err)
	}

	samples := posterior.New(modelName, names, len(chains))
	for c, r := range chains {
		values, err := readCODAValues(r)
		if err != nil {
			return nil, fmt.Errorf("coda chain %d: %w", c+1, err)
		}

		draws := make([][]float64, len(names))
		for i, name := range names {
			rg, ok := ranges[name]
			if !ok {
				return nil, fmt.Errorf("coda index has no %s", name)
			}
			if rg.start < 1 || rg.end > len(values) || rg.start > rg.end {
				return nil, fmt.Errorf("coda chain %d: %s lines %d-%d out of range", c+1, name, rg.start, rg.end)
			}
			draws[i] = values[rg.start-1 : rg.end]
		}
		if err := samples.SetChain(c, draws); err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func readCODAValues(r io.Reader) ([]float64, error) {
	var values []float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed line %q", scanner.Text())
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", len(values)+1, err)
		}
		values = append(values, v)
	}
	return values, scanner.Err()
}
