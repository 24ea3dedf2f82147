package domain

import (
	"fmt"
	"time"

	"github.com/mitchellh/copystructure"
)

// Config представляет конфигурацию координатора и воркеров
type Config struct {
	Broker      BrokerConfig    `yaml:"broker"`
	Partition   PartitionConfig `yaml:"partition"`
	Collect     CollectConfig   `yaml:"collect"`
	Aggregate   AggregateConfig `yaml:"aggregate"`
	Worker      WorkerConfig    `yaml:"worker"`
	Physics     PhysicsConfig   `yaml:"physics"`
	Samples     []SampleGroup   `yaml:"samples"`
	LogLevel    string          `yaml:"log_level"`
	LogFile     string          `yaml:"log_file"`
	Output      string          `yaml:"output"`
	MetricsFile string          `yaml:"metrics_file"`
}

type BrokerConfig struct {
	URL             string        `yaml:"url"`
	TasksQueue      string        `yaml:"tasks_queue"`
	ResultsQueue    string        `yaml:"results_queue"`
	ConnectRetries  int           `yaml:"connect_retries"`
	ConnectInterval time.Duration `yaml:"connect_interval"`
}

type PartitionConfig struct {
	Root             string  `yaml:"root"`
	Fraction         float64 `yaml:"fraction"`
	BatchSize        int64   `yaml:"batch_size"`
	MeasuredGroup    string  `yaml:"measured_group"`
	MeasuredPattern  string  `yaml:"measured_pattern"`
	SimulatedPattern string  `yaml:"simulated_pattern"`
}

// DefaultMaxMissingFraction is the share of missing units a run tolerates
// when max_missing_fraction is not set.
const DefaultMaxMissingFraction = 0.5

type CollectConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Deadline     time.Duration `yaml:"deadline"`
	// Nil means unset; an explicit 0 makes any missing unit fatal.
	MaxMissingFraction *float64 `yaml:"max_missing_fraction"`
}

// MissingThreshold returns the tolerated share of missing units.
func (c CollectConfig) MissingThreshold() float64 {
	if c.MaxMissingFraction == nil {
		return DefaultMaxMissingFraction
	}
	return *c.MaxMissingFraction
}

type AggregateConfig struct {
	MinPopulation int `yaml:"min_population"`
}

type WorkerConfig struct {
	FetchRetries  int           `yaml:"fetch_retries"`
	FetchInterval time.Duration `yaml:"fetch_interval"`
	CacheSize     int           `yaml:"cache_size"`
}

type PhysicsConfig struct {
	Luminosity float64 `yaml:"luminosity"`
	InfoFile   string  `yaml:"info_file"`
	MassMin    float64 `yaml:"mass_min"`
	MassMax    float64 `yaml:"mass_max"`
	BinWidth   float64 `yaml:"bin_width"`
}

// SampleGroup is a named group of subsamples, e.g. measured data or one
// simulated background process.
type SampleGroup struct {
	Name       string   `yaml:"name"`
	Subsamples []string `yaml:"subsamples"`
	Color      string   `yaml:"color"`
}

// GroupNames returns the sample group names in configuration order.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Samples))
	for _, s := range c.Samples {
		names = append(names, s.Name)
	}
	return names
}

// SubsampleInfo holds the per-subsample weighting metadata of simulated data.
type SubsampleInfo struct {
	DSID   int     `yaml:"dsid"`
	XSec   float64 `yaml:"xsec"`
	SumW   float64 `yaml:"sumw"`
	RedEff float64 `yaml:"red_eff"`
}

type InfoTable map[string]SubsampleInfo

// Kind определяет путь обработки единицы
type Kind string

const (
	KindMeasured  Kind = "measured"
	KindSimulated Kind = "simulated"
)

func (k Kind) Valid() bool {
	return k == KindMeasured || k == KindSimulated
}

// Range is the half-open record interval [Start, Stop) of a source.
type Range struct {
	Start int64 `msgpack:"start"`
	Stop  int64 `msgpack:"stop"`
}

func (r Range) Len() int64 {
	return r.Stop - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.Stop)
}

// Event is one selected four-lepton candidate.
type Event struct {
	Mass   float64 `msgpack:"mass"`
	Weight float64 `msgpack:"weight"`
}

// Result is the processed payload of a unit.
type Result struct {
	EventsBefore int     `msgpack:"events_before"`
	Events       []Event `msgpack:"events"`
}

// Unit is one bounded slice of a source, the atomic item of distributed work.
// Identity fields are fixed at partition time; the result is write-once.
type Unit struct {
	ID       string
	Group    string
	Subgroup string
	Kind     Kind
	Source   string
	Fraction float64
	Range    Range

	result *Result
}

// Result returns a copy of the processed payload, nil until a worker has
// filled it.
func (u Unit) Result() *Result {
	if u.result == nil {
		return nil
	}
	return copystructure.Must(copystructure.Copy(u.result)).(*Result)
}

func (u Unit) HasResult() bool {
	return u.result != nil
}

// WithResult returns a copy of u carrying a deep copy of r. A unit that
// already has a result cannot be given another one.
func (u Unit) WithResult(r *Result) (Unit, error) {
	if r == nil {
		return u, fmt.Errorf("%w: nil result for unit %s", ErrInvalidUnit, u.ID)
	}
	if u.result != nil {
		return u, fmt.Errorf("%w: unit %s", ErrResultAlreadySet, u.ID)
	}
	copied, err := copystructure.Copy(r)
	if err != nil {
		return u, fmt.Errorf("copy result of unit %s: %w", u.ID, err)
	}
	u.result = copied.(*Result)
	return u, nil
}

// Equal compares units by identifier only.
func (u Unit) Equal(other Unit) bool {
	return u.ID == other.ID
}

// Validate checks the identity fields of the unit.
func (u Unit) Validate() error {
	switch {
	case u.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidUnit)
	case !u.Kind.Valid():
		return fmt.Errorf("%w: unit %s has kind %q", ErrInvalidUnit, u.ID, u.Kind)
	case u.Range.Start < 0 || u.Range.Start >= u.Range.Stop:
		return fmt.Errorf("%w: unit %s has range %s", ErrInvalidUnit, u.ID, u.Range)
	}
	return nil
}

func (u Unit) String() string {
	return fmt.Sprintf("%s %s/%s %s", u.ID, u.Group, u.Subgroup, u.Range)
}

// Collection is the per-group aggregate handed to the reporter.
type Collection struct {
	Group  string
	Units  int
	Events []Event
}

// Population is the number of events in the collection.
func (c *Collection) Population() int {
	return len(c.Events)
}

// Histogram представляет взвешенную гистограмму массы
type Histogram struct {
	Edges  []float64
	Counts []float64
}

func (h Histogram) Len() int {
	return len(h.Counts)
}
