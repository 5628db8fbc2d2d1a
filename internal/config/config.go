package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dayplan/internal/domain"
	"dayplan/internal/planner"
)

const (
	FileName = "dayplan.yml"

	ModeLocal  = "local"
	ModeRemote = "remote"

	DefaultTimeout       = 5 * time.Second
	DefaultHealthTimeout = 2 * time.Second
	DefaultTopK          = 3
	DefaultThreshold     = 0.25
)

// Config models dayplan.yml.
type Config struct {
	Taxonomy   Taxonomy   `yaml:"taxonomy"`
	Classifier Classifier `yaml:"classifier"`
	Planner    struct {
		DayStart string `yaml:"day_start"`
		DayEnd   string `yaml:"day_end"`
	} `yaml:"planner"`
	Server struct {
		Addr        string   `yaml:"addr"`
		BasePath    string   `yaml:"base_path"`
		CORSOrigins []string `yaml:"cors_origins"`
		RatePerSec  float64  `yaml:"rate_per_sec"`
		Burst       int      `yaml:"burst"`
	} `yaml:"server"`
	Log struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
		File    string `yaml:"file"`
	} `yaml:"log"`
}

// Taxonomy is the category set prototypes are built from.
type Taxonomy struct {
	EmbeddingModel string              `yaml:"embedding_model" json:"embedding_model"`
	Categories     []domain.Category   `yaml:"categories" json:"categories"`
	Seeds          map[string][]string `yaml:"seeds" json:"seeds"`
}

type Classifier struct {
	Mode             string   `yaml:"mode"`
	ArtifactsDir     string   `yaml:"artifacts_dir"`
	ModelsDir        string   `yaml:"models_dir"`
	Embeddings       string   `yaml:"embeddings"`
	RemoteURL        string   `yaml:"remote_url"`
	Timeout          string   `yaml:"timeout"`
	HealthTimeout    string   `yaml:"health_timeout"`
	TopK             *int     `yaml:"top_k"`
	UnknownThreshold *float64 `yaml:"unknown_threshold"`
	Watch            bool     `yaml:"watch"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with dp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := c.Taxonomy.Validate(); err != nil {
		return err
	}
	switch c.Classifier.Mode {
	case ModeLocal:
	case ModeRemote:
		if strings.TrimSpace(c.Classifier.RemoteURL) == "" {
			return fmt.Errorf("config.classifier.remote_url is required in remote mode")
		}
	default:
		return fmt.Errorf("config.classifier.mode must be %q or %q", ModeLocal, ModeRemote)
	}
	if _, err := ParseDurationField("config.classifier.timeout", c.Classifier.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("config.classifier.health_timeout", c.Classifier.HealthTimeout); err != nil {
		return err
	}
	if c.Classifier.TopK != nil && *c.Classifier.TopK < 0 {
		return fmt.Errorf("config.classifier.top_k must be >= 0")
	}
	if th := c.Classifier.UnknownThreshold; th != nil && (*th < -1 || *th > 1) {
		return fmt.Errorf("config.classifier.unknown_threshold must be within [-1, 1]")
	}
	start, end, err := c.Window()
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("config.planner.day_end must be after day_start")
	}
	if c.Server.RatePerSec < 0 || c.Server.Burst < 0 {
		return fmt.Errorf("config.server rate limits must be >= 0")
	}
	return nil
}

// Validate checks that every category is named once and has a seed entry.
func (t Taxonomy) Validate() error {
	if strings.TrimSpace(t.EmbeddingModel) == "" {
		return fmt.Errorf("config.taxonomy.embedding_model is required")
	}
	if len(t.Categories) == 0 {
		return fmt.Errorf("config.taxonomy.categories is required")
	}
	seen := map[string]bool{}
	var missing []string
	for _, c := range t.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("config.taxonomy.categories contains an empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("config.taxonomy.categories lists %s twice", c.Name)
		}
		seen[c.Name] = true
		if c.Color != "" && !strings.HasPrefix(c.Color, "#") {
			return fmt.Errorf("category %s color must be a #rrggbb value", c.Name)
		}
		if _, ok := t.Seeds[c.Name]; !ok {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("config.taxonomy.seeds missing entries for: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Window returns the configured planning day in minutes from midnight.
func (c *Config) Window() (start, end int, err error) {
	start, err = planner.ParseClock(c.Planner.DayStart)
	if err != nil {
		return 0, 0, fmt.Errorf("config.planner.day_start: %w", err)
	}
	end, err = planner.ParseClock(c.Planner.DayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("config.planner.day_end: %w", err)
	}
	return start, end, nil
}

// RequestTimeout bounds a remote classify call.
func (c Classifier) RequestTimeout() time.Duration {
	d, err := ParseDurationOrDefault("timeout", c.Timeout, DefaultTimeout)
	if err != nil {
		return DefaultTimeout
	}
	return d
}

// HealthCheckTimeout bounds a remote health probe.
func (c Classifier) HealthCheckTimeout() time.Duration {
	d, err := ParseDurationOrDefault("health_timeout", c.HealthTimeout, DefaultHealthTimeout)
	if err != nil {
		return DefaultHealthTimeout
	}
	return d
}

func (c Classifier) TopKOrDefault() int {
	if c.TopK == nil {
		return DefaultTopK
	}
	return *c.TopK
}

func (c Classifier) ThresholdOrDefault() float64 {
	if c.UnknownThreshold == nil {
		return DefaultThreshold
	}
	return *c.UnknownThreshold
}

// Resolve makes a workspace-relative path absolute. Empty stays empty.
func Resolve(workspace, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, p)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
// Sections left out of the document keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults(Default())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Marshal renders the effective config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) applyDefaults(d *Config) {
	if len(c.Taxonomy.Categories) == 0 && len(c.Taxonomy.Seeds) == 0 {
		model := c.Taxonomy.EmbeddingModel
		c.Taxonomy = d.Taxonomy
		if model != "" {
			c.Taxonomy.EmbeddingModel = model
		}
	}
	if c.Taxonomy.EmbeddingModel == "" {
		c.Taxonomy.EmbeddingModel = d.Taxonomy.EmbeddingModel
	}
	setIfEmpty(&c.Classifier.Mode, d.Classifier.Mode)
	setIfEmpty(&c.Classifier.ArtifactsDir, d.Classifier.ArtifactsDir)
	setIfEmpty(&c.Classifier.ModelsDir, d.Classifier.ModelsDir)
	setIfEmpty(&c.Classifier.Timeout, d.Classifier.Timeout)
	setIfEmpty(&c.Classifier.HealthTimeout, d.Classifier.HealthTimeout)
	setIfEmpty(&c.Planner.DayStart, d.Planner.DayStart)
	setIfEmpty(&c.Planner.DayEnd, d.Planner.DayEnd)
	setIfEmpty(&c.Server.Addr, d.Server.Addr)
	setIfEmpty(&c.Server.BasePath, d.Server.BasePath)
	setIfEmpty(&c.Log.Level, d.Log.Level)
}

func setIfEmpty(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

const defaultTemplate = `taxonomy:
  embedding_model: fasttext-wiki-news-subwords-300
  categories:
    - {name: Fitness, color: "#10b981"}
    - {name: Health, color: "#f59e0b"}
    - {name: Meditation, color: "#8b5cf6"}

    - {name: Study, color: "#3b82f6"}
    - {name: Languages, color: "#ef4444"}
    - {name: Skills, color: "#06b6d4"}

    - {name: Job Search, color: "#f97316"}
    - {name: Interviews, color: "#84cc16"}
    - {name: Work, color: "#1e40af"}
    - {name: Freelance, color: "#7c3aed"}

    - {name: Reading, color: "#14b8a6"}
    - {name: Journaling, color: "#a855f7"}
    - {name: Hobbies, color: "#f472b6"}

    - {name: Goals, color: "#059669"}
    - {name: Habits, color: "#dc2626"}
    - {name: Projects, color: "#ea580c"}

  seeds:
    Fitness: [gym workout, strength training, run cardio, exercise routine, HIIT session]
    Health: [doctor appointment, medicine, healthy diet, sleep schedule, nutrition]
    Meditation: [meditation, mindfulness, breathing exercise, guided meditation, relaxation]
    Study: [study session, revise exam, coursework, lecture notes, research paper]
    Languages: [learn language, vocabulary practice, speaking practice, grammar exercises, language lesson]
    Skills: [learn python, coding practice, data analysis, machine learning, presentation skills]
    Job Search: [apply for jobs, update CV, resume, cover letter, linkedin profile]
    Interviews: [interview prep, mock interview, technical interview, behavioral interview]
    Work: [team meeting, client call, project deadline, send email, weekly report]
    Freelance: [freelance project, client proposal, invoice client, contract work]
    Reading: [read book, finish chapter, library, book notes]
    Journaling: [write journal, daily reflection, gratitude journal, journal prompts]
    Hobbies: [play guitar, photography, painting, gaming, cooking for fun]
    Goals: [set goals, goal planning, monthly goals, milestones]
    Habits: [habit tracking, morning routine, daily habit, habit streak]
    Projects: [build an app, side project, ship feature, project roadmap]

classifier:
  # local loads prototypes in-process; remote calls a dp serve instance.
  mode: local
  artifacts_dir: protos
  models_dir: models
  # embeddings: /path/to/vectors.vec.gz
  remote_url: ""
  timeout: 5s
  health_timeout: 2s
  top_k: 3
  unknown_threshold: 0.25
  watch: false

planner:
  day_start: "09:00"
  day_end: "17:00"

server:
  addr: 127.0.0.1:8086
  base_path: /v0
  cors_origins: []
  rate_per_sec: 20
  burst: 40

log:
  level: info
  console: true
  file: ""
`
