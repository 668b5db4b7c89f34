// Package sequence loads the outreach sequence catalog: named, ordered lists
// of channel steps whose subject and body are text/template sources.
package sequence

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Channels a step may use.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// Data is what a step template can reference.
type Data struct {
	FirstName    string
	CampaignName string
}

// Step is one message in a sequence. Delay is the wait after the previous
// step before this one is due; zero means the processor default.
type Step struct {
	Channel  string        `yaml:"channel"`
	Template string        `yaml:"template"`
	Subject  string        `yaml:"subject"`
	Body     string        `yaml:"body"`
	Delay    time.Duration `yaml:"delay"`

	subject *template.Template
	body    *template.Template
}

// Sequence is an ordered list of steps.
type Sequence struct {
	Key   string `yaml:"-"`
	Steps []Step `yaml:"steps"`
}

// Catalog maps sequence keys to sequences.
type Catalog struct {
	sequences map[string]Sequence
}

type catalogFile struct {
	Sequences map[string]Sequence `yaml:"sequences"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog. Every template is compiled up front
// so a broken catalog fails at startup rather than mid-send.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode sequence catalog: %w", err)
	}
	if len(file.Sequences) == 0 {
		return nil, fmt.Errorf("sequence catalog is empty")
	}

	out := &Catalog{sequences: make(map[string]Sequence, len(file.Sequences))}
	for key, seq := range file.Sequences {
		seq.Key = key
		if len(seq.Steps) == 0 {
			return nil, fmt.Errorf("sequence %q has no steps", key)
		}
		for i := range seq.Steps {
			if err := seq.Steps[i].compile(); err != nil {
				return nil, fmt.Errorf("sequence %q step %d: %w", key, i, err)
			}
		}
		out.sequences[key] = seq
	}
	return out, nil
}

// Get returns the sequence stored under key.
func (c *Catalog) Get(key string) (Sequence, bool) {
	seq, ok := c.sequences[key]
	return seq, ok
}

// Has reports whether key names a sequence.
func (c *Catalog) Has(key string) bool {
	_, ok := c.sequences[key]
	return ok
}

func (s *Step) compile() error {
	switch s.Channel {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
	default:
		return fmt.Errorf("unknown channel %q", s.Channel)
	}
	if strings.TrimSpace(s.Template) == "" {
		return fmt.Errorf("template key is required")
	}
	if strings.TrimSpace(s.Body) == "" {
		return fmt.Errorf("body is required")
	}
	if s.Delay < 0 {
		return fmt.Errorf("delay must not be negative")
	}

	body, err := template.New(s.Template).Option("missingkey=error").Parse(s.Body)
	if err != nil {
		return fmt.Errorf("parse body: %w", err)
	}
	s.body = body

	if s.Subject != "" {
		subject, err := template.New(s.Template + ".subject").Option("missingkey=error").Parse(s.Subject)
		if err != nil {
			return fmt.Errorf("parse subject: %w", err)
		}
		s.subject = subject
	}
	return nil
}

// Render executes the step's subject and body against data.
func (s Step) Render(data Data) (subject, body string, err error) {
	if s.body == nil {
		return "", "", fmt.Errorf("step %q is not compiled", s.Template)
	}

	var sb strings.Builder
	if err := s.body.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", s.Template, err)
	}
	body = strings.TrimSpace(sb.String())

	if s.subject != nil {
		sb.Reset()
		if err := s.subject.Execute(&sb, data); err != nil {
			return "", "", fmt.Errorf("render %s subject: %w", s.Template, err)
		}
		subject = strings.TrimSpace(sb.String())
	}
	return subject, body, nil
}
