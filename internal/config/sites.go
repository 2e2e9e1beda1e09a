package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// SiteChannel names the mailbox keys and URL parameters one site uses.
type SiteChannel struct {
	PayloadPrefix   string `yaml:"payload_prefix" validate:"required"`
	TimestampPrefix string `yaml:"timestamp_prefix" validate:"required,nefield=PayloadPrefix"`
	TabParam        string `yaml:"tab_param" validate:"required"`
	SigParam        string `yaml:"sig_param" validate:"required"`
	RefParam        string `yaml:"ref_param"`
}

// SiteProfile describes one source site.
type SiteProfile struct {
	Name      string `yaml:"name" validate:"required"`
	Extractor string `yaml:"extractor" validate:"required,oneof=linkedin indeed"`
	// Hosts and Paths are glob patterns; an empty Paths list allows every route.
	Hosts          []string    `yaml:"hosts" validate:"required,min=1,dive,required"`
	Paths          []string    `yaml:"paths" validate:"dive,required"`
	Markers        []string    `yaml:"markers" validate:"dive,required"`
	Anchors        []string    `yaml:"anchors" validate:"required,min=1,dive,required"`
	Container      string      `yaml:"container"`
	ButtonClass    string      `yaml:"button_class" validate:"required"`
	ButtonLabel    string      `yaml:"button_label" validate:"required"`
	MinDescription int         `yaml:"min_description" validate:"min=0"`
	CrossRef       []string    `yaml:"crossref"`
	Channel        SiteChannel `yaml:"channel"`
}

// ComposerProfile locates the destination composer.
type ComposerProfile struct {
	Selectors []string `yaml:"selectors" validate:"required,min=1,dive,required"`
}

// SitesFile is the YAML document listing site profiles.
type SitesFile struct {
	Sites    []SiteProfile   `yaml:"sites" validate:"required,min=1,dive"`
	Composer ComposerProfile `yaml:"composer"`
}

// Site returns the profile named name.
func (f *SitesFile) Site(name string) (SiteProfile, bool) {
	for _, s := range f.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteProfile{}, false
}

// DefaultSites returns the built-in LinkedIn and Indeed profiles.
func DefaultSites() *SitesFile {
	return &SitesFile{
		Sites: []SiteProfile{
			{
				Name:      "linkedin",
				Extractor: "linkedin",
				Hosts:     []string{"www.linkedin.com"},
				Paths:     []string{"/jobs/search**", "/jobs/collections**"},
				Markers:   []string{".job-details-jobs-unified-top-card__job-title h1"},
				Anchors: []string{
					".job-details-jobs-unified-top-card__job-title h1",
				},
				ButtonClass:    "li-check-suitability",
				ButtonLabel:    "Check Suitability",
				MinDescription: 0,
				CrossRef:       []string{"currentJobId"},
				Channel: SiteChannel{
					PayloadPrefix:   "li_job_payload_tab_",
					TimestampPrefix: "li_job_payload_ts_tab_",
					TabParam:        "li_rfc_tab",
					SigParam:        "li_rfc_sig",
					RefParam:        "li_job",
				},
			},
			{
				Name:      "indeed",
				Extractor: "indeed",
				Hosts:     []string{"indeed.com", "*.indeed.com"},
				Markers: []string{
					"#jobDescriptionText",
					"div.jobsearch-JobComponent",
					`[data-testid="jobsearch-JobInfoHeader-title"]`,
				},
				Anchors:        []string{`[data-testid="jobsearch-JobInfoHeader-title"]`},
				Container:      ".jobsearch-JobInfoHeader-title-container",
				ButtonClass:    "in-rfc-inline",
				ButtonLabel:    "Check Suitability",
				MinDescription: 80,
				CrossRef:       []string{"vjk", "jk", "jobKey"},
				Channel: SiteChannel{
					PayloadPrefix:   "in_job_payload_tab_",
					TimestampPrefix: "in_job_payload_ts_tab_",
					TabParam:        "in_rfc_tab",
					SigParam:        "in_rfc_sig",
					RefParam:        "in_job",
				},
			},
		},
		Composer: ComposerProfile{
			Selectors: []string{
				"div#prompt-textarea[contenteditable]",
				"div.ProseMirror[contenteditable]",
				"textarea#prompt-textarea",
			},
		},
	}
}

// LoadSites reads site profiles from path. A missing file yields the
// built-in defaults.
func LoadSites(path string) (*SitesFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("sites config not found, using built-in profiles", "path", path)
		return DefaultSites(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sites config: %w", err)
	}
	return ParseSites(data)
}

// ParseSites decodes and validates a sites document. A document without a
// composer section inherits the default selectors.
func ParseSites(data []byte) (*SitesFile, error) {
	var f SitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sites config: %w", err)
	}
	if len(f.Composer.Selectors) == 0 {
		f.Composer = DefaultSites().Composer
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Sites))
	tabParams := make(map[string]bool, len(f.Sites))
	for _, s := range f.Sites {
		if seen[s.Name] {
			return nil, fmt.Errorf("config: duplicate site %q", s.Name)
		}
		seen[s.Name] = true
		if tabParams[s.Channel.TabParam] {
			return nil, fmt.Errorf("config: site %q reuses tab parameter %q", s.Name, s.Channel.TabParam)
		}
		tabParams[s.Channel.TabParam] = true
	}
	return &f, nil
}
