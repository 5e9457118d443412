package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one page to scrape. Empty selectors fall back to the built-in rules.
type Source struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	TitleSelector string `yaml:"title_selector,omitempty"`
	BodySelector  string `yaml:"body_selector,omitempty"`
	DateSelector  string `yaml:"date_selector,omitempty"`
	DateAttribute string `yaml:"date_attribute,omitempty"`
}

// DefaultSources are the news front pages benchmarked by default.
func DefaultSources() []Source {
	return []Source{
		{
			Name:          "www.bbc.com",
			URL:           "https://www.bbc.com/news",
			BodySelector:  "p[data-testid='card-description']",
			DateSelector:  "time",
			DateAttribute: "datetime",
		},
		{
			Name:          "apnews.com",
			URL:           "https://apnews.com/",
			TitleSelector: "span.PagePromoContentIcons-text",
			DateSelector:  "[data-posted-date-timestamp]",
			DateAttribute: "data-posted-date-timestamp",
		},
		{
			Name: "www.reuters.com",
			URL:  "https://www.reuters.com/",
		},
	}
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads a YAML file of the form `sources: [...]`.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, errors.New("sources file lists no sources")
	}
	for i := range file.Sources {
		if err := file.Sources[i].normalize(); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
	}
	return file.Sources, nil
}

func (s *Source) normalize() error {
	s.URL = strings.TrimSpace(s.URL)
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", s.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be absolute http(s)", s.URL)
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = u.Host
	}
	return nil
}
