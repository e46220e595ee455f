package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SitesFile is the document format of SITES_FILE
type SitesFile struct {
	Sites []Site `yaml:"sites"`
}

// Site declares one scraper adapter in YAML
type Site struct {
	Name          string        `yaml:"name"`
	BaseURL       string        `yaml:"base_url"`
	SearchURL     string        `yaml:"search_url"`
	SearchTerms   []string      `yaml:"search_terms"`
	TitleKeywords []string      `yaml:"title_keywords"`
	BlockSeconds  int           `yaml:"block_seconds"`
	Selectors     SiteSelectors `yaml:"selectors"`
}

// SiteSelectors holds the CSS selectors of a YAML site
type SiteSelectors struct {
	Container           string `yaml:"container"`
	Title               string `yaml:"title"`
	Price               string `yaml:"price"`
	Brand               string `yaml:"brand"`
	Link                string `yaml:"link"`
	Image               string `yaml:"image"`
	PaginationContainer string `yaml:"pagination_container"`
	PaginationNext      string `yaml:"pagination_next"`
	SoldOut             string `yaml:"sold_out"`
	SoldOutText         string `yaml:"sold_out_text"`
}

// LoadSites reads and validates site definitions from a YAML file
func LoadSites(path string) ([]Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}

	var file SitesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sites file: %w", err)
	}

	seen := make(map[string]bool)
	for i, site := range file.Sites {
		if err := site.Validate(); err != nil {
			return nil, fmt.Errorf("site #%d: %w", i+1, err)
		}
		key := strings.ToLower(site.Name)
		if seen[key] {
			return nil, fmt.Errorf("site #%d: duplicate name %q", i+1, site.Name)
		}
		seen[key] = true
	}

	return file.Sites, nil
}

// Validate checks that every mandatory field of a site is present
func (s Site) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("name is required")
	case s.BaseURL == "":
		return fmt.Errorf("%s: base_url is required", s.Name)
	case !strings.Contains(s.SearchURL, "{query}"):
		return fmt.Errorf("%s: search_url must contain {query}", s.Name)
	case len(s.SearchTerms) == 0:
		return fmt.Errorf("%s: at least one search term is required", s.Name)
	case s.Selectors.Container == "", s.Selectors.Title == "", s.Selectors.Price == "", s.Selectors.Link == "":
		return fmt.Errorf("%s: container, title, price and link selectors are required", s.Name)
	}
	return nil
}
