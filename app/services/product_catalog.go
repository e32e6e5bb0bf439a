package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/amirphl/esim-relay/utils"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogRule maps a product family to vendor product codes by plan length
type CatalogRule struct {
	Name  string         `yaml:"name"`
	All   []string       `yaml:"all"`
	Any   []string       `yaml:"any"`
	Codes map[int]string `yaml:"codes"`
}

// ProductCatalog decides which marketplace products are accepted and what the vendor calls them
type ProductCatalog struct {
	DefaultCode  string        `yaml:"default_code"`
	Destinations []string      `yaml:"destinations"`
	Rules        []CatalogRule `yaml:"rules"`
}

// LoadProductCatalog reads the catalog at path, or the embedded one when path is empty
func LoadProductCatalog(path string) (*ProductCatalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
	}
	return ParseProductCatalog(data)
}

// ParseProductCatalog decodes and checks a YAML catalog
func ParseProductCatalog(data []byte) (*ProductCatalog, error) {
	var c ProductCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if c.DefaultCode == "" {
		c.DefaultCode = utils.DefaultProductCode
	}
	for i, r := range c.Rules {
		if len(r.All) == 0 && len(r.Any) == 0 {
			return nil, fmt.Errorf("catalog rule %d (%s) has no keywords", i, r.Name)
		}
		if len(r.Codes) == 0 {
			return nil, fmt.Errorf("catalog rule %d (%s) has no codes", i, r.Name)
		}
	}
	return &c, nil
}

// Accepts reports whether productName names a supported destination
func (c *ProductCatalog) Accepts(productName string) bool {
	if productName == "" {
		return false
	}
	for _, d := range c.Destinations {
		if strings.Contains(productName, d) {
			return true
		}
	}
	return false
}

func (r *CatalogRule) matches(productName string) bool {
	for _, k := range r.All {
		if !strings.Contains(productName, k) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return true
	}
	for _, k := range r.Any {
		if strings.Contains(productName, k) {
			return true
		}
	}
	return false
}

// ProductCode returns the vendor code for a product name and plan length.
// The first rule matching the name and carrying a code for day wins.
func (c *ProductCatalog) ProductCode(productName string, day int) string {
	for i := range c.Rules {
		r := &c.Rules[i]
		if !r.matches(productName) {
			continue
		}
		if code, ok := r.Codes[day]; ok {
			return code
		}
	}
	return c.DefaultCode
}
