package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// configFile mirrors the declarative catalog document:
//
//	domains:
//	  - name: retail
//	    version: "1.2.0"
//	    forms:
//	      - name: kyc
//	        url: kyc
//	        path: forms/retail/kyc
//	        type: dynamic
type configFile struct {
	Domains []domainConfig `yaml:"domains"`
}

type domainConfig struct {
	Name    string       `yaml:"name"`
	Version string       `yaml:"version"`
	Forms   []formConfig `yaml:"forms"`
}

type formConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
	Type string `yaml:"type"`
}

func readConfig(path string) (*configFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog config %s: %w", path, err)
	}
	var cfg configFile
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog config %s: %w", path, err)
	}
	return &cfg, nil
}
