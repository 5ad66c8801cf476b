package config

import (
	"fmt"
	"os"

	"github.com/ashureev/lawaid/internal/domain"
	"gopkg.in/yaml.v3"
)

// endpointsFile is the on-disk shape of ENDPOINTS_FILE:
//
//	endpoints:
//	  - name: primary
//	    kind: hf
//	    url: https://...
//	  - name: gemini
//	    kind: gemini
//	    model: gemini-2.0-flash
//	    credential: ${GEMINI_API_KEY}
type endpointsFile struct {
	Endpoints []domain.Endpoint `yaml:"endpoints"`
}

// LoadEndpoints reads the ordered fallback tiers from a YAML file.
// Environment references in values are expanded.
func LoadEndpoints(path string) ([]domain.Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read endpoints file: %w", err)
	}
	return ParseEndpoints(data)
}

// ParseEndpoints decodes and validates an endpoints document.
func ParseEndpoints(data []byte) ([]domain.Endpoint, error) {
	var f endpointsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse endpoints file: %w", err)
	}
	for i := range f.Endpoints {
		ep := &f.Endpoints[i]
		ep.URL = os.ExpandEnv(ep.URL)
		ep.Credential = os.ExpandEnv(ep.Credential)
		if ep.Kind == "" {
			ep.Kind = domain.KindHF
		}
	}
	if err := ValidateEndpoints(f.Endpoints); err != nil {
		return nil, err
	}
	return f.Endpoints, nil
}

// ValidateEndpoints checks each tier and rejects duplicate names.
func ValidateEndpoints(eps []domain.Endpoint) error {
	if len(eps) == 0 {
		return fmt.Errorf("at least one inference endpoint is required")
	}
	seen := make(map[string]struct{}, len(eps))
	for _, ep := range eps {
		if err := ep.Validate(); err != nil {
			return err
		}
		if _, dup := seen[ep.Name]; dup {
			return fmt.Errorf("duplicate endpoint name %q", ep.Name)
		}
		seen[ep.Name] = struct{}{}
	}
	return nil
}
