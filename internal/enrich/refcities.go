package enrich

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed refcities.yaml
var refCitiesYAML []byte

// RefCity is one row of the fixed reference-city table. The coordinates are
// approximate; they serve as the refinement fallback when the places service
// cannot resolve the city.
type RefCity struct {
	Name  string  `yaml:"name"`
	State string  `yaml:"state"`
	Lat   float64 `yaml:"lat"`
	Lon   float64 `yaml:"lon"`
}

type refCityFile struct {
	Cities []RefCity `yaml:"cities"`
}

// LoadRefCities parses the embedded reference-city table.
func LoadRefCities() ([]RefCity, error) {
	var file refCityFile
	if err := yaml.Unmarshal(refCitiesYAML, &file); err != nil {
		return nil, fmt.Errorf("parse reference cities: %w", err)
	}
	if len(file.Cities) == 0 {
		return nil, fmt.Errorf("reference city table is empty")
	}
	return file.Cities, nil
}
