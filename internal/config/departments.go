package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Department is a bookable clinic department with a fixed consultation fee
// in minor units of Currency.
type Department struct {
	Code     string `yaml:"code" json:"code" validate:"required"`
	Name     string `yaml:"name" json:"name" validate:"required"`
	Fee      int64  `yaml:"fee" json:"fee" validate:"gt=0"`
	Currency string `yaml:"currency" json:"currency" validate:"required,len=3"`
}

type departmentsFile struct {
	Departments []Department `yaml:"departments"`
}

//go:embed departments.yml
var defaultDepartments []byte

func DefaultDepartments() ([]Department, error) {
	return parseDepartments(defaultDepartments)
}

func LoadDepartmentsFile(path string) ([]Department, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read departments file: %w", err)
	}
	return parseDepartments(data)
}

func parseDepartments(data []byte) ([]Department, error) {
	var f departmentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal departments: %w", err)
	}
	return f.Departments, nil
}
