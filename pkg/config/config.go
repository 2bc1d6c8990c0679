// Package config provides configuration loading and management for rtstructgen.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// CTImageStorage is the SOP class UID of CT Image Storage.
const CTImageStorage = "1.2.840.10008.5.1.4.1.1.2"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Root directories of a batch run
	Paths struct {
		// SliceRoot holds {patient_id}/{phase}/*.dcm
		SliceRoot string `yaml:"sliceRoot"`

		// MaskRoot holds {patient_id}/{phase}/{mask file}
		MaskRoot string `yaml:"maskRoot"`

		// OutputRoot receives one structure set per patient-phase
		OutputRoot string `yaml:"outputRoot"`
	} `yaml:"paths"`

	// Series validation parameters
	Series struct {
		// Modality accepted by the validator
		Modality string `yaml:"modality"`

		// SOPClassUID accepted by the validator
		SOPClassUID string `yaml:"sopClassUID"`

		// Extensions of candidate slice files, compared case-insensitively
		Extensions []string `yaml:"extensions"`

		// AllowExtensionless also considers files without an extension
		AllowExtensionless bool `yaml:"allowExtensionless"`

		// RequireUniformSpacing rejects series with uneven slice increments
		RequireUniformSpacing bool `yaml:"requireUniformSpacing"`

		// SpacingTolerance is the allowed deviation between increments in mm
		SpacingTolerance float64 `yaml:"spacingTolerance"`
	} `yaml:"series"`

	// Target structure parameters
	Structure struct {
		// Name of the ROI written into the structure set
		Name string `yaml:"name"`

		// MaskFile is the mask file name inside each patient-phase folder.
		// Empty means "<lowercase name>.nii.gz".
		MaskFile string `yaml:"maskFile"`

		// Color is the ROI display color (RGB)
		Color [3]int `yaml:"color"`

		// Phases lists the acquisition phases processed per patient
		Phases []string `yaml:"phases"`
	} `yaml:"structure"`

	// Processing parameters
	Processing struct {
		// NumWorkers is the size of the worker pool
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Suffix is appended to "{patient}_{phase}_" in output names
		Suffix string `yaml:"suffix"`

		// Extension of the output files
		Extension string `yaml:"extension"`

		// WriteReport saves a YAML run report into the output root
		WriteReport bool `yaml:"writeReport"`
	} `yaml:"output"`

	// Log parameters
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		FilePath   string `yaml:"filePath"`
		MaxSize    int    `yaml:"maxSize"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAge     int    `yaml:"maxAge"`
	} `yaml:"log"`

	// Segmentation engine invocation
	Segmentation struct {
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
	} `yaml:"segmentation"`

	// Series-to-volume converter invocation
	Conversion struct {
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
	} `yaml:"conversion"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Series.Modality = "CT"
	cfg.Series.SOPClassUID = CTImageStorage
	cfg.Series.Extensions = []string{".dcm"}
	cfg.Series.AllowExtensionless = false
	cfg.Series.RequireUniformSpacing = false
	cfg.Series.SpacingTolerance = 0.01

	cfg.Structure.Name = "Pancreas"
	cfg.Structure.Color = [3]int{255, 0, 0}
	cfg.Structure.Phases = []string{"PRE"}

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Suffix = "rtstruct"
	cfg.Output.Extension = ".dcm"
	cfg.Output.WriteReport = true

	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Log.Output = "stdout"
	cfg.Log.MaxSize = 50
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAge = 30

	cfg.Segmentation.Command = "TotalSegmentator"
	cfg.Segmentation.Args = []string{"-i", "{input}", "-o", "{output_dir}", "--roi_subset", "{structure}"}

	cfg.Conversion.Command = "dcm2niix"
	cfg.Conversion.Args = []string{"-z", "n", "-f", "{name}", "-o", "{output_dir}", "{input}"}

	return cfg
}

// MaskFileName returns the configured mask file name, deriving it from the
// structure name when unset.
func (c *Config) MaskFileName() string {
	if c.Structure.MaskFile != "" {
		return c.Structure.MaskFile
	}
	return strings.ToLower(strings.TrimSpace(c.Structure.Name)) + ".nii.gz"
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Structure.Name) == "" {
		return fmt.Errorf("structure.name must not be empty")
	}
	if len(c.Structure.Phases) == 0 {
		return fmt.Errorf("structure.phases must list at least one phase")
	}
	for i, v := range c.Structure.Color {
		if v < 0 || v > 255 {
			return fmt.Errorf("structure.color[%d] = %d is outside 0-255", i, v)
		}
	}
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("processing.numWorkers must be >= 1, got %d", c.Processing.NumWorkers)
	}
	if c.Series.Modality == "" || c.Series.SOPClassUID == "" {
		return fmt.Errorf("series.modality and series.sopClassUID are required")
	}
	if c.Series.SpacingTolerance < 0 {
		return fmt.Errorf("series.spacingTolerance must not be negative")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file. The file is replaced
// atomically.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := renameio.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
