package api

const (
	// ParametersKey is the top-level section holding step parameters.
	ParametersKey = "parameters"
	// ClassKey names the step class inside the parameters section.
	ClassKey = "class"
	// NameKey names the step instance inside the parameters section.
	NameKey = "name"
	// ConfigFileKey points a pipeline member at its own parameter file.
	ConfigFileKey = "config_file"

	// ReftypePrefix prefixes the reftype written into meta on save.
	ReftypePrefix = "pars-"

	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatHCL  = "hcl"
)

// ParameterFile is the on-disk configuration format of a step.
type ParameterFile struct {
	// Class and Name are lifted out of the parameters section.
	Class      string
	Name       string
	Parameters map[string]any
	Meta       *Meta

	// Set by the loader, not from the file.
	Dir      string
	FilePath string
}

// Meta describes a parameter file. Providers select retrieved parameter
// files by matching Context against the observation context.
type Meta struct {
	Reftype     string         `yaml:"reftype,omitempty" json:"reftype,omitempty"`
	Date        string         `yaml:"date,omitempty" json:"date,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string         `yaml:"author,omitempty" json:"author,omitempty"`
	Context     map[string]any `yaml:"context,omitempty" json:"context,omitempty"`
}

// document mirrors the file layout for YAML and JSON.
type document struct {
	Parameters map[string]any `yaml:"parameters" json:"parameters"`
	Meta       *Meta          `yaml:"meta,omitempty" json:"meta,omitempty"`
}

// BatchFile lists several independent step runs.
type BatchFile struct {
	Runs []Run `yaml:"runs"`

	// Set by the loader, not from YAML.
	Dir      string `yaml:"-"`
	FilePath string `yaml:"-"`
}

// Run is one entry of a batch file.
type Run struct {
	Name       string         `yaml:"name"`
	Config     string         `yaml:"config"`
	Inputs     []string       `yaml:"inputs"`
	Parameters map[string]any `yaml:"parameters"`
	OutputDir  string         `yaml:"output_dir"`
	Context    map[string]any `yaml:"context"`
}
