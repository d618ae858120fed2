package registry

// Category groups features by the role they play in a generated project.
type Category string

const (
	CategoryCore        Category = "core"
	CategoryMiddleware  Category = "middleware"
	CategoryIntegration Category = "integration"
	CategoryDeployment  Category = "deployment"
	CategoryUtility     Category = "utility"
)

// Strategy selects how a rendered output is merged into the project tree.
type Strategy string

const (
	// CreateOnly writes the file once and never touches it again.
	CreateOnly Strategy = "create-only"
	// OverwriteOwned rewrites the file on upgrade, but only while the
	// engine still owns its content.
	OverwriteOwned Strategy = "overwrite-owned"
	// AppendBlock maintains a sentinel-delimited region inside a file
	// that may also contain foreign content.
	AppendBlock Strategy = "append-block"
	// StructuredMerge applies a targeted, idempotent mutation (one
	// dependency line, one env var) instead of a whole-file write.
	StructuredMerge Strategy = "structured-merge"
)

// MutationKind identifies a structured mutation applied to a config file.
type MutationKind string

const (
	AddDependency     MutationKind = "add-dependency"
	AppendEnvVar      MutationKind = "append-env-var"
	InsertMarkedBlock MutationKind = "insert-marked-block"
	RegisterImport    MutationKind = "register-import"
)

// Feature is an immutable feature definition loaded from the catalog.
type Feature struct {
	ID            string               `yaml:"id"`
	Category      Category             `yaml:"category"`
	Version       string               `yaml:"version"`
	Description   string               `yaml:"description,omitempty"`
	Requires      []string             `yaml:"requires,omitempty"`
	ConflictsWith []string             `yaml:"conflicts_with,omitempty"`
	Parameters    map[string]Parameter `yaml:"parameters,omitempty"`
	Outputs       []OutputSpec         `yaml:"outputs,omitempty"`
	Mutations     []ConfigMutation     `yaml:"mutations,omitempty"`
}

// Parameter declares a user-suppliable option and its allowed values.
type Parameter struct {
	Type    string   `yaml:"type"`             // "string", "bool", "int", or "enum"
	Values  []string `yaml:"values,omitempty"` // allowed values when Type is "enum"
	Default string   `yaml:"default,omitempty"`
}

// OutputSpec maps one catalog template to a destination in the project.
type OutputSpec struct {
	Template string          `yaml:"template"`
	Path     string          `yaml:"path"`
	Strategy Strategy        `yaml:"strategy"`
	Mutation *ConfigMutation `yaml:"mutation,omitempty"` // required for structured-merge
}

// ConfigMutation is a targeted insertion into an existing config file.
// Payload is itself a template, rendered with the same context as outputs.
type ConfigMutation struct {
	Path    string       `yaml:"path"`
	Kind    MutationKind `yaml:"kind"`
	Payload string       `yaml:"payload"`
}
