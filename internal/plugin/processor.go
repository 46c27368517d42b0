// Package plugin defines the processor capability contract that every
// pipeline step implements, expressed as a set of interfaces: a required
// core plus optional capabilities discovered by type assertion.
package plugin

import (
	"context"

	"github.com/buildbeaver/docflow/internal/model"
)

// RequiresInput describes when a processor needs human-in-the-loop input
// before it can proceed.
type RequiresInput string

const (
	RequiresInputNever       RequiresInput = "never"
	RequiresInputAlways      RequiresInput = "always"
	RequiresInputConditional RequiresInput = "conditional"
)

// ExecContext is the narrow view of the execution context a Processor sees;
// it is implemented by internal/execctx.Context. Declared here, rather than
// imported from execctx, to avoid an import cycle (execctx depends on model
// only; plugin depends on model; executor wires the two together).
type ExecContext interface {
	CreateFile(path string, content []byte, encoding string) (*model.Artifact, error)
	ModifyFile(path string, newContent []byte, encoding string) (*model.Artifact, error)
	DeleteFile(path string) (*model.Artifact, error)
	MoveFile(src, dst string) (*model.Artifact, error)
	UpdateFrontmatter(path string, updates map[string]interface{}) (*model.Artifact, error)
	RecordAPICall(service, action string, request, response map[string]interface{}, reversible bool, reverseAction map[string]interface{}) (*model.Artifact, error)
}

// ConfigFieldType enumerates the scalar types a manifest config field can declare.
type ConfigFieldType string

const (
	ConfigFieldString ConfigFieldType = "string"
	ConfigFieldInt    ConfigFieldType = "int"
	ConfigFieldBool   ConfigFieldType = "bool"
	ConfigFieldFloat  ConfigFieldType = "float"
)

// ConfigField describes one entry of a plugin manifest's `config` map.
type ConfigField struct {
	Type        ConfigFieldType
	Default     interface{}
	Description string
}

// Processor is the black-box contract for one pluggable pipeline step.
type Processor interface {
	Name() string
	DisplayName() string
	Description() string
	Version() string
	Requires() []string
	ConfigSchema() map[string]ConfigField
	DefaultConfig() map[string]interface{}
	HasUI() bool
	RequiresInput() RequiresInput
	CanSkip() bool
	AutoRevertOnError() bool
	MaxConcurrent() int

	ShouldProcess(ctx context.Context, job *model.Job) (bool, error)
	Process(ctx context.Context, job *model.Job, execCtx ExecContext) (*model.StepResult, error)
	Revert(ctx context.Context, job *model.Job, result *model.StepResult, execCtx ExecContext) (bool, error)
}

// InputValidator is an optional capability: processors whose RequiresInput()
// is "conditional" or "always" may implement it to decide if input is needed
// and to validate submitted input.
type InputValidator interface {
	RequiresUserInput(ctx context.Context, job *model.Job) (bool, error)
	ValidateInput(ctx context.Context, job *model.Job, input map[string]interface{}) (bool, string, error)
}

// SchemaProvider is an optional capability describing the shape of input a
// processor expects while awaiting_input.
type SchemaProvider interface {
	GetInputSchema(ctx context.Context, job *model.Job) (map[string]interface{}, error)
}

// LifecycleHooks is an optional capability for plugin load/unload side effects.
type LifecycleHooks interface {
	OnLoad() error
	OnUnload() error
}

// BaseProcessor supplies default (no-op) implementations for the optional
// parts of the Processor contract; concrete processors embed this and
// override what matters.
type BaseProcessor struct {
	NameValue          string
	DisplayNameValue   string
	DescriptionValue   string
	VersionValue       string
	RequiresValue      []string
	ConfigSchemaValue  map[string]ConfigField
	DefaultConfigValue map[string]interface{}
	HasUIValue         bool
	RequiresInputValue RequiresInput
	CanSkipValue       bool
	DisableAutoRevert  bool
	MaxConcurrentValue int
}

func (b *BaseProcessor) Name() string { return b.NameValue }
func (b *BaseProcessor) DisplayName() string { return b.DisplayNameValue }
func (b *BaseProcessor) Description() string { return b.DescriptionValue }
func (b *BaseProcessor) Version() string { return b.VersionValue }
func (b *BaseProcessor) Requires() []string { return b.RequiresValue }
func (b *BaseProcessor) ConfigSchema() map[string]ConfigField { return b.ConfigSchemaValue }
func (b *BaseProcessor) DefaultConfig() map[string]interface{} { return b.DefaultConfigValue }
func (b *BaseProcessor) HasUI() bool { return b.HasUIValue }
func (b *BaseProcessor) RequiresInput() RequiresInput { return b.RequiresInputValue }
func (b *BaseProcessor) CanSkip() bool { return b.CanSkipValue }

// AutoRevertOnError defaults to true: a processor author who leaves
// DisableAutoRevert at its zero value still gets rollback-on-error; set
// DisableAutoRevert to opt a processor out.
func (b *BaseProcessor) AutoRevertOnError() bool { return !b.DisableAutoRevert }
func (b *BaseProcessor) MaxConcurrent() int { return b.MaxConcurrentValue }

// ApplyManifest overlays non-empty manifest metadata onto the processor's
// own values, so a plugin directory's manifest.yaml (not the compiled-in
// defaults) is the source of truth for dependency wiring and UI hints.
func (b *BaseProcessor) ApplyManifest(m *Manifest) {
	if m.Name != "" {
		b.NameValue = m.Name
	}
	if m.DisplayName != "" {
		b.DisplayNameValue = m.DisplayName
	}
	if m.Description != "" {
		b.DescriptionValue = m.Description
	}
	if m.Version != "" {
		b.VersionValue = m.Version
	}
	if m.Requires != nil {
		b.RequiresValue = m.Requires
	}
	b.HasUIValue = m.UI.HasPanel
	if m.UI.RequiresInput != "" {
		b.RequiresInputValue = RequiresInput(m.UI.RequiresInput)
	}
}

// GetConfig reads key from job-level overrides, falling back to the
// processor's DefaultConfig.
func (b *BaseProcessor) GetConfig(jobConfig map[string]interface{}, key string) (interface{}, bool) {
	if jobConfig != nil {
		if v, ok := jobConfig[key]; ok {
			return v, true
		}
	}
	if b.DefaultConfigValue != nil {
		if v, ok := b.DefaultConfigValue[key]; ok {
			return v, true
		}
	}
	return nil, false
}
