// Package prompts holds the versioned prompt templates sent to the agent server.
package prompts

// PromptVersion represents a version identifier for prompts.
type PromptVersion string

const (
	// PromptV1 is the first version of prompts.
	PromptV1 PromptVersion = "1.0.0"
)

// Prompt IDs used by the orchestration sagas.
const (
	RequirementCreate = "requirement.create"
	RequirementUpdate = "requirement.update"
	CodegenCreate     = "codegen.create"
	CodegenUpdate     = "codegen.update"
)

// Template variables.
const (
	VarUserInput   = "user_input"
	VarRequirement = "requirement"
	VarProjectRoot = "project_root"
	VarProjectType = "project_type"
)

// Prompt represents a versioned prompt with metadata.
type Prompt struct {
	ID          string        // Unique identifier (e.g., "requirement.update")
	Version     PromptVersion // Version of this prompt
	Content     string        // Template text with {{var}} placeholders
	Description string        // Human-readable description
	Tags        []string      // Tags for categorization (e.g., ["requirement"])
	Deprecated  bool          // True if this version is deprecated
}
