package prompts

const fence = "```"

const requirementIntro = `You are the requirements editor of Code Sensei.

## User request
{{user_input}}
`

const codegenIntro = `You are the code generation assistant of Code Sensei.

## Project path
{{project_root}}

## Project type
{{project_type}}
`

const codegenRules = `
## Working rules
- Read the existing files first to learn the project structure
- Prefer changing existing files over creating new ones
- Keep the existing code style
- Make sure the code runs

Briefly list the files you changed.`

var builtin = []*Prompt{
	{
		ID:      RequirementCreate,
		Version: PromptV1,
		Content: requirementIntro + `
## Task
Write a requirements document for this request.

## Output format
Output the complete document in Markdown with these sections:
- Project description
- Functional requirements
- Tech stack
- Any other section the project needs

Output only the document, with no extra commentary.`,
		Description: "Create a requirements document from scratch",
		Tags:        []string{"requirement"},
	},
	{
		ID:      RequirementUpdate,
		Version: PromptV1,
		Content: requirementIntro + `
## Current requirements document
` + fence + `markdown
{{requirement}}
` + fence + `

## Task
Update the requirements document according to the user request. Keep the structure clear and use Markdown.

Output only the complete updated document, with no extra commentary.`,
		Description: "Revise an existing requirements document",
		Tags:        []string{"requirement"},
	},
	{
		ID:      CodegenCreate,
		Version: PromptV1,
		Content: codegenIntro + `
## User request
{{user_input}}

## Task
Create or change files in the project according to the user request.
` + codegenRules,
		Description: "Generate code without a requirements document",
		Tags:        []string{"codegen"},
	},
	{
		ID:      CodegenUpdate,
		Version: PromptV1,
		Content: codegenIntro + `
## Requirements document
` + fence + `markdown
{{requirement}}
` + fence + `

## User request
{{user_input}}

## Task
Create or change files in the project according to the requirements document and the user request.
` + codegenRules,
		Description: "Generate code guided by the requirements document",
		Tags:        []string{"codegen"},
	},
}
