// Package file provides file-based implementations of driven port interfaces.
// These adapters read from the local filesystem.
//
// Adapters:
//   - Load: TOML configuration decoded into domain.Config
//   - PlanProvider: plan limits resolved from the [plans] section
//   - PromptStore: user-editable prompt templates with embedded defaults
package file
