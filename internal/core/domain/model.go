package domain

// BaseModel describes a base model in the approved registry.
type BaseModel struct {
	ID          string
	License     string
	VRAMTier    string
	IntendedUse string
	Approved    bool
}

// DefaultModelRegistry returns the built-in approved base models.
func DefaultModelRegistry() map[string]BaseModel {
	models := []BaseModel{
		{
			ID:          "mistralai/Mistral-7B-Instruct-v0.3",
			License:     "Apache-2.0",
			VRAMTier:    "8GB-friendly with QLoRA",
			IntendedUse: "instruction",
			Approved:    true,
		},
		{
			ID:          "meta-llama/Llama-3.1-8B-Instruct",
			License:     "Llama 3.1 Community License",
			VRAMTier:    "8GB with strict QLoRA settings",
			IntendedUse: "chat",
			Approved:    true,
		},
		{
			ID:          "Qwen/Qwen2.5-7B-Instruct",
			License:     "Apache-2.0",
			VRAMTier:    "8GB-friendly with QLoRA",
			IntendedUse: "chat",
			Approved:    true,
		},
	}
	registry := make(map[string]BaseModel, len(models))
	for _, m := range models {
		registry[m.ID] = m
	}
	return registry
}
