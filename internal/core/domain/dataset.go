package domain

import "time"

// DatasetStatus is the lifecycle status of a dataset version.
type DatasetStatus string

// Dataset statuses.
const (
	DatasetBuilding    DatasetStatus = "building"
	DatasetReady       DatasetStatus = "ready"
	DatasetNeedsReview DatasetStatus = "needs_review"
	DatasetFailed      DatasetStatus = "failed"
)

// Trainable reports whether runs may be created from datasets in this status.
func (s DatasetStatus) Trainable() bool {
	return s == DatasetReady || s == DatasetNeedsReview
}

// DatasetVersion is one immutable build of a synthesized dataset.
type DatasetVersion struct {
	// ID is the unique identifier for the dataset version.
	ID string

	// TenantID and ProjectID scope the dataset.
	TenantID  string
	ProjectID string

	// Name is the caller-supplied label.
	Name string

	// SourceDocumentIDs lists the documents the build consumed.
	SourceDocumentIDs []string

	// Line-delimited JSON files holding each slice.
	TrainPath  string
	ValPath    string
	TestPath   string
	GoldPath   string
	ReviewPath string

	// Stats aggregates the build.
	Stats DatasetStats

	// QualityScore is the mean example score.
	QualityScore int

	// Status is the lifecycle status.
	Status DatasetStatus

	// CreatedAt is when building started.
	CreatedAt time.Time
}

// Paths returns the train/val/test file locations.
func (d *DatasetVersion) Paths() DatasetPaths {
	return DatasetPaths{Train: d.TrainPath, Val: d.ValPath, Test: d.TestPath}
}

// DatasetPaths groups the files a training backend consumes.
type DatasetPaths struct {
	Train string `json:"train"`
	Val   string `json:"val"`
	Test  string `json:"test"`
}

// DatasetStats is the aggregate summary of a build.
type DatasetStats struct {
	TotalExamples    int            `json:"total_examples"`
	TrainExamples    int            `json:"train_examples"`
	ValExamples      int            `json:"val_examples"`
	TestExamples     int            `json:"test_examples"`
	GoldExamples     int            `json:"gold_examples"`
	ReviewExamples   int            `json:"review_examples"`
	TaskMix          map[string]int `json:"task_mix,omitempty"`
	MeanExampleScore int            `json:"mean_example_score"`
	Error            string         `json:"error,omitempty"`
}

// TaskType classifies a synthesized example.
type TaskType string

// Task types.
const (
	TaskInstructionQA     TaskType = "instruction_qa"
	TaskStructuredOutput  TaskType = "structured_output"
	TaskRefusalEscalation TaskType = "refusal_escalation"
)

// Split is a dataset partition.
type Split string

// Splits.
const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// Example is one line of a dataset file.
type Example struct {
	Instruction     string        `json:"instruction"`
	Input           string        `json:"input"`
	Output          string        `json:"output"`
	Source          ExampleSource `json:"source"`
	TaskType        TaskType      `json:"task_type"`
	ExpectedRefusal bool          `json:"expected_refusal"`
	ExampleScore    int           `json:"example_score"`
}

// ExampleSource points an example back to the chunk it came from.
// ChunkIndex is -1 for per-document fixed examples.
type ExampleSource struct {
	DocID        string `json:"doc_id"`
	SectionTitle string `json:"section_title"`
	ChunkIndex   int    `json:"chunk_index"`
}
