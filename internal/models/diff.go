package models

// DiffKind is the type of change a Diff carries.
type DiffKind string

const (
	DiffAdded   DiffKind = "added"
	DiffUpdated DiffKind = "updated"
	DiffRemoved DiffKind = "removed"
)

// Diff is a typed change applied to local materialized state. Item is nil
// for DiffRemoved.
type Diff[T any] struct {
	Kind DiffKind
	Key  string
	Item *T
}

// PromptDiff and CategoryDiff are the two diff shapes the catalog uses.
type (
	PromptDiff   = Diff[Prompt]
	CategoryDiff = Diff[Category]
)
