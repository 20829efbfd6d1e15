package domain

// GlossaryEntry describes a workflow state for display.
type GlossaryEntry struct {
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Glossary lists the states in lifecycle order.
var Glossary = []GlossaryEntry{
	{Status: string(StatusInitiated), Description: "Piece with an initial prompt but no full context yet."},
	{Status: string(StatusInEditing), Description: "The producer is refining the piece with the AI."},
	{Status: string(StatusInReview), Description: "Waiting for feedback from the marketing lead."},
	{Status: string(StatusReturned), Description: "Needs the adjustments requested by the lead."},
	{Status: string(StatusApproved), Description: "Content ready for advertising use, archived in the repository."},
	{Status: string(StatusRejected) + "/" + string(StatusCancelled), Description: "Pieces discarded or abandoned."},
}
