package embedding

// ContentType represents the type of content being embedded.
type ContentType string

const (
	ContentTypeQuery    ContentType = "query"    // Search queries issued by the orchestrator
	ContentTypeDocument ContentType = "document" // Knowledge base chunks and evidence items
	ContentTypeQuestion ContentType = "question" // Gap questions from the evaluator
)

// SelectTaskType picks the GenAI task type for a content type.
func SelectTaskType(contentType ContentType) string {
	switch contentType {
	case ContentTypeQuery:
		return "RETRIEVAL_QUERY"
	case ContentTypeQuestion:
		return "QUESTION_ANSWERING"
	case ContentTypeDocument:
		return "RETRIEVAL_DOCUMENT"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}
