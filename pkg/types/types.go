// Package types defines the entities of the Momo memory system: documents,
// chunks, memories, memory sources, and system metadata.
package types

// DocumentContentType classifies the content of a Document.
type DocumentContentType string

const (
	ContentTypeText     DocumentContentType = "text"
	ContentTypePDF      DocumentContentType = "pdf"
	ContentTypeMarkdown DocumentContentType = "markdown"
	ContentTypeCode     DocumentContentType = "code"
	ContentTypeCSV      DocumentContentType = "csv"
	ContentTypeDOCX     DocumentContentType = "docx"
	ContentTypePPTX     DocumentContentType = "pptx"
	ContentTypeXLSX     DocumentContentType = "xlsx"
	ContentTypeImage    DocumentContentType = "image"
	ContentTypeAudio    DocumentContentType = "audio"
	ContentTypeVideo    DocumentContentType = "video"
	ContentTypeWebpage  DocumentContentType = "webpage"
	ContentTypeUnknown  DocumentContentType = "unknown"
)

// ValidContentTypes lists every recognized DocumentContentType.
var ValidContentTypes = []DocumentContentType{
	ContentTypeText, ContentTypePDF, ContentTypeMarkdown, ContentTypeCode,
	ContentTypeCSV, ContentTypeDOCX, ContentTypePPTX, ContentTypeXLSX,
	ContentTypeImage, ContentTypeAudio, ContentTypeVideo, ContentTypeWebpage,
	ContentTypeUnknown,
}

// IsValidContentType reports whether ct is a recognized content type.
func IsValidContentType(ct DocumentContentType) bool {
	for _, v := range ValidContentTypes {
		if v == ct {
			return true
		}
	}
	return false
}

// DocumentStatus is the processing state of a Document. Transitions follow
// the ingestion pipeline's state machine and are monotonic except into Failed.
type DocumentStatus string

const (
	DocStatusQueued     DocumentStatus = "queued"
	DocStatusExtracting DocumentStatus = "extracting"
	DocStatusChunking   DocumentStatus = "chunking"
	DocStatusEmbedding  DocumentStatus = "embedding"
	DocStatusIndexing   DocumentStatus = "indexing"
	DocStatusDone       DocumentStatus = "done"
	DocStatusFailed     DocumentStatus = "failed"
)

// docStatusOrder gives each non-terminal status its position in the pipeline.
var docStatusOrder = map[DocumentStatus]int{
	DocStatusQueued:     0,
	DocStatusExtracting: 1,
	DocStatusChunking:   2,
	DocStatusEmbedding:  3,
	DocStatusIndexing:   4,
	DocStatusDone:       5,
}

// IsValidDocumentTransition reports whether a document may move from "from"
// to "to". Failed is reachable from any non-terminal status; Queued is
// reachable from Failed only (the rebuild-embeddings re-queue-all path).
func IsValidDocumentTransition(from, to DocumentStatus) bool {
	if to == DocStatusFailed {
		return from != DocStatusDone && from != DocStatusFailed
	}
	if from == DocStatusFailed && to == DocStatusQueued {
		return true
	}
	fromOrd, fromOK := docStatusOrder[from]
	toOrd, toOK := docStatusOrder[to]
	if !fromOK || !toOK {
		return false
	}
	return toOrd == fromOrd+1
}

// MemoryClassification is the semantic type of a Memory.
type MemoryClassification string

const (
	ClassificationFact       MemoryClassification = "fact"
	ClassificationPreference MemoryClassification = "preference"
	ClassificationEpisode    MemoryClassification = "episode"
)

// ValidClassifications lists every recognized MemoryClassification.
var ValidClassifications = []MemoryClassification{
	ClassificationFact, ClassificationPreference, ClassificationEpisode,
}

// IsValidClassification reports whether c is a recognized classification.
func IsValidClassification(c MemoryClassification) bool {
	for _, v := range ValidClassifications {
		if v == c {
			return true
		}
	}
	return false
}

// RelationType is the kind of edge between two memories, recorded on both
// ends of the relation — the store does not enforce the symmetry; callers
// write each side with its own store call, not in one transaction.
type RelationType string

const (
	RelationUpdates RelationType = "updates"
	RelationExtends RelationType = "extends"
	RelationDerives RelationType = "derives"
)

// ValidRelationTypes lists every recognized RelationType.
var ValidRelationTypes = []RelationType{RelationUpdates, RelationExtends, RelationDerives}

// IsValidRelationType reports whether r is a recognized relation type.
func IsValidRelationType(r RelationType) bool {
	for _, v := range ValidRelationTypes {
		if v == r {
			return true
		}
	}
	return false
}

// SearchScope selects which entities a search call considers.
type SearchScope string

const (
	ScopeDocuments SearchScope = "documents"
	ScopeMemories  SearchScope = "memories"
	ScopeHybrid    SearchScope = "hybrid"
)

// ResultKind discriminates a SearchResult as wrapping a memory or a document chunk.
type ResultKind string

const (
	ResultKindMemory   ResultKind = "memory"
	ResultKindDocument ResultKind = "document"
)
