package models

import (
	"time"
)

type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// PdfDocument is an uploaded rulebook. The raw bytes live with the storage
// collaborator; this row carries the extracted text and processing state.
type PdfDocument struct {
	ID               string           `json:"id" gorm:"type:varchar(64);primary_key"`
	GameID           string           `json:"game_id" gorm:"type:varchar(128);not null;index"`
	FileName         string           `json:"file_name" gorm:"type:varchar(512);not null"`
	FileSizeBytes    int64            `json:"file_size_bytes" gorm:"not null;default:0"`
	UploadedBy       string           `json:"uploaded_by" gorm:"type:varchar(255);not null"`
	UploadedAt       time.Time        `json:"uploaded_at" gorm:"not null"`
	ProcessingStatus ProcessingStatus `json:"processing_status" gorm:"type:varchar(32);not null;default:'pending'"`
	ExtractedText    string           `json:"-" gorm:"type:text"`
	PageCount        int              `json:"page_count" gorm:"default:0"`
	CharacterCount   int              `json:"character_count" gorm:"default:0"`
	ExtractionError  *string          `json:"extraction_error,omitempty" gorm:"type:text"`
}

func (PdfDocument) TableName() string {
	return "meepleai_pdf_documents"
}

// VectorDocument tracks the indexing state of one PdfDocument in the vector
// store. There is at most one row per document; re-indexing reuses it.
type VectorDocument struct {
	ID                  string           `json:"id" gorm:"type:varchar(64);primary_key"`
	GameID              string           `json:"game_id" gorm:"type:varchar(128);not null;index"`
	DocumentID          string           `json:"document_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	ChunkCount          int              `json:"chunk_count" gorm:"default:0"`
	TotalCharacters     int              `json:"total_characters" gorm:"default:0"`
	EmbeddingModel      string           `json:"embedding_model" gorm:"type:varchar(255)"`
	EmbeddingDimensions int              `json:"embedding_dimensions" gorm:"default:0"`
	IndexingStatus      ProcessingStatus `json:"indexing_status" gorm:"type:varchar(32);not null;default:'pending'"`
	IndexingError       *string          `json:"indexing_error,omitempty" gorm:"type:text"`
	IndexedAt           *time.Time       `json:"indexed_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time        `json:"updated_at" gorm:"not null"`
}

func (VectorDocument) TableName() string {
	return "meepleai_vector_documents"
}

// IngestResponse is returned by the re-index endpoint.
type IngestResponse struct {
	Success          bool       `json:"success"`
	VectorDocumentID string     `json:"vectorDocumentId"`
	ChunkCount       int        `json:"chunkCount"`
	IndexedAt        *time.Time `json:"indexedAt,omitempty"`
}
