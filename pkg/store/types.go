package store

import "errors"

// ErrNotFound is returned when a lookup by id or key finds no row.
var ErrNotFound = errors.New("store: not found")

// ErrDimensionMismatch is returned when an embedding's length does not
// match the dimension the vector index was created with.
var ErrDimensionMismatch = errors.New("store: embedding dimension mismatch")

// ErrDuplicateHash is returned by PutChunks when a chunk with the same
// content hash already exists.
var ErrDuplicateHash = errors.New("store: duplicate chunk hash")

// Chunk roles, mirroring the spec's enumerated set.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Chunk source types.
const (
	SourceTypeConversation = "conversation"
	SourceTypeFile         = "file"
	SourceTypeManual       = "manual"
)

// Memory categories.
const (
	CategoryFact       = "fact"
	CategoryPreference = "preference"
	CategoryEvent      = "event"
	CategoryOpinion    = "opinion"
	CategorySkill      = "skill"
)

// Memory statuses.
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
	StatusDeleted    = "deleted"
)

// Chunk is an immutable text unit.
type Chunk struct {
	ID            int64
	Text          string
	Hash          string
	Role          string
	SourceType    string
	SourceID      string
	AgentID       string
	TokenEstimate int
	CreatedAt     string
}

// ChunkInput is the caller-supplied shape for a new chunk, prior to
// hash computation and id assignment.
type ChunkInput struct {
	Text          string
	Role          string
	SourceType    string
	SourceID      string
	AgentID       string
	TokenEstimate int
	CreatedAt     string
}

// VectorHit is one result from a vector nearest-neighbour query: a
// chunk id and its cosine distance to the query vector. Lower is
// closer.
type VectorHit struct {
	ChunkID  int64
	Distance float64
}

// FTSHit is one result from a full-text query: a chunk id and its raw
// BM25 score (SQLite convention: negative, lower/more-negative is a
// better match).
type FTSHit struct {
	ChunkID int64
	BM25Raw float64
}

// Filter narrows an FTS or metadata query to chunks matching the given
// non-empty fields.
type Filter struct {
	AgentID    string
	SourceType string
	Role       string
}

// Memory is an explicit fact recorded about the user or the world.
type Memory struct {
	ID             string
	Text           string
	Category       string
	Confidence     float64
	SourceChunkIDs []int64
	Status         string
	CreatedAt      string
	UpdatedAt      string
}

// Collection is a named directory under ingestion.
type Collection struct {
	Name         string
	RootPath     string
	IncludeGlobs []string
	IgnoreGlobs  []string
	FileCount    int
	ChunkCount   int
	LastSyncedAt string
}

// SourceFile is one indexed file within a Collection.
type SourceFile struct {
	Collection    string
	RelPath       string
	Hash          string
	Size          int64
	ChunkCount    int
	LastIndexedAt string
}

// CaptureState is a per (agent, source) capture progress marker.
type CaptureState struct {
	AgentID          string
	SourceID         string
	LastMessageCount int
	CycleCount       int
	LastCapturedAt   string
}
