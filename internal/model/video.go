package model

import "time"

// Chapter is a provider-declared chapter marker
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
}

// VideoMetadata is the identity and descriptive record for one ingested video
type VideoMetadata struct {
	VideoID     string    `json:"video_id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	UploadDate  string    `json:"upload_date" db:"upload_date"` // YYYYMMDD as reported by the provider
	Duration    float64   `json:"duration" db:"duration"`       // duration in seconds
	Tags        []string  `json:"tags" db:"tags"`
	Speakers    []string  `json:"speakers" db:"speakers"`
	CodeRepos   []string  `json:"code_repos" db:"code_repos"`
	Chapters    []Chapter `json:"chapters" db:"chapters"`
}

// TranscriptSegment is one reconciled unit of speech
type TranscriptSegment struct {
	StartTime      float64   `json:"start_time" db:"start_time"` // Start time in seconds
	EndTime        float64   `json:"end_time" db:"end_time"`     // End time in seconds
	Text           string    `json:"text" db:"text"`
	Speaker        *string   `json:"speaker" db:"speaker"` // nil when no speaker turn covers StartTime
	CodeBlocks     []string  `json:"code_blocks" db:"code_blocks"`
	TechnicalTerms []string  `json:"technical_terms" db:"technical_terms"`
	Embedding      []float32 `json:"embedding,omitempty" db:"embedding"`
}

// VideoRecord is a video together with its segments as stored by the library
type VideoRecord struct {
	Metadata  VideoMetadata       `json:"metadata"`
	Segments  []TranscriptSegment `json:"segments"`
	Version   string              `json:"version" db:"version"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
}

// VideoSummary is the listing view of a stored video
type VideoSummary struct {
	VideoID    string `json:"video_id" db:"id"`
	Title      string `json:"title" db:"title"`
	UploadDate string `json:"upload_date" db:"upload_date"`
}
