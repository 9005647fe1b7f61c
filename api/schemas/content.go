package schemas

import "time"

// GeneratedContent is the LLM output after cleaning, ready for the editor.
type GeneratedContent struct {
	Title           string `json:"title"`
	HTML            string `json:"content"`
	MetaDescription string `json:"meta_description,omitempty"`
}

// GenerateRequest asks for a post to be generated (and optionally published).
type GenerateRequest struct {
	Topic     string   `json:"topic"`
	SourceURL string   `json:"source_url,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Publish   bool     `json:"publish"`
}

// PublishContentRequest publishes caller-supplied content as-is.
type PublishContentRequest struct {
	Title string   `json:"title"`
	HTML  string   `json:"content"`
	Tags  []string `json:"tags,omitempty"`
}

// PostStatus tracks a stored post through its lifecycle.
type PostStatus string

const (
	PostCreated   PostStatus = "created"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
)

// Post is a generated article in the archive.
type Post struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	HTML            string     `json:"content"`
	MetaDescription string     `json:"meta_description,omitempty"`
	Status          PostStatus `json:"status"`
	TistoryURL      string     `json:"tistory_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
