package domain

import "time"

// Article is the content event that triggers a broadcast. The aggregation
// pipeline that produces articles lives outside this service; broadcasts
// receive the already-rendered title and summary.
type Article struct {
	ArticleID   string    `json:"article_id" dynamodbav:"article_id"`
	Title       string    `json:"title" dynamodbav:"title"`
	URL         string    `json:"url" dynamodbav:"url"`
	Category    string    `json:"category" dynamodbav:"category"`
	Summary     string    `json:"summary" dynamodbav:"summary"`
	PublishedAt time.Time `json:"published_at" dynamodbav:"published_at"`
}

type BroadcastArticleRequest struct {
	ArticleID string `json:"article_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	URL       string `json:"url" validate:"required,url"`
	Category  string `json:"category"`
	Summary   string `json:"summary"`
}
