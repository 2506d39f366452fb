package database

// Filter statuses for discovered posts.
const (
	FilterPending      = "pending"
	FilterRelevant     = "relevant"
	FilterLowRelevance = "low_relevance"
	FilterSkipped      = "skipped"
)

// Comment statuses.
const (
	CommentDraft      = "draft"
	CommentApproved   = "approved"
	CommentRejected   = "rejected"
	CommentSubmitting = "submitting"
	CommentPosted     = "posted"
	CommentFailed     = "failed"
	CommentModRemoved = "mod_removed"
)

// External task statuses, mirroring the marketplace vocabulary.
const (
	TaskPending    = "PENDING"
	TaskAssigned   = "ASSIGNED"
	TaskSubmitted  = "SUBMITTED"
	TaskPublished  = "PUBLISHED"
	TaskModRemoved = "MOD_REMOVED"
	TaskCancelled  = "CANCELLED"
	TaskFailed     = "FAILED"
)

// Project is a client project whose brand gets engaged on Reddit.
type Project struct {
	ID        int64
	Name      string
	Keywords  []string
	CreatedAt *string
}

// BrandConfig holds the brand-voice configuration for a project.
type BrandConfig struct {
	ProjectID           int64
	BrandName           string
	Description         *string
	USP                 *string
	Tone                *string
	Formality           *string
	PreferredVocabulary []string
	BannedVocabulary    []string
	SignaturePhrases    []string
}

// RedditSettings holds the Reddit-specific configuration for a project.
type RedditSettings struct {
	ProjectID          int64
	Subreddits         []string
	BlockedSubreddits  []string
	CustomInstructions *string
	FeedDiscovery      bool
}

// DiscoveredPost is a Reddit thread found during discovery.
type DiscoveredPost struct {
	ID               int64
	ProjectID        int64
	RedditPostID     *string
	Subreddit        string
	Title            string
	URL              string
	Snippet          *string
	Keyword          string
	Intent           *string
	IntentCategories []string
	RelevanceScore   *float64
	MatchedKeywords  []string
	Evaluation       *string
	FilterStatus     string
	SerpRank         int
	Content          *string
	ContentFetched   bool
	DiscoveredAt     *string
}

// Comment is a candidate or posted reply to a discovered post.
// OriginalBody is set once at creation and never mutated; edits touch Body only.
type Comment struct {
	ID               int64
	PostID           int64
	ProjectID        int64
	AccountID        *string
	Body             string
	OriginalBody     string
	IsPromotional    bool
	Approach         string
	Status           string
	RejectionReason  *string
	CrowdReplyTaskID *string
	PostedURL        *string
	PostedAt         *string
	ModelID          *string
	GeneratedAt      *string
}

// ExternalTask is the local shadow of a posting task handed to the marketplace.
type ExternalTask struct {
	ID                int64
	CommentID         *int64
	ExternalID        *string
	TaskType          string
	Status            string
	TargetURL         string
	Content           string
	ProviderProjectID *string
	RequestPayload    *string
	ResponsePayload   *string
	Upvotes           int
	Price             *float64
	SubmittedAt       *string
	PublishedAt       *string
	CreatedAt         *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Projects       int
	TotalPosts     int
	RelevantPosts  int
	TotalComments  int
	DraftComments  int
	PostedComments int
	ExternalTasks  int
}
