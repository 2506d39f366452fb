package submit

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/marketplace"
)

// statusMapping is the fixed, total function from provider status to
// (task status, comment status).
var statusMapping = map[string]struct {
	task    string
	comment string
}{
	marketplace.StatusPublished:  {database.TaskPublished, database.CommentPosted},
	marketplace.StatusModRemoved: {database.TaskModRemoved, database.CommentModRemoved},
	marketplace.StatusCancelled:  {database.TaskCancelled, database.CommentFailed},
	marketplace.StatusAssigned:   {database.TaskAssigned, database.CommentSubmitting},
	marketplace.StatusPending:    {database.TaskPending, database.CommentSubmitting},
	marketplace.StatusSubmitted:  {database.TaskSubmitted, database.CommentSubmitting},
	marketplace.StatusFailed:     {database.TaskFailed, database.CommentFailed},
}

// MapProviderStatus translates a provider status string. ok is false for
// statuses outside the provider vocabulary.
func MapProviderStatus(providerStatus string) (taskStatus, commentStatus string, ok bool) {
	m, ok := statusMapping[providerStatus]
	if !ok {
		return "", "", false
	}
	return m.task, m.comment, true
}

// ReconcileResult reports what a callback did.
type ReconcileResult struct {
	Matched       bool
	TaskID        int64
	CommentID     *int64
	TaskStatus    string
	CommentStatus string
}

// Reconciler applies marketplace callbacks to local state. It runs
// independently of any submission run: callbacks arrive in any order,
// possibly duplicated, long after the run finished.
type Reconciler struct {
	db *database.DB

	// Serializes callbacks for the same task; different tasks proceed in
	// parallel. Entries are never removed; the task id space is small.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewReconciler creates a reconciler.
func NewReconciler(db *database.DB) *Reconciler {
	return &Reconciler{db: db, locks: make(map[int64]*sync.Mutex)}
}

// Reconcile matches a callback to a local task and applies the status
// mapping. An unmatched callback is a no-op, never an error. A structurally
// invalid payload (unknown status, no matching handle at all) returns an
// error so the transport layer can answer 4xx.
func (r *Reconciler) Reconcile(payload *marketplace.WebhookPayload) (*ReconcileResult, error) {
	if payload == nil || payload.Status == "" {
		return nil, fmt.Errorf("callback payload missing status")
	}

	taskStatus, commentStatus, ok := MapProviderStatus(payload.Status)
	if !ok {
		return nil, fmt.Errorf("unknown provider status %q", payload.Status)
	}

	task, err := r.match(payload)
	if err != nil {
		return nil, err
	}
	if task == nil {
		log.Printf("Callback matched no task (id=%q url=%q), ignoring", payload.ID, payload.ThreadURL)
		return &ReconcileResult{Matched: false}, nil
	}

	lock := r.taskLock(task.ID)
	lock.Lock()
	defer lock.Unlock()

	update := database.CallbackUpdate{
		TaskID:        task.ID,
		TaskStatus:    taskStatus,
		CommentStatus: commentStatus,
		Price:         payload.ClientPrice,
	}
	if payload.ID != "" {
		externalID := payload.ID
		update.ExternalID = &externalID
	}
	if raw, err := json.Marshal(payload); err == nil {
		rawStr := string(raw)
		update.ResponsePayload = &rawStr
	}

	// publishedAt is parsed leniently: a malformed timestamp is ignored.
	if ts := parseTimestamp(payload.PublishedAt); ts != nil {
		update.PublishedAt = ts
	}

	if commentStatus == database.CommentPosted {
		if len(payload.TaskSubmission) > 0 && payload.TaskSubmission[0].SubmissionURL != "" {
			postedURL := payload.TaskSubmission[0].SubmissionURL
			update.PostedURL = &postedURL
		}
		postedAt := time.Now().UTC().Format(time.RFC3339)
		if update.PublishedAt != nil {
			postedAt = *update.PublishedAt
		}
		update.PostedAt = &postedAt
	}

	if err := r.db.ApplyCallback(update); err != nil {
		return nil, fmt.Errorf("applying callback: %w", err)
	}

	log.Printf("Reconciled task %d -> %s (comment -> %s)", task.ID, taskStatus, commentStatus)
	return &ReconcileResult{
		Matched:       true,
		TaskID:        task.ID,
		CommentID:     task.CommentID,
		TaskStatus:    taskStatus,
		CommentStatus: commentStatus,
	}, nil
}

// match locates the task a callback refers to: by external id first (newest
// row wins on duplicates), then by exact (target URL, content) for tasks
// whose external id isn't known locally yet.
func (r *Reconciler) match(payload *marketplace.WebhookPayload) (*database.ExternalTask, error) {
	if payload.ID == "" && (payload.ThreadURL == "" || payload.Content == "") {
		return nil, fmt.Errorf("callback carries neither task id nor url+content")
	}

	if payload.ID != "" {
		task, err := r.db.FindTaskByExternalID(payload.ID)
		if err != nil {
			return nil, fmt.Errorf("matching by external id: %w", err)
		}
		if task != nil {
			return task, nil
		}
	}

	if payload.ThreadURL != "" && payload.Content != "" {
		task, err := r.db.FindTaskByTarget(payload.ThreadURL, payload.Content)
		if err != nil {
			return nil, fmt.Errorf("matching by target: %w", err)
		}
		if task != nil {
			return task, nil
		}
	}

	return nil, nil
}

func (r *Reconciler) taskLock(taskID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[taskID]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[taskID] = l
	return l
}

// parseTimestamp tries the timestamp layouts the provider has been seen to
// send. Returns nil when none fit.
func parseTimestamp(s string) *string {
	if s == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			formatted := t.UTC().Format(time.RFC3339)
			return &formatted
		}
	}
	log.Printf("Ignoring malformed publishedAt timestamp: %q", s)
	return nil
}

// Simulate builds a synthetic published callback from a comment's own stored
// task data and feeds it through the normal reconciliation path. Development
// aid for exercising the webhook contract without the live provider.
func (r *Reconciler) Simulate(commentID int64) (*ReconcileResult, error) {
	comment, err := r.db.GetCommentByID(commentID)
	if err != nil {
		return nil, fmt.Errorf("loading comment: %w", err)
	}
	if comment == nil {
		return nil, fmt.Errorf("comment %d not found", commentID)
	}

	tasks, err := r.db.GetTasksForComment(commentID)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("comment %d has no external task to simulate", commentID)
	}
	task := tasks[0] // newest

	payload := &marketplace.WebhookPayload{
		ThreadURL: task.TargetURL,
		TaskType:  task.TaskType,
		Status:    marketplace.StatusPublished,
		Content:   task.Content,
		TaskSubmission: []marketplace.TaskSubmission{
			{SubmissionURL: task.TargetURL + "/comment/simulated"},
		},
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if task.ExternalID != nil {
		payload.ID = *task.ExternalID
	}

	return r.Reconcile(payload)
}
