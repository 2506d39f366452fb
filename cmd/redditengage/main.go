package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/config"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/discovery"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/fetch"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/generator"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/llm"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/marketplace"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/progress"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/scoring"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/search"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/server"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/submit"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "redditengage",
	Short:   "Reddit engagement pipeline",
	Long:    "redditengage discovers relevant Reddit threads, drafts brand-voiced replies, and submits approved ones to a posting marketplace.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(commentsCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("redditengage", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/redditengage/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure API keys, the LLM provider, and the marketplace.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Printf("Projects: %d\n\n", stats.Projects)
		fmt.Println("Posts:")
		fmt.Printf("  Total discovered: %d\n", stats.TotalPosts)
		fmt.Printf("  Relevant: %d\n", stats.RelevantPosts)
		fmt.Println("\nComments:")
		fmt.Printf("  Total: %d\n", stats.TotalComments)
		fmt.Printf("  Drafts: %d\n", stats.DraftComments)
		fmt.Printf("  Posted: %d\n", stats.PostedComments)
		fmt.Printf("\nMarketplace tasks: %d\n", stats.ExternalTasks)
		return nil
	},
}

// --- project command ---

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage client projects",
}

var projectKeywords string

var projectAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.InsertProject(args[0], splitList(projectKeywords))
		if err != nil {
			return err
		}
		fmt.Printf("Added project [%d]: %s\n", id, args[0])
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		projects, err := db.GetAllProjects()
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects. Add one with: redditengage project add")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("  [%d] %s\n", p.ID, p.Name)
			if len(p.Keywords) > 0 {
				fmt.Printf("        keywords: %s\n", strings.Join(p.Keywords, ", "))
			}
		}
		return nil
	},
}

var (
	brandName        string
	brandDescription string
	brandUSP         string
	brandTone        string
	brandFormality   string
)

var projectBrandCmd = &cobra.Command{
	Use:   "brand [project-id]",
	Short: "Set a project's brand voice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		bc := &database.BrandConfig{ProjectID: projectID, BrandName: brandName}
		if brandDescription != "" {
			bc.Description = &brandDescription
		}
		if brandUSP != "" {
			bc.USP = &brandUSP
		}
		if brandTone != "" {
			bc.Tone = &brandTone
		}
		if brandFormality != "" {
			bc.Formality = &brandFormality
		}
		if err := db.UpsertBrandConfig(bc); err != nil {
			return err
		}
		fmt.Printf("Brand voice set for project %d\n", projectID)
		return nil
	},
}

var (
	redditSubreddits   string
	redditBlocked      string
	redditInstructions string
	redditFeeds        bool
)

var projectRedditCmd = &cobra.Command{
	Use:   "reddit [project-id]",
	Short: "Set a project's Reddit settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rs := &database.RedditSettings{
			ProjectID:         projectID,
			Subreddits:        splitList(redditSubreddits),
			BlockedSubreddits: splitList(redditBlocked),
			FeedDiscovery:     redditFeeds,
		}
		if redditInstructions != "" {
			rs.CustomInstructions = &redditInstructions
		}
		if err := db.UpsertRedditSettings(rs); err != nil {
			return err
		}
		fmt.Printf("Reddit settings set for project %d\n", projectID)
		return nil
	},
}

func init() {
	projectAddCmd.Flags().StringVar(&projectKeywords, "keywords", "", "Comma-separated search keywords")

	projectBrandCmd.Flags().StringVar(&brandName, "name", "", "Brand name")
	projectBrandCmd.Flags().StringVar(&brandDescription, "description", "", "What the brand does")
	projectBrandCmd.Flags().StringVar(&brandUSP, "usp", "", "Unique selling point")
	projectBrandCmd.Flags().StringVar(&brandTone, "tone", "", "Voice tone, e.g. friendly")
	projectBrandCmd.Flags().StringVar(&brandFormality, "formality", "", "Voice formality, e.g. casual")
	projectBrandCmd.MarkFlagRequired("name")

	projectRedditCmd.Flags().StringVar(&redditSubreddits, "subreddits", "", "Comma-separated subreddits to target")
	projectRedditCmd.Flags().StringVar(&redditBlocked, "blocked", "", "Comma-separated subreddits to exclude")
	projectRedditCmd.Flags().StringVar(&redditInstructions, "instructions", "", "Custom generation instructions")
	projectRedditCmd.Flags().BoolVar(&redditFeeds, "feeds", false, "Supplement discovery with subreddit feeds")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectBrandCmd)
	projectCmd.AddCommand(projectRedditCmd)
}

// --- discover command ---

var discoverRange string

var discoverCmd = &cobra.Command{
	Use:   "discover [project-id]",
	Short: "Search Reddit for threads matching a project's keywords",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		timeRange, err := resolveTimeRange(discoverRange)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		engine := buildDiscovery(db, progress.NewTracker())
		result, err := engine.Run(context.Background(), projectID, timeRange)
		if err != nil {
			return err
		}

		fmt.Println("Discovery complete:")
		fmt.Printf("  Keywords searched: %d\n", result.KeywordsSearched)
		fmt.Printf("  Threads found: %d\n", result.TotalFound)
		fmt.Printf("  New posts stored: %d\n", result.PostsStored)
		fmt.Printf("  Scored: %d\n", result.PostsScored)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverRange, "range", "week", "Time range: day, week, or month")
}

// --- fetch command ---

var fetchCmd = &cobra.Command{
	Use:   "fetch [project-id]",
	Short: "Fetch thread content for relevant posts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fetcher := fetch.NewThreadFetcher(db, 30*time.Second)
		result := fetcher.FetchMissingContent(context.Background(), projectID)

		fmt.Println("Fetch complete:")
		fmt.Printf("  Fetched: %d\n", result.Fetched)
		fmt.Printf("  Failed: %d\n", result.Failed)
		return nil
	},
}

// --- generate command ---

var (
	generatePostID      int64
	generatePromotional bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [project-id]",
	Short: "Draft comments for relevant posts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		gen := buildGenerator(db, progress.NewTracker())
		ctx := context.Background()

		if generatePostID > 0 {
			comment, err := gen.GenerateForPost(ctx, projectID, generatePostID, generatePromotional)
			if err != nil {
				return err
			}
			fmt.Printf("Draft [%d] (%s):\n\n%s\n", comment.ID, comment.Approach, comment.Body)
			return nil
		}

		result, err := gen.GenerateBatch(ctx, projectID, nil, generatePromotional)
		if err != nil {
			return err
		}
		fmt.Println("Generation complete:")
		fmt.Printf("  Posts: %d\n", result.Total)
		fmt.Printf("  Drafts created: %d\n", result.Generated)
		fmt.Printf("  Failed: %d\n", result.Failed)
		return nil
	},
}

func init() {
	generateCmd.Flags().Int64Var(&generatePostID, "post", 0, "Generate for a single post ID")
	generateCmd.Flags().BoolVar(&generatePromotional, "promotional", false, "Mention the brand in the draft")
}

// --- posts command ---

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Inspect and triage discovered posts",
}

var postsStatus string

var postsListCmd = &cobra.Command{
	Use:   "list [project-id]",
	Short: "List discovered posts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var posts []database.DiscoveredPost
		if postsStatus != "" {
			posts, err = db.GetPostsByFilterStatus(projectID, postsStatus)
		} else {
			posts, err = db.GetPostsForProject(projectID)
		}
		if err != nil {
			return err
		}

		if len(posts) == 0 {
			fmt.Println("No posts found.")
			return nil
		}
		for _, p := range posts {
			score := "-"
			if p.RelevanceScore != nil {
				score = fmt.Sprintf("%.2f", *p.RelevanceScore)
			}
			fmt.Printf("  [%d] %-14s %s  r/%s\n", p.ID, p.FilterStatus, score, p.Subreddit)
			fmt.Printf("        %s\n", p.Title)
		}
		return nil
	},
}

var postsFilterStatus string

var postsFilterCmd = &cobra.Command{
	Use:   "filter [post-id...]",
	Short: "Override the filter status of posts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args, "post")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		updated, err := db.BulkUpdateFilterStatus(ids, postsFilterStatus)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %d post(s) to %s\n", updated, postsFilterStatus)
		return nil
	},
}

func init() {
	postsListCmd.Flags().StringVar(&postsStatus, "status", "", "Filter by status: pending, relevant, low_relevance, skipped")
	postsFilterCmd.Flags().StringVar(&postsFilterStatus, "status", "", "New status")
	postsFilterCmd.MarkFlagRequired("status")

	postsCmd.AddCommand(postsListCmd)
	postsCmd.AddCommand(postsFilterCmd)
}

// --- comments command ---

var commentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "Review comment drafts",
}

var commentsStatus string

var commentsListCmd = &cobra.Command{
	Use:   "list [project-id]",
	Short: "List comments for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var comments []database.Comment
		if commentsStatus != "" {
			comments, err = db.GetCommentsByStatus(projectID, commentsStatus)
		} else {
			comments, err = db.GetCommentsForProject(projectID)
		}
		if err != nil {
			return err
		}

		if len(comments) == 0 {
			fmt.Println("No comments found.")
			return nil
		}
		for _, c := range comments {
			kind := "organic"
			if c.IsPromotional {
				kind = "promotional"
			}
			fmt.Printf("  [%d] %-10s %s (%s, post %d)\n", c.ID, c.Status, kind, c.Approach, c.PostID)
			body := c.Body
			if len(body) > 100 {
				body = body[:100] + "..."
			}
			fmt.Printf("        %s\n", body)
		}
		return nil
	},
}

var commentsApproveCmd = &cobra.Command{
	Use:   "approve [comment-id]",
	Short: "Approve a draft for submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commentID, err := parseID(args[0], "comment")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.ApproveComment(commentID); err != nil {
			return err
		}
		fmt.Printf("Approved comment %d\n", commentID)
		return nil
	},
}

var rejectReason string

var commentsRejectCmd = &cobra.Command{
	Use:   "reject [comment-id...]",
	Short: "Reject drafts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args, "comment")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var reason *string
		if rejectReason != "" {
			reason = &rejectReason
		}
		rejected, err := db.BulkRejectComments(ids, reason)
		if err != nil {
			return err
		}
		fmt.Printf("Rejected %d comment(s)\n", rejected)
		return nil
	},
}

func init() {
	commentsListCmd.Flags().StringVar(&commentsStatus, "status", "", "Filter by status: draft, approved, rejected, submitting, posted, failed, mod_removed")
	commentsRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Rejection reason")

	commentsCmd.AddCommand(commentsListCmd)
	commentsCmd.AddCommand(commentsApproveCmd)
	commentsCmd.AddCommand(commentsRejectCmd)
}

// --- submit command ---

var submitComments string

var submitCmd = &cobra.Command{
	Use:   "submit [project-id]",
	Short: "Submit approved comments to the marketplace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}

		var commentIDs []int64
		if submitComments != "" {
			commentIDs, err = parseIDs(splitList(submitComments), "comment")
			if err != nil {
				return err
			}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		engine := buildSubmitter(db, progress.NewTracker())
		result, err := engine.Submit(context.Background(), projectID, commentIDs)
		if err != nil {
			return err
		}

		fmt.Println("Submission complete:")
		fmt.Printf("  Comments: %d\n", result.Total)
		fmt.Printf("  Submitted: %d\n", result.Submitted)
		fmt.Printf("  Failed: %d\n", result.Failed)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitComments, "comments", "", "Comma-separated comment IDs (default: all approved)")
}

// --- simulate command ---

var simulateCmd = &cobra.Command{
	Use:   "simulate [comment-id]",
	Short: "Simulate a published marketplace callback for a submitted comment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commentID, err := parseID(args[0], "comment")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := submit.NewReconciler(db).Simulate(commentID)
		if err != nil {
			return err
		}
		fmt.Printf("Task %d -> %s (comment -> %s)\n", result.TaskID, result.TaskStatus, result.CommentStatus)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		tracker := progress.NewTracker()
		opts := server.Options{
			DB:            db,
			Discovery:     buildDiscovery(db, tracker),
			Generator:     buildGenerator(db, tracker),
			Submitter:     buildSubmitter(db, tracker),
			Reconciler:    submit.NewReconciler(db),
			Tracker:       tracker,
			WebhookSecret: os.Getenv(cfg.Marketplace.WebhookSecretEnv),
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(opts, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- wiring helpers ---

func buildDiscovery(db *database.DB, tracker *progress.Tracker) *discovery.Engine {
	searcher := search.NewClient(search.Options{
		APIKeyEnv:   cfg.Search.APIKeyEnv,
		Engine:      cfg.Search.Engine,
		MinInterval: cfg.Search.MinInterval(),
		MaxRetries:  uint64(cfg.Search.MaxRetries),
		BreakerTrip: uint32(cfg.Search.BreakerTrip),
		BreakerWait: cfg.Search.BreakerTimeout(),
	})
	scorer := scoringOrNil()
	return discovery.NewEngine(db, searcher, scorer, discovery.NewFeedCollector(""), tracker, cfg.Search.ResultLimit)
}

func buildGenerator(db *database.DB, tracker *progress.Tracker) *generator.Generator {
	provider := buildProvider()
	return generator.New(db, provider, generator.RandomSelector{}, tracker)
}

func buildSubmitter(db *database.DB, tracker *progress.Tracker) *submit.Engine {
	market := marketplace.NewClient(marketplace.Options{
		BaseURL:   cfg.Marketplace.BaseURL,
		APIKeyEnv: cfg.Marketplace.APIKeyEnv,
		ProjectID: cfg.Marketplace.ProjectID,
	})
	return submit.NewEngine(db, market, tracker, cfg.Marketplace.Upvotes)
}

func buildProvider() llm.Provider {
	return llm.CreateProvider(cfg.Generation.Provider, cfg.Generation.Model,
		cfg.Generation.OllamaURL, cfg.Generation.OpenAIModel, cfg.Generation.APIKeyEnv)
}

func scoringOrNil() scoring.Scorer {
	provider := buildProvider()
	if provider == nil || !provider.IsConfigured() {
		log.Printf("LLM provider not configured; discovered posts stay pending")
		return nil
	}
	return scoring.NewLLMScorer(provider)
}

func resolveTimeRange(name string) (string, error) {
	switch name {
	case "day":
		return search.RangeDay, nil
	case "week":
		return search.RangeWeek, nil
	case "month":
		return search.RangeMonth, nil
	default:
		return "", fmt.Errorf("invalid time range %q (want day, week, or month)", name)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseID(s, kind string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, s)
	}
	return id, nil
}

func parseIDs(args []string, kind string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg, kind)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "redditengage.db")
	return database.Open(dbPath)
}
