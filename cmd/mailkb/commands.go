package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/mailkb"
	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/ingestion"
	"github.com/poiesic/mailkb/mailsource"
	"github.com/poiesic/mailkb/queue"
	"github.com/poiesic/mailkb/reembed"
	"github.com/poiesic/mailkb/search"
	"github.com/poiesic/mailkb/storage"
	"github.com/urfave/cli/v2"
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ingest",
			Usage:     "Classify emails from JSON or mbox files and queue them for review",
			ArgsUsage: "FILE...",
			Action:    ingestCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "format",
					Usage: "Input format (json, mbox); inferred from the extension when empty",
				},
				&cli.StringFlag{
					Name:  "folder",
					Usage: "Folder name for emails that carry none",
				},
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Number of emails classified concurrently",
					Value: 20,
				},
			},
		},
		{
			Name:   "pending",
			Usage:  "List emails waiting for review",
			Action: pendingCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "department", Usage: "Only emails classified into this department"},
				&cli.StringFlag{Name: "sensitivity", Usage: "Only emails with this sensitivity"},
				&cli.StringFlag{Name: "privacy", Usage: "Only private or public emails (private, public)"},
			},
		},
		{
			Name:      "show",
			Usage:     "Print an email review as JSON",
			ArgsUsage: "EMAIL_ID",
			Action:    showCommand,
		},
		{
			Name:      "review",
			Usage:     "Approve or reject an email",
			ArgsUsage: "EMAIL_ID",
			Action:    reviewCommand,
			Flags:     decisionFlags(),
		},
		{
			Name:      "bulk-review",
			Usage:     "Approve or reject several emails at once",
			ArgsUsage: "EMAIL_ID...",
			Action:    bulkReviewCommand,
			Flags:     decisionFlags(),
		},
		{
			Name:      "reindex",
			Usage:     "Retry indexing of an approved email",
			ArgsUsage: "EMAIL_ID",
			Action:    reindexCommand,
		},
		{
			Name:      "unindex",
			Usage:     "Remove an email from the search index",
			ArgsUsage: "EMAIL_ID",
			Action:    unindexCommand,
		},
		{
			Name:      "search",
			Usage:     "Search approved emails",
			ArgsUsage: "QUERY...",
			Action:    searchCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Usage: fmt.Sprintf("Maximum number of results (1-%d)", core.MaxSearchLimit),
					Value: core.DefaultSearchLimit,
				},
				&cli.StringFlag{Name: "department", Usage: "Only emails in this department"},
				&cli.StringFlag{Name: "sensitivity", Usage: "Only emails with this sensitivity"},
			},
		},
		{
			Name:   "audit",
			Usage:  "Show the audit log, newest first",
			Action: auditCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "user-id", Usage: "Only entries by this user"},
				&cli.StringFlag{Name: "action", Usage: "Only entries with this action type"},
				&cli.StringFlag{Name: "resource", Usage: "Only entries for this email or vector"},
				&cli.DurationFlag{Name: "since", Usage: "Only entries newer than this (e.g. 24h)"},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Maximum number of entries",
					Value: core.DefaultAuditLimit,
				},
			},
		},
		{
			Name:   "stats",
			Usage:  "Show review and index counts",
			Action: statsCommand,
		},
		{
			Name:   "reembed",
			Usage:  "Reembed all indexed emails with the configured embedding model",
			Action: reembedCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Number of records to process in each batch",
					Value: 100,
				},
				&cli.IntFlag{
					Name:  "report-interval",
					Usage: "Report progress every N records",
					Value: 100,
				},
				&cli.IntFlag{
					Name:  "max-retries",
					Usage: "Maximum retry attempts for failed operations",
					Value: 3,
				},
				&cli.DurationFlag{
					Name:  "retry-delay",
					Usage: "Base delay for exponential backoff",
					Value: 1 * time.Second,
				},
			},
		},
		{
			Name:   "retry-worker",
			Usage:  "Retry indexing of emails queued in Redis",
			Action: retryWorkerCommand,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "once",
					Usage: "Process the tasks queued now and exit",
				},
				&cli.IntFlag{
					Name:  "max-attempts",
					Usage: "Attempts per email before it is dropped (0 uses the config)",
				},
				&cli.DurationFlag{
					Name:  "poll-timeout",
					Usage: "How long to block waiting for a task",
					Value: queue.DefaultPollTimeout,
				},
				&cli.DurationFlag{
					Name:  "backoff",
					Usage: "Pause after a failed retry",
					Value: queue.DefaultBackoff,
				},
			},
		},
	}
}

func decisionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "approve", Usage: "Approve and index"},
		&cli.BoolFlag{Name: "reject", Usage: "Reject and keep out of the index"},
		&cli.StringFlag{Name: "notes", Usage: "Reviewer notes"},
	}
}

func ingestCommand(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("at least one input file is required")
	}
	format := mailsource.Format(strings.ToLower(c.String("format")))
	switch format {
	case "", mailsource.FormatJSON, mailsource.FormatMbox:
	default:
		return fmt.Errorf("%w: %s", mailsource.ErrUnknownFormat, format)
	}
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	var opts []mailsource.Option
	if folder := c.String("folder"); folder != "" {
		opts = append(opts, mailsource.WithFolderName(folder))
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		out := c.App.Writer
		var ingested, skipped, failed int
		report := func(results []*ingestion.IngestResult) {
			for _, r := range results {
				switch {
				case errors.Is(r.Err, storage.ErrDuplicateKey):
					skipped++
					fmt.Fprintf(out, "skipped %s: already ingested\n", r.EmailID)
				case r.Err != nil:
					failed++
					fmt.Fprintf(out, "failed  %s: %v\n", r.EmailID, r.Err)
				default:
					ingested++
					a := r.Review.Analysis
					fmt.Fprintf(out, "pending %s: %s/%s, recommended %s\n",
						r.EmailID, a.Department, a.Sensitivity, a.RecommendedAction)
				}
			}
		}

		batch := make([]*core.EmailContent, 0, batchSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			report(db.Pipeline().IngestBatch(ctx, actor(c), batch))
			batch = batch[:0]
		}

		for _, path := range paths {
			err := mailsource.ReadFile(ctx, path, format, func(content *core.EmailContent) error {
				batch = append(batch, content)
				if len(batch) == batchSize {
					flush()
				}
				return nil
			}, opts...)
			if err != nil {
				flush()
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		flush()

		fmt.Fprintf(out, "Ingested %d, skipped %d, failed %d\n", ingested, skipped, failed)
		if failed > 0 {
			return fmt.Errorf("%d emails failed to ingest", failed)
		}
		return nil
	})
}

func pendingCommand(c *cli.Context) error {
	filter, err := reviewFilter(c)
	if err != nil {
		return err
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		reviews, err := db.Pipeline().Pending(ctx, filter)
		if err != nil {
			return err
		}
		if len(reviews) == 0 {
			fmt.Fprintln(c.App.Writer, "No emails pending review")
			return nil
		}

		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL ID\tRECEIVED\tDEPARTMENT\tSENSITIVITY\tPRIVATE\tACTION\tSUBJECT")
		for _, r := range reviews {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				r.EmailID, formatTime(r.Content.ReceivedAt), r.Analysis.Department,
				r.Analysis.Sensitivity, r.Analysis.IsPrivate, r.Analysis.RecommendedAction,
				r.Content.Subject)
		}
		return w.Flush()
	})
}

func reviewFilter(c *cli.Context) (core.ReviewFilter, error) {
	var filter core.ReviewFilter
	var err error
	if filter.Department, err = parseDepartment(c.String("department")); err != nil {
		return filter, err
	}
	if filter.Sensitivity, err = parseSensitivity(c.String("sensitivity")); err != nil {
		return filter, err
	}
	switch strings.ToLower(c.String("privacy")) {
	case "":
	case "private":
		filter.IsPrivate = new(bool)
		*filter.IsPrivate = true
	case "public":
		filter.IsPrivate = new(bool)
	default:
		return filter, fmt.Errorf("privacy must be private or public, got %q", c.String("privacy"))
	}
	return filter, nil
}

func showCommand(c *cli.Context) error {
	emailID, err := singleArg(c, "email id")
	if err != nil {
		return err
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		review, err := db.Pipeline().Get(ctx, emailID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(review)
	})
}

func reviewCommand(c *cli.Context) error {
	emailID, err := singleArg(c, "email id")
	if err != nil {
		return err
	}
	approval, err := parseApproval(c)
	if err != nil {
		return err
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		d, err := db.Pipeline().ApproveAndIndex(ctx, actor(c), emailID, approval)
		if err != nil {
			return err
		}
		printDecision(c, d)
		return nil
	})
}

func bulkReviewCommand(c *cli.Context) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("at least one email id is required")
	}
	approval, err := parseApproval(c)
	if err != nil {
		return err
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		decisions, err := db.Pipeline().DecideMany(ctx, actor(c), ids, approval)
		if err != nil {
			return err
		}
		for _, d := range decisions {
			printDecision(c, d)
		}
		if missing := len(ids) - len(decisions); missing > 0 {
			fmt.Fprintf(c.App.Writer, "%d unknown email ids skipped\n", missing)
		}
		return nil
	})
}

func reindexCommand(c *cli.Context) error {
	emailID, err := singleArg(c, "email id")
	if err != nil {
		return err
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		d, err := db.Pipeline().Reindex(ctx, actor(c), emailID)
		if err != nil {
			return err
		}
		printDecision(c, d)
		if d.Index == core.IndexFailed {
			return fmt.Errorf("indexing %s failed: %w", emailID, d.IndexErr)
		}
		return nil
	})
}

func unindexCommand(c *cli.Context) error {
	emailID, err := singleArg(c, "email id")
	if err != nil {
		return err
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		if err := db.Pipeline().RemoveFromIndex(ctx, actor(c), emailID); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "removed %s from the index\n", emailID)
		return nil
	})
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return search.ErrEmptyQuery
	}
	opts := search.Options{Limit: c.Int("limit")}
	var err error
	if opts.Department, err = parseDepartment(c.String("department")); err != nil {
		return err
	}
	if opts.Sensitivity, err = parseSensitivity(c.String("sensitivity")); err != nil {
		return err
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		results, err := db.Searcher().Search(ctx, query, opts)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(c.App.Writer, "No results")
			return nil
		}

		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tSCORE\tEMAIL ID\tDEPARTMENT\tSUBJECT\tMATCHED")
		for i, r := range results {
			meta := r.Record.Metadata
			fmt.Fprintf(w, "%d\t%.3f\t%s\t%s\t%s\t%s\n",
				i+1, r.Score, r.Record.EmailID, meta[core.MetaDepartment],
				meta[core.MetaSubject], strings.Join(r.MatchedTerms, ","))
		}
		return w.Flush()
	})
}

func auditCommand(c *cli.Context) error {
	filter := core.AuditFilter{
		UserID:     c.String("user-id"),
		ActionType: c.String("action"),
		ResourceID: c.String("resource"),
		Limit:      c.Int("limit"),
	}
	if filter.Limit <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}
	if since := c.Duration("since"); since > 0 {
		filter.Start = time.Now().Add(-since)
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		entries, err := db.AuditLog(ctx, filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tACTION\tUSER\tRESOURCE\tDETAILS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				formatTime(e.Timestamp), e.ActionType, e.UserID, e.ResourceID, formatDetails(e.Details))
		}
		return w.Flush()
	})
}

func statsCommand(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		counts, err := db.Pipeline().Counts(ctx)
		if err != nil {
			return err
		}
		indexed, err := db.VectorRepository().Count(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		for _, status := range []core.ReviewStatus{core.StatusPending, core.StatusApproved, core.StatusRejected} {
			fmt.Fprintf(w, "%s\t%d\n", status, counts[status])
		}
		fmt.Fprintf(w, "indexed\t%d\n", indexed)
		if q := db.RetryQueue(); q != nil {
			n, err := q.Len(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "awaiting retry\t%d\n", n)
		}
		return w.Flush()
	})
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		if _, err := db.Reembed(ctx, actor(c), reembedConfig, c.App.ErrWriter); err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		return nil
	})
}

func retryWorkerCommand(c *cli.Context) error {
	opts := []queue.WorkerOption{
		queue.WithPollTimeout(c.Duration("poll-timeout")),
		queue.WithBackoff(c.Duration("backoff")),
	}
	if n := c.Int("max-attempts"); n != 0 {
		opts = append(opts, queue.WithMaxAttempts(n))
	}

	return withDatabase(c, func(ctx context.Context, db *mailkb.Database) error {
		worker, err := db.NewRetryWorker(opts...)
		if errors.Is(err, queue.ErrQueueRequired) {
			return fmt.Errorf("retry worker needs REDIS_URL or redis.url in the config: %w", err)
		}
		if err != nil {
			return err
		}
		if err := db.Pipeline().CheckEmbedder(ctx); err != nil {
			return fmt.Errorf("embedder check failed: %w", err)
		}

		var stats queue.Stats
		if c.Bool("once") {
			stats, err = worker.Drain(ctx)
		} else {
			stats, err = worker.Run(ctx)
		}
		fmt.Fprintf(c.App.Writer, "Indexed %d, requeued %d, dropped %d\n", stats.Indexed, stats.Requeued, stats.Dropped)
		return err
	})
}

func printDecision(c *cli.Context, d *ingestion.Decision) {
	line := fmt.Sprintf("%s %s (index: %s)", d.Review.Status, d.Review.EmailID, d.Index)
	if d.IndexErr != nil {
		line += fmt.Sprintf(": %v", d.IndexErr)
	}
	fmt.Fprintln(c.App.Writer, line)
}

func parseApproval(c *cli.Context) (core.Approval, error) {
	approve, reject := c.Bool("approve"), c.Bool("reject")
	if approve == reject {
		return core.Approval{}, fmt.Errorf("exactly one of --approve or --reject is required")
	}
	return core.Approval{Approved: approve, Notes: c.String("notes")}, nil
}

func parseDepartment(s string) (core.Department, error) {
	if s == "" {
		return "", nil
	}
	d := core.Department(strings.ToLower(s))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidDepartment, s)
	}
	return d, nil
}

func parseSensitivity(s string) (core.Sensitivity, error) {
	if s == "" {
		return "", nil
	}
	v := core.Sensitivity(strings.ToLower(s))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidSensitivity, s)
	}
	return v, nil
}

func singleArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("exactly one %s is required", name)
	}
	return c.Args().First(), nil
}

func formatDetails(details map[string]string) string {
	parts := make([]string, 0, len(details))
	for _, k := range slices.Sorted(maps.Keys(details)) {
		parts = append(parts, k+"="+details[k])
	}
	return strings.Join(parts, " ")
}
