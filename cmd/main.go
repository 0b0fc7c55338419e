package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yungbote/vidlens-backend/internal/app"
	videos "github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/jobs"
	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/services"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

const (
	admissionAttempts = 5
	admissionBackoff  = 2 * time.Second
	shutdownGrace     = 30 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(urls []string) int {
	if len(urls) == 0 {
		fmt.Println("usage: vidlens <video-url> [video-url ...]")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		return 1
	}
	a.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		a.Close(closeCtx)
	}()

	log := a.Log

	// One session per invocation. SESSION_ID lets repeated runs share a
	// workspace; empty means a fresh session.
	sess, err := a.Services.Sessions.GetOrCreateSession(utils.GetEnv("SESSION_ID", "", log))
	if err != nil {
		log.Error("Session admission failed", "error", err)
		return 1
	}

	done := make(chan string, len(urls))
	submitted := 0
	for _, rawURL := range urls {
		jobID, err := submitAnalysis(ctx, a, sess.SessionID, rawURL, done)
		if err != nil {
			log.Error("Could not queue analysis", "url", rawURL, "error", err)
			continue
		}
		log.Info("Analysis queued", "url", rawURL, "job_id", jobID)
		submitted++
	}
	if submitted == 0 {
		return 1
	}

	failed := 0
	for finished := 0; finished < submitted; finished++ {
		select {
		case <-ctx.Done():
			log.Warn("Interrupted, abandoning pending jobs", "pending", submitted-finished)
			return 1
		case jobID := <-done:
			if !report(a, log, jobID) {
				failed++
			}
		}
	}
	if failed > 0 {
		log.Warn("Run finished with failures", "failed", failed, "submitted", submitted)
		return 1
	}
	return 0
}

// submitAnalysis admits one task against the session and hands the pipeline
// run to the queue. The completion callback releases the task slot and
// signals done regardless of outcome.
func submitAnalysis(ctx context.Context, a *app.App, sessionID, rawURL string, done chan<- string) (string, error) {
	taskName := "analyze " + rawURL
	if err := startTaskWithRetry(ctx, a.Log, a.Services.Sessions, sessionID, taskName); err != nil {
		return "", err
	}

	jobID, err := a.Queue.Submit(jobs.JobRequest{
		Name:      "video_analysis",
		SessionID: sessionID,
		Priority:  jobs.PriorityNormal,
		Fn: func(jobCtx context.Context, progress jobs.ProgressFunc) (any, error) {
			sink := services.ProgressSink(func(ev services.ProgressEvent) {
				progress(ev.Stage, ev.Percent, ev.Message)
			})
			return a.Services.Pipeline.Process(jobCtx, sessionID, rawURL, sink)
		},
		Progress: func(stage string, percent float64, message string) {
			a.Log.Info("Progress", "url", rawURL, "stage", stage, "percent", fmt.Sprintf("%.1f", percent), "message", message)
		},
		Completion: func(jobID string, result any, errMsg string) {
			a.Services.Sessions.EndTask(sessionID, taskName)
			done <- jobID
		},
	})
	if err != nil {
		a.Services.Sessions.EndTask(sessionID, taskName)
		return "", err
	}
	return jobID, nil
}

// startTaskWithRetry backs off on transient admission refusals (capacity,
// resource pressure, full queue) and gives up on anything else.
func startTaskWithRetry(ctx context.Context, log *logger.Logger, sessions services.SessionManager, sessionID, taskName string) error {
	for attempt := 1; ; attempt++ {
		err := sessions.StartTask(ctx, sessionID, taskName)
		if err == nil {
			return nil
		}
		if attempt >= admissionAttempts || !apperrors.Retryable(err) {
			return err
		}
		log.Warn("Admission deferred, retrying", "task", taskName, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(admissionBackoff):
		}
	}
}

func report(a *app.App, log *logger.Logger, jobID string) bool {
	res, err := a.Queue.Result(jobID)
	if err != nil {
		log.Error("Result lookup failed", "job_id", jobID, "error", err)
		return false
	}
	if res.Status != jobs.StatusCompleted {
		log.Error("Analysis failed", "job_id", jobID, "status", string(res.Status), "error", res.Error)
		return false
	}
	video, ok := res.Result.(*videos.Video)
	if !ok || video == nil {
		log.Error("Unexpected job payload", "job_id", jobID, "name", res.Name)
		return false
	}
	printSummary(video, res.ExecutionTimeSeconds)
	return true
}

func printSummary(v *videos.Video, seconds float64) {
	fmt.Printf("\n=== %s ===\n", v.URL)
	if m := v.Metadata; m != nil {
		fmt.Printf("Title:     %s\n", m.Title)
		fmt.Printf("Platform:  %s\n", m.Platform)
		if m.DurationSeconds > 0 {
			fmt.Printf("Duration:  %.0fs\n", m.DurationSeconds)
		}
		if m.ViewCount > 0 {
			fmt.Printf("Views:     %d\n", m.ViewCount)
		}
	}
	if a := v.Analysis; a != nil {
		fmt.Printf("Genre:     %s\n", a.Genre)
		if a.MoodTone != "" {
			fmt.Printf("Mood:      %s\n", a.MoodTone)
		}
		if len(a.Tags) > 0 {
			fmt.Printf("Tags:      %s\n", strings.Join(a.Tags, ", "))
		}
		if a.TargetAudience != "" {
			fmt.Printf("Audience:  %s\n", a.TargetAudience)
		}
		if a.ExpressionStyle != "" {
			fmt.Printf("Style:     %s\n", a.ExpressionStyle)
		}
		fmt.Printf("Parsed:    %s via %s\n", a.ParseMethod, a.ModelUsed)
		if a.Reasoning != "" {
			fmt.Printf("Reasoning: %s\n", a.Reasoning)
		}
	}
	if len(v.Scenes) > 0 {
		fmt.Printf("Scenes:    %d detected, %d grouped\n", len(v.Scenes), len(v.GroupedScenes))
	}
	fmt.Printf("Elapsed:   %.1fs\n", seconds)
}
