package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobscout/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts run summaries to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(time.Duration)
}

// NewSlackNotifier returns a notifier that posts each finished run to Slack.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// NotifyRun sends one Block Kit message summarizing run. A 429 is retried
// once after the Retry-After delay.
func (s *SlackNotifier) NotifyRun(run model.Run) error {
	body, err := json.Marshal(buildPayload(run))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(body)
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after_secs", retryAfter)
		s.sleep(time.Duration(retryAfter) * time.Second)

		status, _, err = s.post(body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		s.logger.Info("slack run report sent", "run_id", run.ID, "retried", true)
		return nil
	}
	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	s.logger.Info("slack run report sent", "run_id", run.ID)
	return nil
}

// post sends body and returns the status code and, for 429, the
// Retry-After delay in seconds (at least 1).
func (s *SlackNotifier) post(body []byte) (int, int, error) {
	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	secs := 0
	if resp.StatusCode == http.StatusTooManyRequests {
		secs, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		if secs <= 0 {
			secs = 1
		}
	}
	return resp.StatusCode, secs, nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendTestMessage sends a sample run report to verify the integration works
// and returns the run it reported.
func SendTestMessage(n model.Notifier) (model.Run, error) {
	now := time.Now().UTC()
	started := now.Add(-3 * time.Minute)
	run := model.Run{
		ID:           0,
		StartedAt:    started,
		EndedAt:      &now,
		Query:        model.Query{Keywords: "test notification", Location: "Everywhere", Window: model.WindowDay, Limit: 1},
		Discovered:   1,
		PersistedNew: 1,
		Status:       model.RunCompleted,
	}
	return run, n.NotifyRun(run)
}

func buildPayload(run model.Run) slackPayload {
	icon := "✅"
	if run.Status == model.RunFailed {
		icon = "❌"
	}

	location := run.Query.Location
	if location == "" {
		location = "anywhere"
	}
	duration := "in progress"
	if run.EndedAt != nil {
		duration = run.EndedAt.Sub(run.StartedAt).Round(time.Second).String()
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("%s Run #%d %s: %s", icon, run.ID, run.Status, run.Query.Keywords)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Location:*\n" + location},
				{Type: "mrkdwn", Text: "*Window:*\n" + string(run.Query.Window)},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Discovered:*\n%d", run.Discovered)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*New:*\n%d", run.PersistedNew)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Updated:*\n%d", run.PersistedUpdated)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Unchanged:*\n%d", run.Unchanged)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Failed:*\n%d", run.Failed)},
				{Type: "mrkdwn", Text: "*Duration:*\n" + duration},
			},
		},
	}

	if run.ErrorSummary != nil {
		blocks = append(blocks, slackBlock{
			Type:     "context",
			Elements: []slackText{{Type: "mrkdwn", Text: *run.ErrorSummary}},
		})
	}

	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}
