package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/davehedengren/conference-talk-grace-works-classifier/pipeline"
)

// Mock implementations for testing

type mockMessageSender struct {
	sentMessages []sentMessage
	shouldFail   bool
}

type sentMessage struct {
	chatID int64
	text   string
	html   bool
}

func (m *mockMessageSender) SendMessage(ctx context.Context, chatID int64, text string, html bool) (int64, error) {
	if m.shouldFail {
		return 0, errors.New("telegram unavailable")
	}
	m.sentMessages = append(m.sentMessages, sentMessage{chatID, text, html})
	return int64(len(m.sentMessages)), nil
}

// Tests

func TestRunComplete(t *testing.T) {
	sender := &mockMessageSender{}
	notifier := NewNotifier(sender, 12345)

	summary := &pipeline.Summary{
		RunID:       "run-1",
		OutputPath:  "output/conference_talk_scores_20250102_093000.csv",
		CarriedOver: 10,
		Processed:   45,
		Succeeded:   42,
		Failed:      3,
		CacheHits:   7,
		Duration:    90 * time.Second,
	}

	err := notifier.RunComplete(context.Background(), summary)
	if err != nil {
		t.Fatalf("RunComplete failed: %v", err)
	}

	if len(sender.sentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sentMessages))
	}

	sent := sender.sentMessages[0]
	if sent.chatID != 12345 {
		t.Errorf("message sent to wrong chat: %d", sent.chatID)
	}
	if !sent.html {
		t.Error("run summary should be sent as HTML")
	}

	for _, want := range []string{
		"Classification run complete",
		"45 talks processed (10 carried over)",
		"42 succeeded",
		"3 failed",
		"7 cache hits",
		"1m30s",
		"conference_talk_scores_20250102_093000.csv",
	} {
		if !strings.Contains(sent.text, want) {
			t.Errorf("message should contain %q, got: %s", want, sent.text)
		}
	}
}

func TestRunCompleteSendFailure(t *testing.T) {
	sender := &mockMessageSender{shouldFail: true}
	notifier := NewNotifier(sender, 12345)

	err := notifier.RunComplete(context.Background(), &pipeline.Summary{})
	if err == nil {
		t.Fatal("expected error when sending fails")
	}
	if !strings.Contains(err.Error(), "send run summary") {
		t.Errorf("error should mention the summary send, got: %v", err)
	}
}

func TestRunFailed(t *testing.T) {
	sender := &mockMessageSender{}
	notifier := NewNotifier(sender, 12345)

	err := notifier.RunFailed(context.Background(), errors.New("talks dir not set"))
	if err != nil {
		t.Fatalf("RunFailed failed: %v", err)
	}

	if len(sender.sentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sentMessages))
	}

	msg := sender.sentMessages[0].text
	if !strings.Contains(msg, "Classification run failed") {
		t.Errorf("message should announce the failure, got: %s", msg)
	}
	if !strings.Contains(msg, "talks dir not set") {
		t.Errorf("message should contain the error text, got: %s", msg)
	}
}

func TestFormatRunMessageEscapesHTML(t *testing.T) {
	summary := &pipeline.Summary{
		OutputPath: "output/<scores> & more.csv",
	}

	msg := FormatRunMessage(summary)

	if strings.Contains(msg, "<scores>") {
		t.Error("HTML in output path should be escaped")
	}
	if !strings.Contains(msg, "&lt;scores&gt; &amp; more.csv") {
		t.Errorf("output path should have escaped HTML entities, got: %s", msg)
	}
}

func TestFormatFailureMessageEscapesHTML(t *testing.T) {
	msg := FormatFailureMessage(errors.New("parse <config> failed"))

	if strings.Contains(msg, "<config>") {
		t.Error("HTML in error text should be escaped")
	}
	if !strings.Contains(msg, "&lt;config&gt;") {
		t.Errorf("error text should have escaped HTML entities, got: %s", msg)
	}
}
