package deadletter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	json "github.com/goccy/go-json"

	"github.com/shineum/smtp2webhook/internal/email"
)

var errExhausted = errors.New("webhook delivery failed after 3 attempts")

func testEmail(subject string) *email.Email {
	return email.New(
		email.Envelope{From: "sender@example.com", To: []string{"alice@example.com", "bob@example.com"}},
		subject, "Body text", []string{"report.pdf"},
	)
}

func TestWriterSink_Store(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewWriter(&buf)

	if err := sink.Store(context.Background(), testEmail("Hello"), errExhausted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Reason: webhook delivery failed after 3 attempts",
		"From: sender@example.com",
		"To: alice@example.com, bob@example.com",
		"Subject: Hello",
		"Body text",
		"Attachments: report.pdf",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if sink.Name() != "stdout" {
		t.Errorf("Name(): got %q, want %q", sink.Name(), "stdout")
	}
}

func TestRedisSink_StoreAndTrim(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	sink := NewRedis(RedisConfig{Addr: mr.Addr(), Key: "dlq", MaxLen: 2})
	defer sink.Close()

	ctx := context.Background()
	for _, subject := range []string{"one", "two", "three"} {
		if err := sink.Store(ctx, testEmail(subject), errExhausted); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, err := mr.List("dlq")
	if err != nil {
		t.Fatalf("failed to read list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("list length: got %d, want 2", len(items))
	}

	var newest Record
	if err := json.Unmarshal([]byte(items[0]), &newest); err != nil {
		t.Fatalf("invalid record JSON: %v", err)
	}
	if newest.Email.Subject != "three" {
		t.Errorf("newest subject: got %q, want %q", newest.Email.Subject, "three")
	}
	if newest.Reason != errExhausted.Error() {
		t.Errorf("Reason: got %q, want %q", newest.Reason, errExhausted.Error())
	}
	if newest.FailedAt.IsZero() {
		t.Error("FailedAt should be set")
	}
}

func TestRedisSink_DefaultKey(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	sink := NewRedis(RedisConfig{Addr: mr.Addr()})
	defer sink.Close()

	if err := sink.Store(context.Background(), testEmail("x"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists(DefaultRedisKey) {
		t.Errorf("expected key %q to exist", DefaultRedisKey)
	}
}

func TestRedisSink_Unavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	sink := NewRedis(RedisConfig{Addr: addr})
	defer sink.Close()

	if err := sink.Store(context.Background(), testEmail("x"), errExhausted); err == nil {
		t.Error("expected error when redis is down, got nil")
	}
}

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	err       error
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{}, nil
}

func TestSESSink_Store(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	sink := NewSESWithClient("alerts@example.com", "ops@example.com", mock)

	if err := sink.Store(context.Background(), testEmail("Invoice"), errExhausted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Fatalf("SendEmail calls: got %d, want 1", mock.callCount)
	}
	in := mock.lastInput
	if *in.FromEmailAddress != "alerts@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", *in.FromEmailAddress, "alerts@example.com")
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "ops@example.com" {
		t.Errorf("ToAddresses: got %v, want [ops@example.com]", in.Destination.ToAddresses)
	}
	if got := *in.Content.Simple.Subject.Data; got != "Undeliverable webhook message: Invoice" {
		t.Errorf("Subject: got %q", got)
	}
	body := *in.Content.Simple.Body.Text.Data
	if !strings.Contains(body, errExhausted.Error()) {
		t.Errorf("body missing reason:\n%s", body)
	}
	if !strings.Contains(body, `"subject": "Invoice"`) {
		t.Errorf("body missing JSON record:\n%s", body)
	}
}

func TestSESSink_SendError(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{err: errors.New("throttled")}
	sink := NewSESWithClient("alerts@example.com", "ops@example.com", mock)

	err := sink.Store(context.Background(), testEmail(""), errExhausted)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "throttled") {
		t.Errorf("error: got %v, want it to wrap the SES error", err)
	}
	if got := *mock.lastInput.Content.Simple.Subject.Data; got != "Undeliverable webhook message" {
		t.Errorf("Subject without email subject: got %q", got)
	}
}
