package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/dmitrijs2005/pinvault/internal/logging"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []Message
	err   error
	block chan struct{}
}

func (r *recordingSender) Send(ctx context.Context, msg Message) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingSender) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

func TestOtpMessage(t *testing.T) {
	m := OtpMessage("alice@example.com", "123456", 10)
	require.Equal(t, "alice@example.com", m.To)
	require.Contains(t, m.Body, "123456")
	require.Contains(t, m.Body, "10 minutes")
}

func TestLogSender_WritesMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(logging.NewJSONLogger(&buf, "info"))

	require.NoError(t, s.Send(context.Background(), Message{To: "a@b.c", Subject: "s", Body: "code 42"}))
	require.Contains(t, buf.String(), `"to":"a@b.c"`)
	require.Contains(t, buf.String(), "code 42")
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	api := &fakeSES{}
	s := NewSESSenderWithClient(api, "no-reply@example.com")

	err := s.Send(context.Background(), Message{To: "alice@example.com", Subject: "subj", Body: "body"})
	require.NoError(t, err)

	require.Equal(t, "no-reply@example.com", aws.ToString(api.in.FromEmailAddress))
	require.Equal(t, []string{"alice@example.com"}, api.in.Destination.ToAddresses)
	require.Equal(t, "subj", aws.ToString(api.in.Content.Simple.Subject.Data))
	require.Equal(t, "body", aws.ToString(api.in.Content.Simple.Body.Text.Data))
}

func TestSESSender_SendError(t *testing.T) {
	boom := errors.New("throttled")
	s := NewSESSenderWithClient(&fakeSES{err: boom}, "x@example.com")

	err := s.Send(context.Background(), Message{To: "a@b.c"})
	require.ErrorIs(t, err, boom)
}

func TestNewSESSender_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}

	_, err := NewSESSender(context.Background(), SESConfig{Region: "us-east-1", From: "x@example.com"})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "aws config"))
}

func TestNewSESSender_StaticCredentials(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	var opts config.LoadOptions
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&opts))
		}
		return aws.Config{Region: opts.Region}, nil
	}

	s, err := NewSESSender(context.Background(), SESConfig{Region: "eu-west-1", From: "x@example.com", AccessKey: "ak", SecretKey: "sk"})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, "eu-west-1", opts.Region)
	require.NotNil(t, opts.Credentials)
}

func TestDispatcher_DeliversAll(t *testing.T) {
	rs := &recordingSender{}
	d := NewDispatcher(rs, 2, 8, logging.Nop())
	d.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.True(t, d.Enqueue(context.Background(), Message{To: "a@b.c"}))
	}
	d.Stop()

	require.Len(t, rs.messages(), 5)
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	rs := &recordingSender{block: make(chan struct{})}
	d := NewDispatcher(rs, 1, 1, logging.Nop())
	d.Start(context.Background())

	// first message is picked up by the blocked worker, second fills the queue
	require.True(t, d.Enqueue(context.Background(), Message{To: "1"}))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.True(t, d.Enqueue(context.Background(), Message{To: "2"}))
	require.False(t, d.Enqueue(context.Background(), Message{To: "3"}))

	close(rs.block)
	d.Stop()
	require.Len(t, rs.messages(), 2)
}

func TestDispatcher_SendErrorIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	rs := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(rs, 1, 1, logging.NewJSONLogger(&buf, "info"))
	d.Start(context.Background())

	require.True(t, d.Enqueue(context.Background(), Message{To: "a@b.c"}))
	d.Stop()

	require.Contains(t, buf.String(), "mail delivery failed")
	require.Contains(t, buf.String(), "smtp down")
}

func TestDispatcher_EnqueueAfterStop(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, 1, 1, logging.Nop())
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	require.False(t, d.Enqueue(context.Background(), Message{To: "a@b.c"}))
}
