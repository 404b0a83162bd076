package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitecms/backend/internal/config"
)

func TestCompose(t *testing.T) {
	raw, err := Compose("news@example.com", Message{
		To:             "reader@example.com",
		Subject:        "月度通讯",
		HTML:           "<p>Hello reader, this line is long enough to need a soft break in quoted printable output.</p>",
		UnsubscribeURL: "https://example.com/unsubscribe",
	})
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "月度通讯", subject)
	assert.Equal(t, "<news@example.com>", parsed.Header.Get("From"))
	assert.Equal(t, "<https://example.com/unsubscribe>", parsed.Header.Get("List-Unsubscribe"))
	assert.Contains(t, parsed.Header.Get("Message-ID"), "@example.com>")

	body, err := io.ReadAll(quotedprintable.NewReader(parsed.Body))
	require.NoError(t, err)
	assert.Contains(t, string(body), "soft break in quoted printable output.</p>")

	t.Run("非法收件人", func(t *testing.T) {
		_, err := Compose("news@example.com", Message{To: "not an address"})
		assert.Error(t, err)
	})
}

func TestSMTPMailer_Send(t *testing.T) {
	cfg := config.MailConfig{
		Mode:     "smtp",
		SMTPAddr: "smtp.example.com:587",
		Username: "relay",
		Password: "secret",
		From:     "news@example.com",
	}

	t.Run("带认证投递", func(t *testing.T) {
		m := NewSMTPMailer(cfg, zap.NewNop())
		var gotAddr, gotFrom string
		var gotTo []string
		var gotAuth sasl.Client
		m.send = func(_ context.Context, addr string, auth sasl.Client, from string, to []string, body *bytes.Reader) error {
			gotAddr, gotAuth, gotFrom, gotTo = addr, auth, from, to
			return nil
		}

		require.NoError(t, m.Send(context.Background(), Message{To: "reader@example.com", Subject: "hi", HTML: "<b>x</b>"}))
		assert.Equal(t, "smtp.example.com:587", gotAddr)
		assert.Equal(t, "news@example.com", gotFrom)
		assert.Equal(t, []string{"reader@example.com"}, gotTo)
		require.NotNil(t, gotAuth)

		mech, ir, err := gotAuth.Start()
		require.NoError(t, err)
		assert.Equal(t, sasl.Plain, mech)
		assert.Equal(t, []byte("\x00relay\x00secret"), ir)
	})

	t.Run("投递失败返回错误", func(t *testing.T) {
		m := NewSMTPMailer(cfg, zap.NewNop())
		m.send = func(context.Context, string, sasl.Client, string, []string, *bytes.Reader) error {
			return errors.New("connection refused")
		}
		err := m.Send(context.Background(), Message{To: "reader@example.com", Subject: "hi"})
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("上下文取消不投递", func(t *testing.T) {
		m := NewSMTPMailer(cfg, zap.NewNop())
		called := false
		m.send = func(context.Context, string, sasl.Client, string, []string, *bytes.Reader) error {
			called = true
			return nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, m.Send(ctx, Message{To: "reader@example.com"}), context.Canceled)
		assert.False(t, called)
	})
}

// recordingSession 记录收到的邮件
type recordingSession struct {
	from string
	to   []string
	data []byte
	done chan struct{}
}

func (s *recordingSession) Reset()        {}
func (s *recordingSession) Logout() error { return nil }

func (s *recordingSession) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *recordingSession) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *recordingSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	s.data = data
	close(s.done)
	return err
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// stalledRelay 接受连接但从不发送问候
func stalledRelay(t *testing.T) string {
	t.Helper()
	l := listen(t)
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return l.Addr().String()
}

func TestSMTPMailer_Deliver(t *testing.T) {
	cfg := config.MailConfig{
		Mode:              "smtp",
		From:              "news@example.com",
		DialTimeout:       time.Second,
		CommandTimeout:    200 * time.Millisecond,
		SubmissionTimeout: time.Second,
	}

	t.Run("完整的SMTP会话", func(t *testing.T) {
		session := &recordingSession{done: make(chan struct{})}
		server := gosmtp.NewServer(gosmtp.BackendFunc(func(*gosmtp.Conn) (gosmtp.Session, error) {
			return session, nil
		}))
		server.Domain = "localhost"
		l := listen(t)
		go server.Serve(l)
		t.Cleanup(func() { server.Close() })

		cfg := cfg
		cfg.SMTPAddr = l.Addr().String()
		m := NewSMTPMailer(cfg, zap.NewNop())
		require.NoError(t, m.Send(context.Background(), Message{To: "reader@example.com", Subject: "hi", HTML: "<p>x</p>"}))

		select {
		case <-session.done:
		case <-time.After(2 * time.Second):
			t.Fatal("message not received")
		}
		assert.Equal(t, "news@example.com", session.from)
		assert.Equal(t, []string{"reader@example.com"}, session.to)
		assert.Contains(t, string(session.data), "Subject: hi")
	})

	t.Run("中继不发送问候时按命令超时返回", func(t *testing.T) {
		cfg := cfg
		cfg.SMTPAddr = stalledRelay(t)
		m := NewSMTPMailer(cfg, zap.NewNop())

		start := time.Now()
		err := m.Send(context.Background(), Message{To: "reader@example.com", Subject: "hi"})
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("上下文取消中断阻塞的会话", func(t *testing.T) {
		cfg := cfg
		cfg.SMTPAddr = stalledRelay(t)
		cfg.CommandTimeout = time.Minute
		m := NewSMTPMailer(cfg, zap.NewNop())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		start := time.Now()
		err := m.Send(ctx, Message{To: "reader@example.com", Subject: "hi"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 3*time.Second)
	})
}

func TestNew(t *testing.T) {
	m, err := New(config.MailConfig{Mode: "log"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	m, err = New(config.MailConfig{Mode: "smtp", SMTPAddr: "localhost:25"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)

	_, err = New(config.MailConfig{Mode: "pigeon"}, zap.NewNop())
	assert.Error(t, err)
}
