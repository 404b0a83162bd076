package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"sitecms/backend/internal/config"
)

// 未配置时使用的超时
const (
	defaultDialTimeout       = 10 * time.Second
	defaultCommandTimeout    = 30 * time.Second
	defaultSubmissionTimeout = 2 * time.Minute
)

// sendFunc 完成一次 SMTP 会话，便于测试替换
type sendFunc func(ctx context.Context, addr string, auth sasl.Client, from string, to []string, body *bytes.Reader) error

// SMTPMailer 通过 SMTP 中继投递，服务器支持时自动 STARTTLS
type SMTPMailer struct {
	addr     string
	from     string
	username string
	password string

	dialTimeout       time.Duration
	commandTimeout    time.Duration
	submissionTimeout time.Duration

	log  *zap.Logger
	send sendFunc
}

// NewSMTPMailer 创建 SMTP 投递器
func NewSMTPMailer(cfg config.MailConfig, log *zap.Logger) *SMTPMailer {
	m := &SMTPMailer{
		addr:              cfg.SMTPAddr,
		from:              cfg.From,
		username:          cfg.Username,
		password:          cfg.Password,
		dialTimeout:       orDefault(cfg.DialTimeout, defaultDialTimeout),
		commandTimeout:    orDefault(cfg.CommandTimeout, defaultCommandTimeout),
		submissionTimeout: orDefault(cfg.SubmissionTimeout, defaultSubmissionTimeout),
		log:               log,
	}
	m.send = m.deliver
	return m
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Send 组装并投递一封邮件
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := Compose(m.from, msg)
	if err != nil {
		return err
	}

	// 每次投递都新建 SASL 客户端，PLAIN 客户端不可复用
	var auth sasl.Client
	if m.username != "" {
		auth = sasl.NewPlainClient("", m.username, m.password)
	}

	if err := m.send(ctx, m.addr, auth, m.from, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		m.log.Warn("smtp delivery failed", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// deliver 建立连接并完成一次投递
//
// 每条命令受 commandTimeout 约束，DATA 结束受 submissionTimeout 约束；
// ctx 取消时立即关闭连接，阻塞中的读写随之返回。
func (m *SMTPMailer) deliver(ctx context.Context, addr string, auth sasl.Client, from string, to []string, body *bytes.Reader) error {
	dialer := &net.Dialer{Timeout: m.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}

	client := gosmtp.NewClient(conn)
	client.CommandTimeout = m.commandTimeout
	client.SubmissionTimeout = m.submissionTimeout
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// 机会性 STARTTLS
	if ok, _ := client.Extension("STARTTLS"); ok {
		host, _, _ := net.SplitHostPort(addr)
		if err := client.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return m.sessionError(ctx, "STARTTLS", err)
		}
	}

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); !ok {
			return fmt.Errorf("smtp server %s does not support AUTH", addr)
		}
		if err := client.Auth(auth); err != nil {
			return m.sessionError(ctx, "AUTH", err)
		}
	}

	if err := client.SendMail(from, to, body); err != nil {
		return m.sessionError(ctx, "send", err)
	}
	if err := client.Quit(); err != nil {
		m.log.Debug("smtp quit failed", zap.String("addr", addr), zap.Error(err))
	}
	return nil
}

// sessionError 连接因 ctx 取消被关闭时返回 ctx 的错误
func (m *SMTPMailer) sessionError(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("smtp %s: %w", stage, ctxErr)
	}
	return fmt.Errorf("smtp %s: %w", stage, err)
}
