// Package mailer 负责期刊邮件的对外投递。
package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sitecms/backend/internal/config"
)

// Message 一封待投递的邮件
type Message struct {
	To      string
	Subject string
	HTML    string
	// UnsubscribeURL 非空时写入 List-Unsubscribe 头
	UnsubscribeURL string
}

// Mailer 邮件投递接口
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New 根据配置选择投递方式
func New(cfg config.MailConfig, log *zap.Logger) (Mailer, error) {
	switch cfg.Mode {
	case "", "log":
		return NewLogMailer(cfg.From, log), nil
	case "smtp":
		return NewSMTPMailer(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown mail mode %q", cfg.Mode)
	}
}

// LogMailer 只记录日志不真正发送，用于开发环境
type LogMailer struct {
	from string
	log  *zap.Logger
}

// NewLogMailer 创建日志投递器
func NewLogMailer(from string, log *zap.Logger) *LogMailer {
	return &LogMailer{from: from, log: log}
}

// Send 记录邮件摘要
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Info("newsletter email (log mode)",
		zap.String("from", m.from),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
