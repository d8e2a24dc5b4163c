// Package mailer はメール確認・パスワード再設定リンクの送信を提供する。
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	smtpDialTimeout = 10 * time.Second
	// smtpSendTimeout は接続からQUITまでの上限。ctxの終了時はその時点で中断する。
	smtpSendTimeout = 30 * time.Second
)

// Sender はトランザクションメール送信のインターフェース。
type Sender interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// Links はフロントエンドのURLからメール本文のリンクを組み立てる。
type Links struct {
	FrontendURL string
}

// Verification はメール確認リンクを返す。
func (l Links) Verification(token string) string {
	return strings.TrimRight(l.FrontendURL, "/") + "/verifymail/" + token
}

// PasswordReset はパスワード再設定リンクを返す。
func (l Links) PasswordReset(token string) string {
	return strings.TrimRight(l.FrontendURL, "/") + "/reset-password/" + token
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendMailFunc は1通のメッセージを送信する。テストで差し替える。
type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender はSMTPサーバー経由でメールを送信する。
type SMTPSender struct {
	config   SMTPConfig
	links    Links
	sendMail sendMailFunc
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(config SMTPConfig, links Links) *SMTPSender {
	return &SMTPSender{
		config:   config,
		links:    links,
		sendMail: sendMail,
	}
}

// SendVerificationEmail はメール確認リンクを送信する。
func (s *SMTPSender) SendVerificationEmail(ctx context.Context, to, token string) error {
	body := "Please verify your email address by opening the link below.\r\n\r\n" +
		s.links.Verification(token) + "\r\n"
	return s.send(ctx, to, "Verify your email", body)
}

// SendPasswordResetEmail はパスワード再設定リンクを送信する。
func (s *SMTPSender) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	body := "A password reset was requested for your account. Open the link below to choose a new password.\r\n\r\n" +
		s.links.PasswordReset(token) + "\r\n"
	return s.send(ctx, to, "Reset your password", body)
}

func (s *SMTPSender) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := s.config.Host + ":" + strconv.Itoa(s.config.Port)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := s.sendMail(ctx, addr, auth, s.config.From, []string{to}, buildMessage(s.config.From, to, subject, body)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("failed to send mail: %w", ctxErr)
		}
		return fmt.Errorf("failed to send mail: %w", err)
	}

	slog.Info("mail sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// sendMail はsmtp.SendMailと同じ手順で送信する。
// 接続にはctxとタイムアウトを適用し、応答しないサーバーで送信処理が止まらないようにする。
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid smtp address %q: %w", addr, err)
	}

	dialer := net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	if err := conn.SetDeadline(time.Now().Add(smtpSendTimeout)); err != nil {
		conn.Close()
		return err
	}
	// キャンセル時は接続を閉じて読み書きを中断させる
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// buildMessage はRFC 5322形式のプレーンテキストメッセージを組み立てる。
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// LogSender はメールを送らずリンクをログに出力する。SMTP未設定の開発環境で使用する。
// トークンは先頭だけを残して伏せる。完全な値はデータベースで確認する。
type LogSender struct {
	logger *slog.Logger
	links  Links
}

// NewLogSender はLogSenderを生成する。loggerがnilの場合はslog.Default()を使用する。
func NewLogSender(logger *slog.Logger, links Links) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, links: links}
}

// SendVerificationEmail はメール確認リンクをログに出力する。
func (s *LogSender) SendVerificationEmail(ctx context.Context, to, token string) error {
	s.logger.InfoContext(ctx, "verification email",
		slog.String("to", to),
		slog.String("link", s.links.Verification(maskToken(token))),
	)
	return nil
}

// SendPasswordResetEmail はパスワード再設定リンクをログに出力する。
func (s *LogSender) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	s.logger.InfoContext(ctx, "password reset email",
		slog.String("to", to),
		slog.String("link", s.links.PasswordReset(maskToken(token))),
	)
	return nil
}

// maskToken はトークンの先頭4文字以外を伏せる。短いトークンは全て伏せる。
func maskToken(token string) string {
	const visible = 4
	if len(token) <= visible*2 {
		return "****"
	}
	return token[:visible] + "****"
}

// compile-time interface check
var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
