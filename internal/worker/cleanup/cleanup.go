// Package cleanup は期限切れメール確認トークンの定期削除ジョブを提供する。
// 確認待ちユーザーのトークンのみを削除し、確認済みユーザーのトークンと
// パスワード再設定トークンは残す。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/finwise/internal/metrics"
)

// TokenPurger は期限切れトークンの削除を抽象化するインターフェース。
// repository.VerificationTokenRepository が満たす。
type TokenPurger interface {
	DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error)
}

// Job は期限切れメール確認トークンの削除ジョブ。
// 削除対象がない場合もエラーにならず、何度実行しても結果は同じ。
type Job struct {
	tokens  TokenPurger
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewJob は新しいJobを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewJob(tokens TokenPurger, logger *slog.Logger, collector metrics.MetricsCollector) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Job{
		tokens:  tokens,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// Run は期限切れトークンを1回削除する。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.tokens.DeleteExpiredPending(ctx, j.now())
	if err != nil {
		j.logger.Error("verification token cleanup failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}

	j.metrics.RecordTokensCleaned(deleted)
	j.logger.Info("verification token cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start はintervalごとにRunを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで戻らない。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("cleanup worker started", slog.Duration("interval", interval))

	// 失敗はRun内でログ済み。次の周期で再試行する
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
