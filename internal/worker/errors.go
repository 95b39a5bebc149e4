package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize はワーカー数が 1 未満のときに返る
	ErrInvalidSize = errors.New("worker: pool size must be at least 1")
	// ErrPoolClosed はシャットダウン開始後の Execute / Submit で返る
	ErrPoolClosed = errors.New("worker: pool is shut down")
	// ErrQueueClosed は Close 後の Queue.Push で返る
	ErrQueueClosed = errors.New("worker: queue is closed")
	// ErrNilJob は nil のジョブ・タスクを投入したときに返る
	ErrNilJob = errors.New("worker: nil job")
)

// ConstructionError はプール生成時の設定エラー
type ConstructionError struct {
	Size int
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("worker: cannot create pool with %d workers: %v", e.Size, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// JobError はジョブ実行中の panic を表す
// Execute の呼び出し元には返らず、ログ・メトリクス・イベント・OnFailure に渡される
type JobError struct {
	WorkerID int
	Value    any
	Stack    []byte
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: job panicked: %v", workerName(e.WorkerID), e.Value)
}

// Unwrap は panic の値が error の場合それを返す
func (e *JobError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
