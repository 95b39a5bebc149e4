package worker

import "sync"

// Queue は全ワーカーで共有するジョブキュー（MPMC, FIFO）
//
// capacity が 0 のときは上限なしで Push はブロックしない。
// capacity > 0 のときは満杯の間 Push が呼び出し元をブロックする。
// Close 後もキューに残ったタスクは Pop で最後まで取り出せる。
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []Task
	capacity int
	closed   bool
}

// NewQueue は新しいキューを作成する（capacity 0 で無制限）
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push はタスクを末尾に追加する
func (q *Queue) Push(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.capacity > 0 && len(q.items) >= q.capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, task)
	q.notEmpty.Signal()
	return nil
}

// Pop はタスクを先頭から取り出す
// キューが空なら到着かクローズまでブロックし、クローズ済みかつ空なら false を返す
func (q *Queue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	task := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	if q.capacity > 0 {
		q.notFull.Signal()
	}
	return task, true
}

// Close は以降の Push を拒否し、待機中の Pop/Push を起こす（冪等）
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len は未取得のタスク数を返す
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap は容量を返す（0 は無制限）
func (q *Queue) Cap() int {
	return q.capacity
}

// Closed はクローズ済みかどうかを返す
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
