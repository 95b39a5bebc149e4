package worker

// Task はワーカーが一度だけ実行する作業単位
// 戻り値はなく、結果や失敗の通知はタスク自身の責務
type Task interface {
	Run()
}

// Job は関数を Task として扱うためのアダプタ
type Job func()

// Run はジョブを実行する
func (j Job) Run() {
	j()
}
