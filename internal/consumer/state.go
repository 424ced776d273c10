package consumer

// State 消息处理状态机状态
//
// 成功路径：Received → Validated → Transformed → Detected → Persisted。
// 任一状态遇到不可恢复错误转入 DeadLettered；存储瞬时失败经
// Retrying 有限重试。终态为 Persisted 和 DeadLettered。
type State string

const (
	StateReceived     State = "received"
	StateValidated    State = "validated"
	StateTransformed  State = "transformed"
	StateDetected     State = "detected"
	StatePersisted    State = "persisted"
	StateRetrying     State = "retrying"
	StateDeadLettered State = "dead_lettered"
)
