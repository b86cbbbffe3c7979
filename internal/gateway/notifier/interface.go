package notifier

// TextNotifier 是 Events 层对发送端的最小依赖，测试用捕获型 sink
// 替换 Telegram 实现即可。
type TextNotifier interface {
	SendText(text string) error
}
