package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	ShutdownComplete   string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	APIServerError     string
	SystemMetricsInit  string

	// Queue
	QueueDirReady    string
	QueueInitFailed  string
	PendingOnStartup string
	QueueListFailed  string
	WorkerStarted    string
	WorkerQueueFull  string
	WorkerTaskPanic  string
	AuditWriteFailed string

	// Execution
	TradingModeSelected  string
	ExecutionReady       string
	ExecutionDegraded    string
	ExecutionUnavailable string
	StrategyBuildFailed  string
	BrokerClientFailed   string
	OCRDisabled          string
	OCRClientFailed      string

	// Notifications
	NotifierEnabled  string
	NotifierDisabled string
	NotifyFailed     string

	// Chat intake
	BotStarted        string
	BotDisabled       string
	BotPollFailed     string
	BotDownloadFailed string
	BotUnauthorized   string
	BotWelcome        string
	BotHelp           string
	BotStatus         string
	BotUnknown        string
	BotBusy           string

	// Replies, sent back to the chat that posted the signal
	ReplyParseFailed   string
	ReplyTextUnparsed  string
	ReplyInvalidSignal string
	ReplyQueued        string
	ReplyExecuted      string
	ReplyFailed        string
	ReplyParseOnly     string
	ReplyImageFailed   string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting signal bridge...",
	ConfigLoaded:       "Config loaded (Port: %s, mode: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	ShutdownComplete:   "Shutdown complete.",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	APIServerError:     "API server error: %v",
	SystemMetricsInit:  "System metrics initialized",

	// Queue
	QueueDirReady:    "Signal queue directory: %s",
	QueueInitFailed:  "Failed to init signal queue: %v",
	PendingOnStartup: "%d signal(s) still waiting for the terminal agent",
	QueueListFailed:  "Failed to list pending signals: %v",
	WorkerStarted:    "Signal worker started (queue size %d)",
	WorkerQueueFull:  "Signal queue full, dropping task %s",
	WorkerTaskPanic:  "Signal task %s panicked: %v",
	AuditWriteFailed: "Failed to write audit row: %v",

	// Execution
	TradingModeSelected:  "Trading mode: %s",
	ExecutionReady:       "Execution backend ready: %s",
	ExecutionDegraded:    "DEGRADED: %s unavailable, signals go to %s",
	ExecutionUnavailable: "No execution backend available, signals will be parsed only",
	StrategyBuildFailed:  "Failed to build %s strategy: %v",
	BrokerClientFailed:   "Failed to create broker client: %v",
	OCRDisabled:          "OCR_ADDR not set, image intake disabled",
	OCRClientFailed:      "Failed to create OCR client: %v",

	// Notifications
	NotifierEnabled:  "Chat notifications enabled",
	NotifierDisabled: "Bot token or chat id missing, chat notifications disabled",
	NotifyFailed:     "Failed to send chat notification: %v",

	// Chat intake
	BotStarted:        "Telegram intake listening on chat %s",
	BotDisabled:       "Bot token or allowed channel missing, Telegram intake disabled",
	BotPollFailed:     "Telegram getUpdates failed: %v",
	BotDownloadFailed: "Telegram image download failed: %v",
	BotUnauthorized:   "Ignoring image from unauthorized chat %s",
	BotWelcome:        "🤖 Telegram Trading Bot\n\nSend trading screenshots to the configured channel and the bot will:\n1. Extract text from the image\n2. Parse trade information\n3. Execute or queue the trade\n\nStatus: ✅ Configured",
	BotHelp:           "📖 Help & Commands\n\n/start - Welcome message\n/help - This help message\n/status - Execution mode and queue status\n\nRequired in images: symbol (e.g. #XAUUSD), Buy/Sell, entry zone, stop loss, targets.\n\nExample:\n#XAUUSD Sell Setup\nSelling Zone: 3345 - 3351\nStop Loss: 3367\nTarget 1: 3312.430\nTarget 2: 3295.385",
	BotStatus:         "🔍 Bot Status\n\n• Mode: %s\n• Version: %s\n• Uptime: %s\n• Queued tasks: %d\n• Pending signals: %d\n• Image intake: %s",
	BotUnknown:        "❓ Unknown command. Use /help to see available commands.",
	BotBusy:           "⏳ Too many signals in progress, please resend shortly",

	// Replies
	ReplyParseFailed:   "❌ Could not parse trade signal from image",
	ReplyTextUnparsed:  "❌ Could not parse trade signal from text",
	ReplyInvalidSignal: "❌ Invalid trade signal detected",
	ReplyQueued:        "✅ Trade signal saved successfully!\n📁 Signal ID: %s\n💾 Waiting for MT5 EA to execute...",
	ReplyExecuted:      "✅ Trade executed successfully!\n%s",
	ReplyFailed:        "❌ Trade execution failed: %s",
	ReplyParseOnly:     "⚠️ Signal parsed but no execution backend is available",
	ReplyImageFailed:   "❌ Error processing image",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "正在启动信号桥...",
	ConfigLoaded:       "配置已加载 (端口: %s, 模式: %s)",
	UsingDBPath:        "使用数据库路径: %s",
	ServerListening:    "服务器监听于 :%s",
	ShuttingDown:       "正在优雅关闭...",
	ShutdownComplete:   "关闭完成。",
	ConfigLoadFailed:   "加载配置失败: %v",
	DBInitFailed:       "初始化数据库失败: %v",
	DBMigrationsFailed: "应用数据库迁移失败: %v",
	APIServerError:     "API 服务器错误: %v",
	SystemMetricsInit:  "系统指标已初始化",

	// Queue
	QueueDirReady:    "信号队列目录: %s",
	QueueInitFailed:  "初始化信号队列失败: %v",
	PendingOnStartup: "%d 个信号仍在等待终端执行",
	QueueListFailed:  "列出待处理信号失败: %v",
	WorkerStarted:    "信号处理器已启动 (队列大小 %d)",
	WorkerQueueFull:  "信号队列已满，丢弃任务 %s",
	WorkerTaskPanic:  "信号任务 %s 发生 panic: %v",
	AuditWriteFailed: "写入审计记录失败: %v",

	// Execution
	TradingModeSelected:  "交易模式: %s",
	ExecutionReady:       "执行后端就绪: %s",
	ExecutionDegraded:    "降级运行: %s 不可用，信号改由 %s 处理",
	ExecutionUnavailable: "没有可用的执行后端，信号仅做解析",
	StrategyBuildFailed:  "创建 %s 策略失败: %v",
	BrokerClientFailed:   "创建经纪商客户端失败: %v",
	OCRDisabled:          "未设置 OCR_ADDR，图片接收已禁用",
	OCRClientFailed:      "创建 OCR 客户端失败: %v",

	// Notifications
	NotifierEnabled:  "聊天通知已启用",
	NotifierDisabled: "缺少机器人令牌或聊天 ID，聊天通知已禁用",
	NotifyFailed:     "发送聊天通知失败: %v",

	// Chat intake
	BotStarted:        "Telegram 接收已启动，监听聊天 %s",
	BotDisabled:       "缺少机器人令牌或允许的频道，Telegram 接收已禁用",
	BotPollFailed:     "Telegram getUpdates 失败: %v",
	BotDownloadFailed: "Telegram 图片下载失败: %v",
	BotUnauthorized:   "忽略来自未授权聊天 %s 的图片",
	BotWelcome:        "🤖 Telegram 交易机器人\n\n将交易截图发送到配置的频道，机器人将：\n1. 从图片中提取文字\n2. 解析交易信息\n3. 执行或排队交易\n\n状态: ✅ 已配置",
	BotHelp:           "📖 帮助与命令\n\n/start - 欢迎信息\n/help - 帮助信息\n/status - 执行模式与队列状态\n\n图片需包含: 品种 (如 #XAUUSD)、买/卖、入场区间、止损、目标价。\n\n示例:\n#XAUUSD Sell Setup\nSelling Zone: 3345 - 3351\nStop Loss: 3367\nTarget 1: 3312.430\nTarget 2: 3295.385",
	BotStatus:         "🔍 机器人状态\n\n• 模式: %s\n• 版本: %s\n• 运行时间: %s\n• 排队任务: %d\n• 待执行信号: %d\n• 图片接收: %s",
	BotUnknown:        "❓ 未知命令，使用 /help 查看可用命令。",
	BotBusy:           "⏳ 处理中的信号过多，请稍后重发",

	// Replies
	ReplyParseFailed:   "❌ 无法从图片解析交易信号",
	ReplyTextUnparsed:  "❌ 无法从文本解析交易信号",
	ReplyInvalidSignal: "❌ 检测到无效的交易信号",
	ReplyQueued:        "✅ 交易信号已保存！\n📁 信号 ID: %s\n💾 等待 MT5 EA 执行...",
	ReplyExecuted:      "✅ 交易执行成功！\n%s",
	ReplyFailed:        "❌ 交易执行失败: %s",
	ReplyParseOnly:     "⚠️ 信号已解析，但没有可用的执行后端",
	ReplyImageFailed:   "❌ 处理图片时出错",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
