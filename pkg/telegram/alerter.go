package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"prediction-trading/pkg/logger"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Alerter delivers engine alerts to the operations chat. Sends are rate
// limited globally so an alert storm cannot get the bot banned.
type Alerter struct {
	log           *logger.Logger
	bot           *telebot.Bot
	chatID        int64
	globalLimiter *rate.Limiter
	mu            sync.Mutex
}

func NewAlerter(log *logger.Logger, bot *telebot.Bot, chatID int64, maxPerSecond int) *Alerter {
	if maxPerSecond <= 0 {
		maxPerSecond = 1
	}
	return &Alerter{
		log:           log,
		bot:           bot,
		chatID:        chatID,
		globalLimiter: rate.NewLimiter(rate.Limit(maxPerSecond), maxPerSecond),
	}
}

// RaiseAlert satisfies the engine's alert sink contract.
func (a *Alerter) RaiseAlert(ctx context.Context, severity, component, message string, details map[string]interface{}) error {
	if err := a.globalLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("alert rate limit wait: %w", err)
	}

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("🚨 <b>%s</b> — %s\n\n", severity, component))
	sb.WriteString(fmt.Sprintf("<b>Message:</b> %s\n", message))

	if len(details) > 0 {
		sb.WriteString("\n<b>Details:</b>\n")
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" - %s: %v\n", k, details[k]))
		}
	}
	sb.WriteString(fmt.Sprintf("\n<i>%s</i>", time.Now().UTC().Format("2006-01-02 15:04:05 MST")))

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.bot.Send(telebot.ChatID(a.chatID), sb.String(), telebot.ModeHTML)
	if err != nil {
		a.log.Error("Failed to send alert", logger.ErrorField(err),
			logger.StringField("component", component),
			logger.StringField("severity", severity))
		return err
	}
	return nil
}

// LogForwarder adapts the alerter into a logger.AlertFunc so flagged error
// logs reach the same chat.
func (a *Alerter) LogForwarder() logger.AlertFunc {
	return func(level, message string, fields map[string]interface{}) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.RaiseAlert(ctx, level, "log", message, fields)
	}
}
