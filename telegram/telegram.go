package telegram

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"cloonapi/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"
)

var admins string = os.Getenv("TG_ADMINS") //separated by comma from env

var (
	botOnce sync.Once
	bot     *tgbotapi.BotAPI
)

func EscapeMessage(message string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(message)
}

func getBot() *tgbotapi.BotAPI {
	botOnce.Do(func() {
		token := os.Getenv("TG_TOKEN")
		if token == "" {
			fmt.Println("TG_TOKEN not set, telegram alerts disabled")
			return
		}
		b, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			fmt.Println("Error tg bot init:", err)
			return
		}
		bot = b
	})
	return bot
}

// AlertGenerationFailure pings the ops chat when a generation task dies
// after all fallbacks. Best effort, failures only log.
func AlertGenerationFailure(userId uint, taskId string, genErr error) {
	b := getBot()
	if b == nil {
		return
	}
	chatId, err := strconv.ParseInt(os.Getenv("TG_ALERT_CHAT_ID"), 10, 64)
	if err != nil {
		fmt.Println("TG_ALERT_CHAT_ID not set, skip alert")
		return
	}
	msg := tgbotapi.NewMessage(chatId, fmt.Sprintf("⚠️ generation failed\nuser: %v\ntask: %s\nerror: %s", userId, taskId, EscapeMessage(genErr.Error())))
	if _, err := b.Send(msg); err != nil {
		fmt.Println("Error sending tg alert:", err)
	}
}

// SendOpsMessage drops a free-form line into the ops chat. Best effort.
func SendOpsMessage(text string) {
	b := getBot()
	if b == nil {
		return
	}
	chatId, err := strconv.ParseInt(os.Getenv("TG_ALERT_CHAT_ID"), 10, 64)
	if err != nil {
		fmt.Println("TG_ALERT_CHAT_ID not set, skip message")
		return
	}
	if _, err := b.Send(tgbotapi.NewMessage(chatId, text)); err != nil {
		fmt.Println("Error sending tg message:", err)
	}
}

// RunOpsBot answers /stats in the admin chat with live counts. Runs in its
// own goroutine from the api main.
func RunOpsBot(db *gorm.DB) {
	b := getBot()
	if b == nil {
		return
	}
	if admins == "" {
		admins = "formality8765"
	}
	log.Printf("Authorized on account %s", b.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}
		from := update.SentFrom()
		if from == nil || !strings.Contains(admins, from.UserName) {
			continue
		}
		if update.Message.Command() == "stats" {
			var users, looks, items int64
			db.Model(&models.UserAccount{}).Count(&users)
			db.Model(&models.Look{}).Count(&looks)
			db.Model(&models.WardrobeItem{}).Count(&items)
			msg := tgbotapi.NewMessage(update.Message.Chat.ID, fmt.Sprintf("users: %v\nlooks: %v\nwardrobe items: %v", users, looks, items))
			b.Send(msg)
		}
	}
}
