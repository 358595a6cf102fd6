package bot

import (
	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/navigation"
)

const (
	textAskQuestion  = "❓ Пожалуйста, задайте ваш вопрос.\n\nКак только вы отправите сообщение, я постараюсь ответить вам."
	textCheckProduct = "🔍 Пожалуйста, введите название продукта, который Вас интересует:"
	textCancelled    = "Диалог прерван. Введите /start заново."
	textUnknownCmd   = "Неизвестная команда. Введите /start, чтобы открыть меню."
	textAnswerOff    = "⚠️ Сервис ответов на вопросы временно недоступен. Попробуйте позже."
	textAnswerFailed = "⚠️ Не удалось получить ответ на ваш вопрос. Попробуйте позже."
	textMoodFailed   = "⚠️ Не удалось сохранить ответ. Попробуйте позже."
	textNoAccess     = "⛔ У вас нет доступа к этой команде.\nВаш ID: %s"
	textStatsFailed  = "⚠️ Не удалось получить статистику. Попробуйте позже."
	textSpecialist   = "Вопрос по продукту от пользователя %s (%s):\n\"%s\""

	textBroadcastEnterText = "📝 Введите текст сообщения для рассылки:"
	textBroadcastEnterTime = "🕒 Введите время отправки в формате 'ГГГГ-ММ-ДД ЧЧ:ММ'\nНапример: 2024-04-05 15:30"
	textBroadcastBadTime   = "❌ Неверный формат времени.\n" + textBroadcastEnterTime
	textBroadcastPast      = "❌ Время должно быть в будущем.\n" + textBroadcastEnterTime
	textBroadcastEmpty     = "❌ Текст рассылки не может быть пустым. Введите текст сообщения:"
	textBroadcastTooLong   = "❌ Текст рассылки слишком длинный. Введите более короткий текст:"
	textBroadcastCreated   = "✅ Рассылка создана!\n\n📝 Текст: %s\n🕒 Время отправки: %s"
	textBroadcastFailed    = "⚠️ Не удалось сохранить рассылку. Попробуйте позже."
	textBroadcastCancelled = "❌ Создание рассылки отменено."

	textAdminHelp = "👑 Команды администратора:\n\n" +
		"Статистика:\n" +
		"📊 /stats_recipes - статистика по рецептам\n" +
		"😊 /stats_health - статистика по настроению\n" +
		"👥 /stats_users - статистика по пользователям\n\n" +
		"Рассылки:\n" +
		"📬 /broadcast - создать новую рассылку\n" +
		"❌ /cancel - отменить создание рассылки"

	broadcastTimeLayout = "2006-01-02 15:04"
)

// Commands understood by the bot.
const (
	CmdStart        = "/start"
	CmdCancel       = "/cancel"
	CmdAdmin        = "/admin"
	CmdStatsHelp    = "/stats_help"
	CmdBroadcast    = "/broadcast"
	CmdStatsRecipes = "/stats_recipes"
	CmdStatsHealth  = "/stats_health"
	CmdStatsUsers   = "/stats_users"
)

var (
	menuButton   = models.Button{Label: "🔙 В меню", Token: navigation.TokenBackToMenu}
	cancelButton = models.Button{Label: "Отмена", Token: navigation.TokenBackToMenu}
	startButton  = models.Button{Label: "Главное меню", Token: navigation.TokenStart}
)

var recipeTypeNames = map[string]string{
	"breakfast": "Завтраки",
	"poldnik":   "Полдники",
	"lunch":     "Обеды",
	"dinner":    "Ужины",
	"drinks":    "Напитки",
}

var moodNames = map[models.Mood]string{
	models.MoodHappy:   "😊 Хорошее",
	models.MoodNeutral: "😐 Нейтральное",
	models.MoodSad:     "😢 Грустное",
}
