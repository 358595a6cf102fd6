package navigation

import (
	"fmt"

	"github.com/BTreeMap/pyoots/internal/catalog"
	"github.com/BTreeMap/pyoots/internal/models"
)

const (
	labelBack     = "Назад"
	labelMainMenu = "Главное меню"
	labelCancel   = "Отмена"
	labelRate     = "⭐ Оценить"
	labelDrinks   = "Напитки"
	labelRecipes  = "К рецептам"

	// TextWelcome is the root menu greeting.
	TextWelcome = "👋 Привет! Я ваш помощник, созданный специально для помощи людям с синдромом Жильбера.\n\n" +
		"Я могу помочь Вам с рекомендациями по продуктам питания. Пожалуйста, используйте кнопку ниже, чтобы узнать, " +
		"можно ли есть определенный продукт. Также Вы можете посмотреть собранные мной вкусные здоровые рецепты.\n\n" +
		"✨ Вы также можете задать мне любой вопрос в чате, и я постараюсь помочь!"

	textAbout = "🤖 «PYOOTS» — интеллектуальный помощник, созданный специально для людей с синдромом Жильбера.\n\n" +
		"🏥 Он поддерживает пользователей в повседневном уходе за здоровьем и делает образ жизни комфортнее.\n\n" +
		"💙 Бот применяет искусственный интеллект для полезных рекомендаций, " +
		"а со временем его возможности будут расширяться."

	textChooseMeal    = "Выберите прием пищи:"
	textExpired       = "⌛ Этот выбор устарел. Вернитесь назад и выберите снова."
	textUnknownChoice = "Неизвестная команда. Вернитесь в главное меню."
	textRatingFailed  = "Произошла ошибка при сохранении оценки. Попробуйте позже."
)

var mealNames = map[catalog.Meal]string{
	catalog.Breakfast: "завтрак",
	catalog.Poldnik:   "полдник",
	catalog.Lunch:     "обед",
	catalog.Dinner:    "ужин",
	catalog.Drinks:    "напитки",
}

func textChooseCategory(meal catalog.Meal) string {
	return fmt.Sprintf("Выберите категорию (%s):", mealNames[meal])
}

func textNoCategories(meal catalog.Meal) string {
	return fmt.Sprintf("Не найдено ни одной категории (%s).", mealNames[meal])
}

func textEmptyCategory(category string) string {
	return fmt.Sprintf("В категории «%s» нет блюд.", category)
}

func textChooseItem(category string) string {
	return fmt.Sprintf("Выберите блюдо из категории «%s»:", category)
}

func textItemGone(name string) string {
	return fmt.Sprintf("Рецепт «%s» больше недоступен.", name)
}

func textRatePrompt(name string) string {
	return fmt.Sprintf("👍 Отличный выбор! Оцените \"%s\" от 1 до 5.\nВаша оценка поможет нам улучшить рекомендации! 😉", name)
}

func textRatingThanks(name string, v int) string {
	return fmt.Sprintf("⭐ Спасибо! Вы оценили \"%s\" на %d. Это очень поможет нам улучшить рекомендации!", name, v)
}

// RootScreen renders the main menu.
func RootScreen() Screen { return rootScreen() }

func rootScreen() Screen {
	return Screen{
		State: StateRoot,
		Text:  TextWelcome,
		Buttons: []models.Button{
			{Label: "О нас", Token: TokenAbout},
			{Label: "Проверить продукт", Token: TokenCheckProduct},
			{Label: "Здоровые рецепты", Token: TokenHealthyRecipes},
			{Label: "Задать вопрос", Token: TokenAskQuestion},
		},
	}
}

func aboutScreen() Screen {
	return Screen{
		State:   StateAbout,
		Text:    textAbout,
		Buttons: []models.Button{{Label: "🔙 Назад", Token: TokenBackToMenu}},
	}
}

func mealTypeScreen() Screen {
	return Screen{
		State: StateMealTypeList,
		Text:  textChooseMeal,
		Buttons: []models.Button{
			{Label: "Завтраки", Token: string(catalog.Breakfast)},
			{Label: "Полдники", Token: string(catalog.Poldnik)},
			{Label: "Обеды", Token: string(catalog.Lunch)},
			{Label: "Ужины", Token: string(catalog.Dinner)},
			{Label: labelBack, Token: TokenBackToMenu},
		},
	}
}

func notFoundScreen(text string, buttons []models.Button) Screen {
	return Screen{State: StateNotFound, Text: text, Buttons: buttons}
}

func ratingFailedScreen() Screen {
	return Screen{
		State: StateRatingFailed,
		Text:  textRatingFailed,
		Buttons: []models.Button{
			{Label: labelRecipes, Token: TokenHealthyRecipes},
			{Label: labelMainMenu, Token: TokenStart},
		},
	}
}
