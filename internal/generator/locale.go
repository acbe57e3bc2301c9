package generator

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// locale supplies the word lists and formats for one market.
type locale struct {
	country      string
	firstNames   []string
	lastNames    []string
	cities       []string
	streets      []string
	companies    []string
	emailDomains []string
	phone        func(r *rand.Rand) string
	bban         func(r *rand.Rand) string
}

// Supported locale names.
const (
	LocaleRU = "ru_RU"
	LocaleUS = "en_US"
)

var locales = map[string]locale{
	LocaleRU: {
		country:      "Russia",
		firstNames:   []string{"Александр", "Дмитрий", "Максим", "Иван", "Артём", "Анна", "Мария", "Елена", "Ольга", "Татьяна", "Сергей", "Наталья"},
		lastNames:    []string{"Иванов", "Смирнов", "Кузнецов", "Попов", "Васильев", "Петров", "Соколов", "Михайлов", "Новиков", "Фёдоров", "Морозов", "Волков"},
		cities:       []string{"Москва", "Санкт-Петербург", "Новосибирск", "Екатеринбург", "Казань", "Нижний Новгород", "Самара", "Омск", "Ростов-на-Дону", "Уфа"},
		streets:      []string{"ул. Ленина", "ул. Садовая", "пр. Мира", "ул. Гагарина", "ул. Пушкина", "Набережная ул.", "ул. Советская"},
		companies:    []string{"ООО «Вектор»", "АО «Северсталь-Трейд»", "ИП Кузнецов", "ООО «Пятёрочка»", "ПАО «Магнит»", "ООО «Озон»", "АО «Леруа»", "ООО «Ромашка»"},
		emailDomains: []string{"mail.ru", "yandex.ru", "gmail.com", "rambler.ru"},
		phone: func(r *rand.Rand) string {
			return fmt.Sprintf("+7 (9%02d) %03d-%02d-%02d", r.IntN(100), r.IntN(1000), r.IntN(100), r.IntN(100))
		},
		bban: func(r *rand.Rand) string {
			return "40817810" + digits(r, 12)
		},
	},
	LocaleUS: {
		country:      "USA",
		firstNames:   []string{"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda", "David", "Elizabeth", "William", "Susan"},
		lastNames:    []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Wilson", "Anderson", "Taylor", "Moore"},
		cities:       []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia", "San Antonio", "San Diego", "Dallas", "Austin"},
		streets:      []string{"Main St", "Oak Ave", "Maple Dr", "Cedar Ln", "Park Blvd", "Washington St", "Lake Rd"},
		companies:    []string{"Acme Corp", "Globex LLC", "Initech", "Umbrella Inc", "Stark Industries", "Wayne Enterprises", "Hooli", "Soylent Co"},
		emailDomains: []string{"gmail.com", "yahoo.com", "outlook.com", "example.com"},
		phone: func(r *rand.Rand) string {
			return fmt.Sprintf("(%03d) %03d-%04d", 200+r.IntN(800), r.IntN(1000), r.IntN(10000))
		},
		bban: func(r *rand.Rand) string {
			return digits(r, 17)
		},
	},
}

func lookupLocale(name string) (locale, error) {
	if name == "" {
		name = LocaleRU
	}
	l, ok := locales[name]
	if !ok {
		return locale{}, fmt.Errorf("unsupported locale %q", name)
	}
	return l, nil
}

func digits(r *rand.Rand, n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(byte('0' + r.IntN(10)))
	}
	return b.String()
}

// translit maps Cyrillic letters to Latin for e-mail local parts.
var translit = strings.NewReplacer(
	"а", "a", "б", "b", "в", "v", "г", "g", "д", "d", "е", "e", "ё", "e", "ж", "zh",
	"з", "z", "и", "i", "й", "y", "к", "k", "л", "l", "м", "m", "н", "n", "о", "o",
	"п", "p", "р", "r", "с", "s", "т", "t", "у", "u", "ф", "f", "х", "kh", "ц", "ts",
	"ч", "ch", "ш", "sh", "щ", "shch", "ъ", "", "ы", "y", "ь", "", "э", "e", "ю", "yu", "я", "ya",
)

func emailLocal(first, last string) string {
	return translit.Replace(strings.ToLower(first)) + "." + translit.Replace(strings.ToLower(last))
}
