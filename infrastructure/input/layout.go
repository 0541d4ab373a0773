package input

// RussianLayoutRemap maps Cyrillic characters recorded under the Russian
// (ЙЦУКЕН) layout to the US-layout key on the same physical position, so a
// macro recorded on RU plays back correctly when the target expects US
// scan codes. Windows-specific in practice, but harmless elsewhere.
func RussianLayoutRemap() map[rune]string {
	return map[rune]string{
		'й': "q", 'ц': "w", 'у': "e", 'к': "r", 'е': "t",
		'н': "y", 'г': "u", 'ш': "i", 'щ': "o", 'з': "p",
		'х': "[", 'ъ': "]",
		'ф': "a", 'ы': "s", 'в': "d", 'а': "f", 'п': "g",
		'р': "h", 'о': "j", 'л': "k", 'д': "l", 'ж': ";",
		'э': "'",
		'я': "z", 'ч': "x", 'с': "c", 'м': "v", 'и': "b",
		'т': "n", 'ь': "m", 'б': ",", 'ю': ".",
		'ё': "`",
	}
}
