package kdf

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Dictionary is a word list used for passphrase generation, plus the
// separator (if any) joining consecutive words.
type Dictionary struct {
	Name  string
	Words []string
	Delim byte // 0 means words are concatenated with no separator
}

// StrengthCentibits reports the entropy contributed by one word from d,
// in hundredths of a bit: trunc(log2(|dict|) * 100).
func (d Dictionary) StrengthCentibits() int {
	return int(math.Trunc(math.Log2(float64(len(d.Words))) * 100))
}

// DictLatin is alphanumerics with visually confusable characters removed:
// lowercase l, uppercase B, D, I, O.
var DictLatin = Dictionary{
	Name: "Latin",
	Words: []string{
		"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "a", "b", "c", "d", "e", "f",
		"g", "h", "i", "j", "k", "m", "n", "o", "p", "q", "r", "s", "t", "u", "v", "w",
		"x", "y", "z", "A", "C", "E", "F", "G", "H", "J", "K", "L", "M", "N", "P", "Q",
		"R", "S", "T", "U", "V", "W", "X", "Y", "Z",
	},
}

// DictDigits is decimal digits only, for PIN-style passphrases.
var DictDigits = Dictionary{
	Name:  "PIN",
	Words: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
}

// DictCyrillic is Cyrillic alphanumerics with confusable characters
// removed: б, ё, л, ъ, ь, В, Ё, З, Л, О, Ъ, Ь.
var DictCyrillic = Dictionary{
	Name: "Cyrillic",
	Words: []string{
		"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "а", "в", "г", "д", "е", "ж",
		"з", "и", "й", "к", "м", "н", "о", "п", "р", "с", "т", "у", "ф", "х", "ц", "ч",
		"ш", "щ", "ы", "э", "ю", "я", "А", "Б", "Г", "Д", "Е", "Ж", "И", "Й", "К", "М",
		"Н", "П", "Р", "С", "Т", "У", "Ф", "Х", "Ц", "Ч", "Ш", "Щ", "Ы", "Э", "Ю", "Я",
	},
}

// GeneratePassphrase draws n words from d using a CSPRNG, joined by d's
// delimiter if any. Unlike the original's `rand() % len(dict)`, the index
// draw here uses crypto/rand.Int, which is unbiased regardless of how
// len(dict) divides the RNG's range.
func GeneratePassphrase(d Dictionary, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("kdf: passphrase length must be positive, got %d", n)
	}
	var b strings.Builder
	limit := big.NewInt(int64(len(d.Words)))
	for i := 0; i < n; i++ {
		if d.Delim != 0 && i > 0 {
			b.WriteByte(d.Delim)
		}
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("kdf: rng: %w", err)
		}
		b.WriteString(d.Words[idx.Int64()])
	}
	return b.String(), nil
}
