package seed

import (
	"strings"
	"unicode"
)

// LegalTopicName normalizes a raw classification label into a Kafka topic
// name: only letters survive, lowercased. "RRLyr" and "RR-Lyr*" both map
// to "rrlyr". The result may be empty when the label holds no letters.
func LegalTopicName(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
