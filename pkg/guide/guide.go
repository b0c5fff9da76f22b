// Package guide answers visitor questions about a monument from its catalogue record.
package guide

import (
	"fmt"
	"strconv"
	"strings"

	"bharatvista/pkg/model"
)

const factExcerptRunes = 100

// topic is one keyword-routed answer. Topics are tried in order; the first whose
// keywords appear in the question answers it.
type topic struct {
	keywords []string
	answer   func(m *model.Monument) string
}

var topics = []topic{
	{keywords: []string{"built", "who", "creator"}, answer: origin},
	{keywords: []string{"where", "location"}, answer: whereabouts},
	{keywords: []string{"style", "architecture"}, answer: architecture},
	{keywords: []string{"fact", "interesting"}, answer: facts},
}

// Greeting is the guide's opening line for a monument.
func Greeting(m *model.Monument) string {
	return fmt.Sprintf("Namaste! I am your Heritage Guide. I can tell you all about the history and architecture of the %s. What would you like to know?", m.Name)
}

// Answer routes a question by keyword. Matching is case-insensitive; a question
// that matches nothing gets a general answer about the monument.
func Answer(m *model.Monument, question string) string {
	q := strings.ToLower(question)
	for _, t := range topics {
		for _, kw := range t.keywords {
			if strings.Contains(q, kw) {
				return t.answer(m)
			}
		}
	}
	return fmt.Sprintf("That's an interesting question about the %s. It is a %s known for being %s. Is there something specific about its history or architecture you'd like to explore?",
		m.Name, m.Category, m.Description)
}

func origin(m *model.Monument) string {
	built := "constructed"
	if y := strings.TrimSpace(m.BuiltYear); y != "" && !strings.EqualFold(y, "unknown") {
		built = "built around " + y
	}
	first, _, _ := strings.Cut(m.History, ".")
	return fmt.Sprintf("%s was %s during the %s. %s.", m.Name, built, m.Dynasty, strings.TrimSpace(first))
}

func whereabouts(m *model.Monument) string {
	return fmt.Sprintf("You can find it in %s, %s. It's located at coordinates %s, %s.",
		m.City, m.State, coord(m.Location.Lat), coord(m.Location.Lng))
}

func architecture(m *model.Monument) string {
	return fmt.Sprintf("The architectural style is characteristic of the %s. %s.", m.Dynasty, strings.TrimSuffix(m.Description, "."))
}

func facts(m *model.Monument) string {
	features := "its grand design"
	if len(m.Highlights) > 0 {
		titles := make([]string, len(m.Highlights))
		for i, h := range m.Highlights {
			titles[i] = h.Title
		}
		features = strings.Join(titles, ", ")
	}
	excerpt := []rune(m.History)
	if len(excerpt) > factExcerptRunes {
		excerpt = excerpt[:factExcerptRunes]
	}
	return fmt.Sprintf("Did you know? Some of its key features include %s. %s...", features, string(excerpt))
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
