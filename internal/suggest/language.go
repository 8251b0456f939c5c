package suggest

import (
	"sync"

	"github.com/pemistahl/lingua-go"
)

// guesses the language of a sentence
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

// lingua-backed detector; the model set is built on first use
type LinguaDetector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

func NewLanguageDetector() *LinguaDetector {
	return &LinguaDetector{}
}

func (d *LinguaDetector) Detect(text string) (string, bool) {
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			Build()
	})

	language, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return language.String(), true
}
