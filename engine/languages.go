package engine

import "slices"

// LanguageAuto asks the backend to detect the spoken language.
const LanguageAuto = "auto"

// WhisperLanguages are the language codes understood by Whisper models.
var WhisperLanguages = []string{
	"af", "am", "ar", "as", "az", "ba", "be", "bg", "bn", "bo", "br", "bs", "ca", "cs", "cy",
	"da", "de", "el", "en", "es", "et", "eu", "fa", "fi", "fo", "fr", "gl", "gu", "ha", "haw",
	"he", "hi", "hr", "ht", "hu", "hy", "id", "is", "it", "ja", "jw", "ka", "kk", "km", "kn",
	"ko", "la", "lb", "ln", "lo", "lt", "lv", "mg", "mi", "mk", "ml", "mn", "mr", "ms", "mt",
	"my", "ne", "nl", "nn", "no", "oc", "pa", "pl", "ps", "pt", "ro", "ru", "sa", "sd", "si",
	"sk", "sl", "sn", "so", "sq", "sr", "su", "sv", "sw", "ta", "te", "tg", "th", "tk", "tl",
	"tr", "tt", "uk", "ur", "uz", "vi", "yi", "yo", "zh",
}

// IsAuto reports whether lang requests detection.
func IsAuto(lang string) bool {
	return lang == "" || lang == LanguageAuto
}

// SupportsLanguage reports whether b accepts lang.
func SupportsLanguage(b Backend, lang string) bool {
	return IsAuto(lang) || slices.Contains(b.SupportedLanguages(), lang)
}
