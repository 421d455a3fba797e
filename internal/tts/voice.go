package tts

import "strings"

// ElevenLabs voice profiles. Voice selection follows a language-tag prefix
// rule: Spanish targets get the Spanish voice, everything else the default.
const (
	VoiceDefault = "21m00Tcm4TlvDq8ikWAM" // Rachel
	VoiceSpanish = "VR6AewLTigWG4xSOukaG" // Arnold, Spanish-tuned profile
)

// VoiceForLanguage maps a BCP-47 language tag to a synthesis voice ID.
func VoiceForLanguage(lang string) string {
	if strings.HasPrefix(strings.ToLower(lang), "es") {
		return VoiceSpanish
	}
	return VoiceDefault
}
