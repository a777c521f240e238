package tts

// ElevenLabsVoices maps preset names to ElevenLabs voice IDs. The
// presets are voices that read clearly over 8 kHz phone audio.
var ElevenLabsVoices = map[string]string{
	"charlotte": "XB0fDUnXU5powFXDhCwa", // British female, warm
	"rachel":    "21m00Tcm4TlvDq8ikWAM", // American female, calm
	"sarah":     "EXAVITQu4vr4xnSDxMaL", // American female, soft
	"josh":      "TxGEqnHWrfWFTfGW9XjX", // American male, deep
	"adam":      "pNInz6obpgDQGcFmaJgB", // American male, deep
}

// DefaultElevenLabsVoice is the preset used when no voice is configured.
const DefaultElevenLabsVoice = "charlotte"

// ResolveElevenLabsVoice maps a preset name to its voice ID. Unknown
// names pass through unchanged on the assumption they are already IDs.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name
}
