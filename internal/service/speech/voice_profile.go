package speech

import (
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var supportedVoices = map[string]struct{}{
	"alloy":   {},
	"ash":     {},
	"ballad":  {},
	"coral":   {},
	"echo":    {},
	"fable":   {},
	"onyx":    {},
	"nova":    {},
	"sage":    {},
	"shimmer": {},
	"verse":   {},
}

var outputFormats = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/opus",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/pcm",
}

var inputFormats = map[string]string{
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/mp4":   "mp4",
	"audio/m4a":   "m4a",
	"audio/x-m4a": "m4a",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/webm":  "webm",
	"audio/ogg":   "ogg",
	"audio/flac":  "flac",
	"video/webm":  "webm",
}

var inputExtensions = map[string]struct{}{
	"mp3": {}, "mp4": {}, "mpeg": {}, "mpga": {}, "m4a": {},
	"wav": {}, "webm": {}, "ogg": {}, "flac": {},
}

// ResolveVoice 返回可用的音色，未知音色回退到 fallback，再回退到 alloy。
func ResolveVoice(requested, fallback string) string {
	for _, candidate := range []string{requested, fallback} {
		normalized := strings.ToLower(strings.TrimSpace(candidate))
		if _, ok := supportedVoices[normalized]; ok {
			return normalized
		}
	}
	return string(openai.VoiceAlloy)
}

// ResolveOutputFormat 返回合成格式及其 Content-Type。
func ResolveOutputFormat(requested, fallback string) (openai.SpeechResponseFormat, string) {
	for _, candidate := range []string{requested, fallback} {
		normalized := strings.ToLower(strings.TrimSpace(candidate))
		if contentType, ok := outputFormats[normalized]; ok {
			return openai.SpeechResponseFormat(normalized), contentType
		}
	}
	return openai.SpeechResponseFormatMp3, outputFormats["mp3"]
}

// NormalizeInputFormat maps a format hint to a file extension Whisper accepts.
// Unknown hints default to webm, which is what browsers record.
func NormalizeInputFormat(format string) string {
	normalized := strings.ToLower(strings.TrimSpace(format))
	normalized = strings.TrimPrefix(normalized, ".")
	if _, ok := inputExtensions[normalized]; ok {
		return normalized
	}
	if base, _, found := strings.Cut(normalized, ";"); found {
		normalized = strings.TrimSpace(base)
	}
	if ext, ok := inputFormats[normalized]; ok {
		return ext
	}
	return "webm"
}

// DetectInputFormat derives the audio format of an upload from its filename,
// falling back to the declared content type.
func DetectInputFormat(filename, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if _, ok := inputExtensions[ext]; ok {
		return ext
	}
	return NormalizeInputFormat(contentType)
}
