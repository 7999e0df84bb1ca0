// Package interpret turns free-text prompts into device commands or
// schedules.
//
// An Interpreter asks a Backend (Gemini function calling) first and falls
// back to a keyword parser for English and Vietnamese when no backend is
// configured or the backend fails or answers without a usable call. The
// fallback is lossy: it knows on/off/toggle, takes the device name as the
// words after the action keyword and reads a clock time after "at", "lúc"
// or "vào".
//
// Assistant routes an interpretation to the command dispatcher or the
// schedule service with origin "natural-language".
package interpret
