package server

import "unicode"

// SafeSessionName returns a tmux-safe session name for a server.
// tmux reserves '.' and ':' in targets, so anything outside [A-Za-z0-9_-] becomes '-'.
func SafeSessionName(prefix, serverName string) string {
	base := prefix + serverName
	out := make([]rune, 0, len(base))
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "gameserver"
	}
	return string(out)
}
