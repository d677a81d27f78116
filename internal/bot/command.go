package bot

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	cmdGenerate = "generate_code"
	cmdStart    = "start"
	cmdHelp     = "help"
)

type command struct {
	name string
	arg  string
}

// parseCommand splits "/name[@bot] arg". Only the command word is NFKC
// normalized, so a fullwidth slash or letters still match while the argument
// reaches the pipeline untouched. Commands addressed to a different bot are
// rejected when botName is known.
func parseCommand(text, botName string) (command, bool) {
	text = strings.TrimSpace(text)
	head, arg := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, arg = text[:i], strings.TrimSpace(text[i:])
	}

	head = norm.NFKC.String(head)
	name, ok := strings.CutPrefix(head, "/")
	if !ok || name == "" {
		return command{}, false
	}
	if n, target, found := strings.Cut(name, "@"); found {
		if botName != "" && !strings.EqualFold(target, strings.TrimPrefix(botName, "@")) {
			return command{}, false
		}
		name = n
	}
	return command{name: strings.ToLower(name), arg: arg}, true
}
