package reap

import (
	"fmt"
	"strings"
)

// topCommands is the completion word list, kept in sync with the help
// table in cli.go.
var topCommands = []string{
	"install", "remove", "search", "upgrade", "update", "local", "info",
	"pin", "unpin", "rollback", "history", "tap", "trust", "security",
	"aur", "gpg", "audit", "rate", "deps", "hook", "profile", "config",
	"backup", "upgrade-check", "orphan", "clean", "doctor", "analytics",
	"perf", "logs", "completion", "version", "help",
}

var subCommands = map[string][]string{
	"tap":      {"add", "remove", "list", "enable", "disable", "sync", "search"},
	"trust":    {"score", "scan-all", "stats"},
	"security": {"audit", "scan-all", "stats", "update-rules"},
	"aur":      {"fetch", "edit", "deps"},
	"gpg":      {"import", "show", "check", "verify", "refresh", "list", "remove", "set-keyserver"},
	"hook":     {"list", "add", "remove", "log"},
	"profile":  {"list", "show", "create", "switch", "delete"},
	"config":   {"show", "get", "set", "reset"},
	"backup":   {"push", "list", "restore"},
	"perf":     {"warm-cache", "parallel-search", "parallel-fetch", "cache-stats", "clear-cache"},
	"deps":     {"tree", "check"},
}

// Completion prints a completion script for the named shell.
func Completion(shell string) error {
	switch shell {
	case "bash":
		printBashCompletion()
	case "zsh":
		printZshCompletion()
	case "fish":
		printFishCompletion()
	default:
		return stepError(KindConfigError, "completion", "",
			fmt.Errorf("unsupported shell %q (bash, zsh, fish)", shell))
	}
	return nil
}

func printBashCompletion() {
	fmt.Printf(`_reap() {
    local cur prev
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"
    if [[ $COMP_CWORD -eq 1 ]]; then
        COMPREPLY=($(compgen -W "%s" -- "$cur"))
        return
    fi
    case "$prev" in
`, strings.Join(topCommands, " "))
	for _, cmd := range sortedSubKeys() {
		fmt.Printf("        %s) COMPREPLY=($(compgen -W \"%s\" -- \"$cur\")); return ;;\n",
			cmd, strings.Join(subCommands[cmd], " "))
	}
	fmt.Print(`    esac
    COMPREPLY=($(compgen -W "$(pacman -Ssq "$cur" 2>/dev/null | head -50)" -- "$cur"))
}
complete -F _reap reap
`)
}

func printZshCompletion() {
	fmt.Printf(`#compdef reap
_reap() {
    local -a commands
    commands=(%s)
    if (( CURRENT == 2 )); then
        _describe 'command' commands
        return
    fi
    case "$words[2]" in
`, strings.Join(topCommands, " "))
	for _, cmd := range sortedSubKeys() {
		fmt.Printf("        %s) compadd %s; return ;;\n", cmd, strings.Join(subCommands[cmd], " "))
	}
	fmt.Print(`    esac
    compadd $(pacman -Ssq "$words[CURRENT]" 2>/dev/null | head -50)
}
_reap
`)
}

func printFishCompletion() {
	for _, cmd := range topCommands {
		fmt.Printf("complete -c reap -n '__fish_use_subcommand' -a %s\n", cmd)
	}
	for _, cmd := range sortedSubKeys() {
		for _, sub := range subCommands[cmd] {
			fmt.Printf("complete -c reap -n '__fish_seen_subcommand_from %s' -a %s\n", cmd, sub)
		}
	}
}

func sortedSubKeys() []string {
	keys := make([]string, 0, len(subCommands))
	for _, cmd := range topCommands {
		if _, ok := subCommands[cmd]; ok {
			keys = append(keys, cmd)
		}
	}
	return keys
}
