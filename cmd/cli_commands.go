package cmd

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/fzft/go-avocado/commands"
)

// commandDocs documentation info used for help command.
type commandDocs struct {
	name  string
	group string
	arity int
	flags []string
}

type CliHelpType uint8

const (
	CliHelpCommand CliHelpType = iota
	CliHelpGroup
)

type CliHelpEntry struct {
	tp   CliHelpType
	full string
	docs commandDocs
}

// helpEntries is built from the command table compiled into the binary, so
// help works without a connection.
func helpEntries() []CliHelpEntry {
	var entries []CliHelpEntry
	groups := map[string]bool{}
	for _, c := range commands.Commands() {
		docs := commandDocs{
			name:  strings.ToUpper(c.Name),
			group: c.Group.String(),
			arity: c.Arity,
			flags: flagNames(c),
		}
		entries = append(entries, CliHelpEntry{tp: CliHelpCommand, full: docs.name, docs: docs})
		groups[docs.group] = true
	}
	for g := range groups {
		entries = append(entries, CliHelpEntry{tp: CliHelpGroup, full: "@" + g, docs: commandDocs{name: g, group: g}})
	}
	slices.SortFunc(entries, func(a, b CliHelpEntry) int {
		return strings.Compare(a.full, b.full)
	})
	return entries
}

func flagNames(c *commands.RedisCommand) []string {
	var out []string
	for _, f := range []struct {
		flag commands.CommandFlags
		name string
	}{
		{commands.CmdWrite, "write"},
		{commands.CmdReadOnly, "readonly"},
		{commands.CmdAdmin, "admin"},
		{commands.CmdFast, "fast"},
		{commands.CmdBlocking, "blocking"},
	} {
		if c.Has(f.flag) {
			out = append(out, f.name)
		}
	}
	return out
}

func commandNames() []string {
	var names []string
	for _, e := range helpEntries() {
		if e.tp == CliHelpCommand {
			names = append(names, strings.ToLower(e.docs.name))
		}
	}
	return append(names, "help", "connect", "clear", "exit")
}

func arityText(arity int) string {
	if arity < 0 {
		return fmt.Sprintf("at least %d arguments", -arity-1)
	}
	return fmt.Sprintf("%d arguments", arity-1)
}

// cliOutputHelp prints help for "help", "help @group" or "help <command>".
func (cli *RedisCli) cliOutputHelp(argv []string) {
	entries := helpEntries()
	if len(argv) == 0 {
		fmt.Fprintln(cli.out, "avocado-cli")
		fmt.Fprintln(cli.out, `To get help about commands type:
      "help @<group>" to get a list of commands in <group>
      "help <command>" for help on <command>
      "help <tab>" to get a list of possible help topics
      "quit" to exit`)
		fmt.Fprint(cli.out, "\nGroups:")
		for _, e := range entries {
			if e.tp == CliHelpGroup {
				fmt.Fprintf(cli.out, " %s", e.full)
			}
		}
		fmt.Fprintln(cli.out)
		return
	}

	topic := strings.ToLower(argv[0])
	group := strings.HasPrefix(topic, "@")
	found := false
	for _, e := range entries {
		if e.tp != CliHelpCommand {
			continue
		}
		if (group && "@"+e.docs.group == topic) || (!group && strings.ToLower(e.docs.name) == topic) {
			found = true
			cli.cliOutputCommandHelp(e.docs)
		}
	}
	if !found {
		fmt.Fprintf(cli.out, "No help for %q\n", argv[0])
	}
}

func (cli *RedisCli) cliOutputCommandHelp(docs commandDocs) {
	fmt.Fprintf(cli.out, "\n  %s\n", docs.name)
	fmt.Fprintf(cli.out, "  arity: %s\n", arityText(docs.arity))
	fmt.Fprintf(cli.out, "  group: %s\n", docs.group)
	if len(docs.flags) > 0 {
		fmt.Fprintf(cli.out, "  flags: %s\n", strings.Join(docs.flags, ", "))
	}
}
