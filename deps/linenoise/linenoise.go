// Package linenoise wraps liner with the history and screen helpers the
// interactive client needs.
package linenoise

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"
)

type LineNoise struct {
	*liner.State
	out io.Writer
}

// New puts the terminal in raw mode; Close restores it.
func New() *LineNoise {
	ln := &LineNoise{State: liner.NewLiner(), out: os.Stdout}
	ln.SetCtrlCAborts(true)
	return ln
}

// SetWordsCompleter completes the first word of the line with words.
func (ln *LineNoise) SetWordsCompleter(words []string) {
	ln.SetCompleter(func(line string) (c []string) {
		if line == "" {
			return nil
		}
		lower := bytes.ToLower([]byte(line))
		for _, w := range words {
			if bytes.HasPrefix([]byte(w), lower) {
				c = append(c, w)
			}
		}
		return c
	})
}

func (ln *LineNoise) HistoryLoad(filepath string) error {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return err
	}
	_, err = ln.ReadHistory(bytes.NewReader(content))
	return err
}

func (ln *LineNoise) HistorySave(filepath string) error {
	var buf bytes.Buffer
	_, err := ln.WriteHistory(&buf)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, buf.Bytes(), 0644)
}

func (ln *LineNoise) ClearScreen() error {
	_, err := fmt.Fprint(ln.out, "\x1b[H\x1b[2J")
	return err
}
