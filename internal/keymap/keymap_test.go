package keymap

import (
	"testing"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		code  uint32
		shift bool
		want  Key
	}{
		{"lowercase letter", evdev.KEY_A, false, Key{Action: ActionChar, Rune: 'a'}},
		{"uppercase letter", evdev.KEY_A, true, Key{Action: ActionChar, Rune: 'A'}},
		{"digit", evdev.KEY_7, false, Key{Action: ActionChar, Rune: '7'}},
		{"shifted digit", evdev.KEY_7, true, Key{Action: ActionChar, Rune: '&'}},
		{"space", evdev.KEY_SPACE, false, Key{Action: ActionChar, Rune: ' '}},
		{"punctuation", evdev.KEY_SEMICOLON, false, Key{Action: ActionChar, Rune: ';'}},
		{"shifted punctuation", evdev.KEY_SEMICOLON, true, Key{Action: ActionChar, Rune: ':'}},
		{"keypad digit ignores shift", evdev.KEY_KP4, true, Key{Action: ActionChar, Rune: '4'}},
		{"enter", evdev.KEY_ENTER, false, Key{Action: ActionSubmit}},
		{"keypad enter", evdev.KEY_KPENTER, false, Key{Action: ActionSubmit}},
		{"backspace", evdev.KEY_BACKSPACE, false, Key{Action: ActionBackspace}},
		{"escape", evdev.KEY_ESC, false, Key{Action: ActionEscape}},
		{"modifier ignored", evdev.KEY_LEFTSHIFT, false, Key{Action: ActionNone}},
		{"function key ignored", evdev.KEY_F1, true, Key{Action: ActionNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.code, tt.shift))
		})
	}
}
