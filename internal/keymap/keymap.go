// Package keymap translates evdev keycodes from wl_keyboard into the
// characters and actions the password prompt understands. A US layout
// table keeps the prompt working even when no XKB keymap is loaded.
package keymap

import (
	evdev "github.com/gvalkov/golang-evdev"
)

// Action classifies a decoded key.
type Action int

const (
	// ActionNone is an ignored key (modifiers, function keys, ...).
	ActionNone Action = iota
	// ActionChar appends Key.Rune to the password.
	ActionChar
	// ActionBackspace removes the last character.
	ActionBackspace
	// ActionEscape clears the whole password.
	ActionEscape
	// ActionSubmit starts an authentication attempt.
	ActionSubmit
)

// Key is one decoded keypress.
type Key struct {
	Action Action
	Rune   rune
}

type entry struct {
	base  rune
	shift rune
}

// US layout. The shift column carries the shifted symbol; letters are
// handled separately so caps behaves like shift for them.
var printable = map[uint32]entry{
	evdev.KEY_1: {'1', '!'},
	evdev.KEY_2: {'2', '@'},
	evdev.KEY_3: {'3', '#'},
	evdev.KEY_4: {'4', '$'},
	evdev.KEY_5: {'5', '%'},
	evdev.KEY_6: {'6', '^'},
	evdev.KEY_7: {'7', '&'},
	evdev.KEY_8: {'8', '*'},
	evdev.KEY_9: {'9', '('},
	evdev.KEY_0: {'0', ')'},

	evdev.KEY_MINUS:      {'-', '_'},
	evdev.KEY_EQUAL:      {'=', '+'},
	evdev.KEY_LEFTBRACE:  {'[', '{'},
	evdev.KEY_RIGHTBRACE: {']', '}'},
	evdev.KEY_BACKSLASH:  {'\\', '|'},
	evdev.KEY_SEMICOLON:  {';', ':'},
	evdev.KEY_APOSTROPHE: {'\'', '"'},
	evdev.KEY_GRAVE:      {'`', '~'},
	evdev.KEY_COMMA:      {',', '<'},
	evdev.KEY_DOT:        {'.', '>'},
	evdev.KEY_SLASH:      {'/', '?'},
	evdev.KEY_SPACE:      {' ', ' '},

	evdev.KEY_KP0:        {'0', '0'},
	evdev.KEY_KP1:        {'1', '1'},
	evdev.KEY_KP2:        {'2', '2'},
	evdev.KEY_KP3:        {'3', '3'},
	evdev.KEY_KP4:        {'4', '4'},
	evdev.KEY_KP5:        {'5', '5'},
	evdev.KEY_KP6:        {'6', '6'},
	evdev.KEY_KP7:        {'7', '7'},
	evdev.KEY_KP8:        {'8', '8'},
	evdev.KEY_KP9:        {'9', '9'},
	evdev.KEY_KPDOT:      {'.', '.'},
	evdev.KEY_KPPLUS:     {'+', '+'},
	evdev.KEY_KPMINUS:    {'-', '-'},
	evdev.KEY_KPASTERISK: {'*', '*'},
	evdev.KEY_KPSLASH:    {'/', '/'},
}

var letters = map[uint32]rune{
	evdev.KEY_A: 'a', evdev.KEY_B: 'b', evdev.KEY_C: 'c', evdev.KEY_D: 'd',
	evdev.KEY_E: 'e', evdev.KEY_F: 'f', evdev.KEY_G: 'g', evdev.KEY_H: 'h',
	evdev.KEY_I: 'i', evdev.KEY_J: 'j', evdev.KEY_K: 'k', evdev.KEY_L: 'l',
	evdev.KEY_M: 'm', evdev.KEY_N: 'n', evdev.KEY_O: 'o', evdev.KEY_P: 'p',
	evdev.KEY_Q: 'q', evdev.KEY_R: 'r', evdev.KEY_S: 's', evdev.KEY_T: 't',
	evdev.KEY_U: 'u', evdev.KEY_V: 'v', evdev.KEY_W: 'w', evdev.KEY_X: 'x',
	evdev.KEY_Y: 'y', evdev.KEY_Z: 'z',
}

// Decode maps an evdev keycode to a prompt action. shift reflects the shift
// modifier state from the last wl_keyboard modifiers event.
func Decode(code uint32, shift bool) Key {
	switch code {
	case evdev.KEY_ENTER, evdev.KEY_KPENTER:
		return Key{Action: ActionSubmit}
	case evdev.KEY_BACKSPACE:
		return Key{Action: ActionBackspace}
	case evdev.KEY_ESC:
		return Key{Action: ActionEscape}
	}

	if r, ok := letters[code]; ok {
		if shift {
			r = r - 'a' + 'A'
		}
		return Key{Action: ActionChar, Rune: r}
	}
	if e, ok := printable[code]; ok {
		r := e.base
		if shift {
			r = e.shift
		}
		return Key{Action: ActionChar, Rune: r}
	}
	return Key{Action: ActionNone}
}
