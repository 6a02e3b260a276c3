package app

// Key binding constants used in handleKey.
const (
	KeyQuit         = "q"
	KeyQuitUpper    = "Q"
	KeyCtrlC        = "ctrl+c"
	KeySpace        = " "
	KeyRepeat       = "r"
	KeyStopSpeaking = "s"
	KeyAutoContinue = "a"
	KeyNewSession   = "n"
	KeyClearSession = "x"
	KeyType         = "t"
	KeyEnter        = "enter"
	KeyEsc          = "esc"
	KeyBackspace    = "backspace"
)
