package synode

// Signal is a control-flow sentinel. An agent whose before interceptor,
// operator or operation produces a Signal stops and returns its input.
type Signal string

const (
	SignalHalt  Signal = "HALT"
	SignalSkip  Signal = "SKIP"
	SignalPass  Signal = "PASS"
	SignalBreak Signal = "BREAK"
	SignalExit  Signal = "EXIT"
	SignalError Signal = "ERROR"
)

func (s Signal) String() string { return string(s) }

// IsSignal reports whether v is a Signal.
func IsSignal(v any) (Signal, bool) {
	switch s := v.(type) {
	case Signal:
		return s, true
	case *Signal:
		if s != nil {
			return *s, true
		}
	}
	return "", false
}
