package usart

// Code is a stable error identifier. It is a string newtype, comparable,
// allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	ErrAlreadyStarted  Code = "already_started"
	ErrNotStarted      Code = "not_started"
	ErrBusy            Code = "busy"
	ErrInvalidArgument Code = "invalid_argument"
	ErrInvalidBaudRate Code = "invalid_baud_rate"
	ErrInvalidFormat   Code = "invalid_format"
	ErrAliased         Code = "aliased_peripheral"
)

// Error keeps the operation and a message next to a Code. It matches its Code
// with errors.Is.
type Error struct {
	C   Code
	Op  string
	Msg string
}

func (e *Error) Error() string {
	s := "usart: " + e.Op + ": " + string(e.C)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *Error) Code() Code { return e.C }

func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

func newError(c Code, op, msg string) error {
	return &Error{C: c, Op: op, Msg: msg}
}

// CodeOf extracts a Code from err, or "" for nil and foreign errors.
func CodeOf(err error) Code {
	switch e := err.(type) {
	case nil:
		return ""
	case Code:
		return e
	case interface{ Code() Code }:
		return e.Code()
	}
	return ""
}
