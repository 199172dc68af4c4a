package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ValueType represents the type of a value on the stack
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
)

// Value represents a value on the stack
type Value struct {
	Type ValueType
	Str  string
	Int  int64
}

// Command represents a parsed command
type Command struct {
	Name string
	Args []Value
}

// Known commands
const (
	CmdClassify     = "classify"
	CmdSearch       = "search"
	CmdQuery        = "query"
	CmdLaunched     = "launched"
	CmdComplete     = "complete"
	CmdCompleteNext = "complete-next"
	CmdCompletePrev = "complete-prev"
	CmdReindex      = "reindex"
	CmdVisit        = "visit"
	CmdRecent       = "recent"
	CmdStatus       = "status"
)

var commands = []string{
	CmdClassify,
	CmdSearch,
	CmdQuery,
	CmdLaunched,
	CmdComplete,
	CmdCompleteNext,
	CmdCompletePrev,
	CmdReindex,
	CmdVisit,
	CmdRecent,
	CmdStatus,
}

// Parser parses Forth-style commands
type Parser struct {
	reader  *bufio.Reader
	header  string
	version string
}

// NewParser creates a new parser
func NewParser(reader io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(reader),
	}

	// Read header
	headerBytes := make([]byte, 5)
	if n, err := io.ReadFull(p.reader, headerBytes); err != nil || n != 5 {
		return nil, fmt.Errorf("invalid header")
	}

	p.header = string(headerBytes[:3])
	p.version = string(headerBytes[3:5])

	if p.header != "TXT" {
		return nil, fmt.Errorf("unsupported format: %s", p.header)
	}

	return p, nil
}

// Version returns the protocol version from the header
func (p *Parser) Version() string {
	return p.version
}

// ParseCommand parses the next command from input
func (p *Parser) ParseCommand() (*Command, error) {
	stack := make([]Value, 0)

	for {
		raw, err := p.reader.ReadString('\n')
		if err == io.EOF && raw == "" {
			return nil, io.EOF
		}
		if err != nil && err != io.EOF {
			return nil, err
		}

		// String values keep their trailing blanks, so only the line end goes
		line := strings.TrimRight(raw, "\r\n")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "#"):
			// Skip empty lines and comments
		case parseCommand(trimmed) != "":
			return &Command{Name: trimmed, Args: stack}, nil
		default:
			value, perr := parseValue(line)
			if perr != nil {
				return nil, fmt.Errorf("parse error: %v", perr)
			}
			stack = append(stack, value)
		}

		if err == io.EOF {
			// Values without a closing command are dropped
			return nil, io.EOF
		}
	}
}

func parseCommand(line string) string {
	for _, cmd := range commands {
		if line == cmd {
			return cmd
		}
	}
	return ""
}

func parseValue(line string) (Value, error) {
	line = strings.TrimLeft(line, " \t")

	// String value (prefixed with ")
	if after, ok := strings.CutPrefix(line, `"`); ok {
		return Value{Type: TypeString, Str: after}, nil
	}

	line = strings.TrimSpace(line)

	// Try parsing as integer
	if intVal, err := strconv.ParseInt(line, 10, 64); err == nil {
		return Value{Type: TypeInt, Int: intVal}, nil
	}

	return Value{}, fmt.Errorf("cannot parse value: %s", line)
}

// ReadAllCommands reads all commands from the parser
func (p *Parser) ReadAllCommands() ([]*Command, error) {
	var commands []*Command

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}

// String returns the value as it would be written on the wire
func (v Value) String() string {
	if v.Type == TypeInt {
		return strconv.FormatInt(v.Int, 10)
	}
	return `"` + v.Str
}

// Encode writes a request for name with args, without the TXT01 header
func Encode(w io.Writer, name string, args ...Value) error {
	var b strings.Builder
	for _, a := range args {
		if a.Type == TypeString && strings.ContainsAny(a.Str, "\r\n") {
			return fmt.Errorf("string argument contains a line break")
		}
		b.WriteString(a.String())
		b.WriteByte('\n')
	}
	b.WriteString(name)
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// Str makes a string value
func Str(s string) Value {
	return Value{Type: TypeString, Str: s}
}

// Int makes an integer value
func Int(i int64) Value {
	return Value{Type: TypeInt, Int: i}
}
