package prompter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads answers from in and writes labels to out.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	// fd is the terminal used for hidden input, or -1 when in is not a
	// terminal and passwords are read as plain lines.
	fd int
}

// New returns a prompter on stdin/stdout.
func New() *Prompter {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fd = -1
	}
	return &Prompter{in: bufio.NewReader(os.Stdin), out: os.Stdout, fd: fd}
}

// NewWithIO returns a prompter that never touches the terminal.
func NewWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
}

// String prompts user for a string input
func (p *Prompter) String(label string) (string, error) {
	fmt.Fprint(p.out, label)
	return p.line()
}

// Password prompts user for a password (hidden input)
func (p *Prompter) Password(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if p.fd < 0 {
		return p.line()
	}

	bytepw, err := term.ReadPassword(p.fd)
	if err != nil {
		return "", err
	}
	fmt.Fprintln(p.out)
	return string(bytepw), nil
}

// Confirm prompts user for yes/no confirmation
func (p *Prompter) Confirm(label string) (bool, error) {
	fmt.Fprint(p.out, label+" (y/n) ")
	input, err := p.line()
	if err != nil {
		return false, err
	}

	response := strings.ToLower(input)
	return response == "y" || response == "yes", nil
}

func (p *Prompter) line() (string, error) {
	input, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
