// ABOUTME: Operator input broker for interactive credential prompts.
// ABOUTME: Serializes console prompts so concurrent bots don't interleave questions.

package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Kind identifies what a prompt is asking for.
type Kind int

const (
	KindLogin Kind = iota
	KindPassword
	KindGuardCode
	KindTwoFactorCode
	KindPhoneNumber
	KindSMSCode
	KindParentalPIN
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindPassword:
		return "password"
	case KindGuardCode:
		return "guard code sent to your email"
	case KindTwoFactorCode:
		return "two-factor code"
	case KindPhoneNumber:
		return "phone number"
	case KindSMSCode:
		return "SMS code"
	case KindParentalPIN:
		return "parental PIN"
	}
	return "input"
}

// Prompter asks the operator for credential material on behalf of a bot.
// Implementations must be safe for concurrent use from multiple bot loops.
type Prompter interface {
	// Request blocks until the operator supplies a value.
	Request(botName string, kind Kind) string

	// Announce surfaces a value the operator must record, such as a
	// one-time revocation code.
	Announce(botName, label, value string)
}

// Console prompts on stdin/stdout. A single mutex serializes prompts across
// bots; a blocked bot waits its turn rather than mixing output.
type Console struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
	fd  int
}

// NewConsole creates a console prompter reading from stdin.
func NewConsole() *Console {
	return &Console{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
		fd:  int(os.Stdin.Fd()),
	}
}

// Request asks the operator for the given kind of input. Passwords are read
// without echo when stdin is a terminal.
func (c *Console) Request(botName string, kind Kind) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	prompt := color.New(color.FgYellow)
	prompt.Fprintf(c.out, "<%s> ", botName)
	fmt.Fprintf(c.out, "Please enter your %s: ", kind)

	if kind == KindPassword && term.IsTerminal(c.fd) {
		value, err := term.ReadPassword(c.fd)
		fmt.Fprintln(c.out)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(value))
	}

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

// Announce prints a value the operator must keep, highlighted so it is not
// lost in surrounding log output.
func (c *Console) Announce(botName, label, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := color.New(color.FgRed, color.Bold)
	header.Fprintf(c.out, "<%s> %s: ", botName, label)
	fmt.Fprintln(c.out, value)
}
