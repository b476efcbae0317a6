package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/migadu/sieveconn/client/managesieve"
)

// sieveSession is the part of *managesieve.Conn the probe drives.
type sieveSession interface {
	GetResponse() ([]string, error)
	Command(line string) ([]string, error)
	IsConnected() bool
}

// runSession prints the greeting, then sends every non-empty input line as a
// command and prints the reply. It returns nil when input ends, after LOGOUT,
// or when the server says BYE or hangs up.
func runSession(conn sieveSession, in io.Reader, out io.Writer) error {
	greeting, err := conn.GetResponse()
	if err != nil {
		return fmt.Errorf("reading greeting: %w", err)
	}
	printLines(out, greeting)
	if managesieve.ResponseStatus(greeting) == managesieve.StatusBYE {
		return nil
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply, err := conn.Command(line)
		printLines(out, reply)
		if err != nil {
			if errors.Is(err, managesieve.ErrTimeout) {
				fmt.Fprintln(out, "-- no response from server")
				continue
			}
			return fmt.Errorf("command %q: %w", strings.Fields(line)[0], err)
		}

		if strings.EqualFold(strings.Fields(line)[0], "LOGOUT") {
			return nil
		}
		if managesieve.ResponseStatus(reply) == managesieve.StatusBYE || !conn.IsConnected() {
			return nil
		}
	}
	return scanner.Err()
}

func printLines(out io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
