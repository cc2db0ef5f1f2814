package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// readLine reads one line and trims surrounding whitespace. A final line
// without a newline is still returned; io.EOF is reported only when nothing
// was read.
func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetSimpleText shows prompt on its own line followed by a "> " marker and
// reads the answer from reader.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	return readLine(reader)
}

// GetPassword reads a secret from the terminal without echo. The caller owns
// the returned slice and should wipe it with common.WipeByteArray.
func GetPassword(prompt string, w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	// echo is off, so the user's Enter never reached the screen
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", strings.ToLower(prompt), err)
	}
	return pw, nil
}
