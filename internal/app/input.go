package app

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// promptPassphrase prints a prompt to w and reads the vault passphrase from
// the terminal without echo. A newline is printed after the read to keep the
// output tidy. The returned bytes are wiped by the keyring once consumed.
func promptPassphrase(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Vault passphrase: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}
