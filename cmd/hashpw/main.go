package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const (
	minPasswordLength = 8
	hashEnv           = "ADMIN_PASSWORD_HASH"
	costEnv           = "HASHPW_COST"
)

var (
	errMismatch = errors.New("passwords do not match")
	errTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	errNoHash   = fmt.Errorf("no hash given and %s is not set", hashEnv)
)

// readPassword reads one line from the terminal without echo.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(syscall.Stdin))
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	var err error
	switch command := os.Args[1]; command {
	case "hash":
		err = runHash(os.Stdout, os.Stderr, bcryptCost())
	case "verify":
		hash := os.Getenv(hashEnv)
		if len(os.Args) > 2 {
			hash = os.Args[2]
		}
		err = runVerify(os.Stdout, os.Stderr, hash)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "challenge-media admin password tool")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: hashpw <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  hash            - Prompt for a password and print its bcrypt hash")
	fmt.Fprintln(w, "  verify [hash]   - Check a password against a hash")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  %s - Hash checked by verify when none is given\n", hashEnv)
	fmt.Fprintf(w, "  %s         - bcrypt cost (default: %d)\n", costEnv, bcrypt.DefaultCost)
}

// runHash prompts twice and writes the hash, alone on one line, to out.
// Prompts go to prompts so the hash can be captured with $(hashpw hash).
func runHash(out, prompts io.Writer, cost int) error {
	fmt.Fprint(prompts, "New Password: ")
	password, err := readPassword()
	fmt.Fprintln(prompts)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(prompts, "Confirm Password: ")
	confirm, err := readPassword()
	fmt.Fprintln(prompts)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if !bytes.Equal(password, confirm) {
		return errMismatch
	}
	if len(password) < minPasswordLength {
		return errTooShort
	}

	hash, err := bcrypt.GenerateFromPassword(password, cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Fprintln(out, string(hash))
	return nil
}

func runVerify(out, prompts io.Writer, hash string) error {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return errNoHash
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("not a bcrypt hash: %w", err)
	}

	fmt.Fprint(prompts, "Password: ")
	password, err := readPassword()
	fmt.Fprintln(prompts)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errMismatch
		}
		return err
	}
	fmt.Fprintln(out, "Password matches.")
	return nil
}

func bcryptCost() int {
	value := os.Getenv(costEnv)
	if value == "" {
		return bcrypt.DefaultCost
	}
	cost, err := strconv.Atoi(value)
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		fmt.Fprintf(os.Stderr, "Ignoring invalid %s=%q, using %d\n", costEnv, value, bcrypt.DefaultCost)
		return bcrypt.DefaultCost
	}
	return cost
}

// sanitizeCommand replaces every character outside [a-zA-Z0-9_-] with '_'
// before the command is echoed back.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
