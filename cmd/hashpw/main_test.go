package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// stubPasswords makes readPassword return each input in turn.
func stubPasswords(t *testing.T, inputs ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func() ([]byte, error) {
		if len(inputs) == 0 {
			return nil, io.EOF
		}
		next := inputs[0]
		inputs = inputs[1:]
		return []byte(next), nil
	}
}

func TestRunHash(t *testing.T) {
	stubPasswords(t, "correct horse", "correct horse")

	var out, prompts bytes.Buffer
	if err := runHash(&out, &prompts, bcrypt.MinCost); err != nil {
		t.Fatalf("runHash: %v", err)
	}

	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")); err != nil {
		t.Errorf("printed hash does not match the password: %v", err)
	}
	if strings.Contains(out.String(), "Password") {
		t.Error("prompts must not be written to the hash output")
	}
	if !strings.Contains(prompts.String(), "Confirm Password") {
		t.Errorf("prompts = %q", prompts.String())
	}
}

func TestRunHashRejects(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []string
		wantErr error
	}{
		{"mismatch", []string{"correct horse", "correct h0rse"}, errMismatch},
		{"too short", []string{"short", "short"}, errTooShort},
		{"read failure", nil, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubPasswords(t, tt.inputs...)

			var out bytes.Buffer
			err := runHash(&out, io.Discard, bcrypt.MinCost)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("runHash() = %v, want %v", err, tt.wantErr)
			}
			if out.Len() != 0 {
				t.Errorf("nothing should be printed on failure, got %q", out.String())
			}
		})
	}
}

func TestRunVerify(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error
	}{
		{"match", string(hash), "correct horse", nil},
		{"match with surrounding whitespace", " " + string(hash) + "\n", "correct horse", nil},
		{"wrong password", string(hash), "battery staple", errMismatch},
		{"no hash", "", "correct horse", errNoHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubPasswords(t, tt.password)

			var out bytes.Buffer
			err := runVerify(&out, io.Discard, tt.hash)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("runVerify() = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !strings.Contains(out.String(), "matches") {
				t.Errorf("out = %q", out.String())
			}
		})
	}
}

func TestRunVerifyRejectsNonBcryptHash(t *testing.T) {
	stubPasswords(t, "whatever")
	if err := runVerify(io.Discard, io.Discard, "plaintext"); err == nil {
		t.Error("expected error for a value that is not a bcrypt hash")
	}
}

func TestBcryptCost(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", bcrypt.DefaultCost},
		{"12", 12},
		{"2", bcrypt.DefaultCost},
		{"99", bcrypt.DefaultCost},
		{"high", bcrypt.DefaultCost},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(costEnv, tt.value)
			if got := bcryptCost(); got != tt.want {
				t.Errorf("bcryptCost() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hash", "hash"},
		{"verify-all", "verify-all"},
		{"rm -rf /", "rm_-rf__"},
		{"\x1b[31mred", "__31mred"},
		{"ünïcode", "_n_code"},
		{"", ""},
		{"a;b|c&d`e$(f)", "a_b_c_d_e__f_"},
	}
	for _, tt := range tests {
		if got := sanitizeCommand(tt.in); got != tt.want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)

	for _, want := range []string{"hash", "verify", hashEnv, costEnv} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("usage does not mention %s", want)
		}
	}
}
