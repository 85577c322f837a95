package config

import (
	"fmt"
	"syscall"

	"golang.org/x/term"
)

// PromptPassword reads a password from the terminal without echoing it,
// the same shape as the teacher's internal/mysql.PromptPassword, reused
// here for `config init`'s interactive scaffolding and for `serve` when
// backend.connection_string is given without credentials.
func PromptPassword(prompt string) string {
	if prompt == "" {
		prompt = "Backend password: "
	}
	fmt.Print(prompt)
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(password)
}
