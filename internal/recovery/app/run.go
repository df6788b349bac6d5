package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/openclave/reclaim/internal/recovery/flow"
)

// Run drives the flow interactively on stdin/stdout until it reaches a
// terminal state.
func (a *Application) Run() error {
	return a.run(os.Stdin, os.Stdout)
}

func (a *Application) run(in io.Reader, out io.Writer) error {
	c := a.controller
	scanner := bufio.NewScanner(in)

	prompt := func(label string) string {
		fmt.Fprintf(out, "%s: ", label)
		if !scanner.Scan() {
			return ""
		}
		return strings.TrimSpace(scanner.Text())
	}

	if c.Variant() != flow.VariantPasswordReset {
		choice := prompt("credential type [passkey/password] (passkey)")
		if strings.EqualFold(choice, "password") {
			c.SetAccountType(flow.AccountTypePassword)
		}
	}

	for c.CanSubmit() {
		switch c.Variant() {
		case flow.VariantNewAccountPasskey:
			c.SetPasskeyName(prompt("passkey name"))
			fmt.Fprintln(out, "touch your authenticator when it blinks")

		default:
			password := prompt("new password (empty to generate)")
			if password == "" {
				suggested, err := c.SuggestPassword()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "generated: %s\n", suggested)
			} else {
				c.SetPassword(password)
				c.SetPasswordConfirm(prompt("confirm password"))
			}
		}

		flowErr := c.Submit(context.Background())
		if flowErr == nil {
			break
		}

		fmt.Fprintf(out, "error: %s\n", flowErr.Message)
		for field, message := range flowErr.Fields {
			fmt.Fprintf(out, "  %s: %s\n", field, message)
		}
		if flowErr.Fatal() {
			return flowErr
		}
	}

	if c.State() != flow.StateSuccess {
		return fmt.Errorf("flow ended in state %s", c.State())
	}

	target := c.RedirectTarget()
	fmt.Fprintf(out, "done. continuing to %s in %s\n", target, flow.RedirectDelay)
	time.Sleep(flow.RedirectDelay)
	fmt.Fprintf(out, "-> %s\n", target)
	return nil
}
