// Package utils
package utils

import (
	"errors"
	"fmt"

	"github.com/vedhavyas/go-subkey/v2"
)

// Wrap joins msg with the text of every non-nil error. The result does not
// unwrap; use fmt.Errorf with %w where callers need errors.Is.
func Wrap(msg string, errs ...error) error {
	fullerr := msg
	for _, err := range errs {
		if err == nil {
			continue
		}
		fullerr = fmt.Sprintf("%s: %s", fullerr, err)
	}
	return errors.New(fullerr)
}

func PublicKeyToSS58(pub []byte, network uint16) string {
	return subkey.SS58Encode(pub, network)
}
