// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"github.com/chzyer/readline"
)

func promptPassword(prompt string) ([]byte, error) {
	return readline.Password(prompt)
}
