/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	err := Execute()
	if err == nil {
		return
	}

	var exit *exitError
	if !errors.As(err, &exit) || exit.err != nil {
		logrus.Error(err)
	}
	os.Exit(exitCode(err))
}
