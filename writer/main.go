// Package main vends the writer service, which accepts new pins and admin edits.
package main

import (
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := serve(); err != nil {
		log.WithError(err).Fatal("error running writer")
	}
}
