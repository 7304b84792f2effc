// Package main vends the reader service, which serves pins, calendar feeds and uploaded thumbnails.
package main

import (
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := serve(); err != nil {
		log.WithError(err).Fatal("pin reader stopped")
	}
}
