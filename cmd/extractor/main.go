// Command extractor walks a directory tree and submits its files to an
// ingestion service, checkpointing progress so interrupted runs resume.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("extractor failed")
		os.Exit(1)
	}
}
