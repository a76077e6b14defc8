// The viewer command serves archived self-play games over HTTP.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tmarkus/hexzero/viewer"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	archiveDir := flag.String("archive-dir", "data/archive", "Directory of archive parquet files")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	hub := viewer.NewLiveHub()
	srv := viewer.NewServer(*archiveDir, hub)
	if err := srv.ListenAndServe(*addr); err != nil {
		log.Fatal().Err(err).Msg("viewer exited")
	}
}
