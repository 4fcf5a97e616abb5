// Command netcrawler discovers network topology by walking CDP/LLDP
// neighbor tables over SSH, bounded by an allow-list policy.
package main

import (
	"log"
	"os"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
