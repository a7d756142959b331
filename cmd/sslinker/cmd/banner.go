package cmd

import (
	"fmt"
	"io"
)

const banner = `
  ____ ____  _     _       _
 / ___/ ___|| |   (_)_ __ | | _____ _ __
 \___ \___ \| |   | | '_ \| |/ / _ \ '__|
  ___) |__) | |___| | | | |   <  __/ |
 |____/____/|_____|_|_| |_|_|\_\___|_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Private CA and nginx virtual hosts - Version %s\x1b[0m\n\n", Version)
}
