package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _                _     _           _    
 | | ___  __ _  __| | __| | ___  ___| | __
 | |/ _ \/ _` + "`" + ` |/ _` + "`" + ` |/ _` + "`" + ` |/ _ \/ __| |/ /
 | |  __/ (_| | (_| | (_| |  __/\__ \   < 
 |_|\___|\__,_|\__,_|\__,_|\___||___/_|\_\
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Lead capture service - Version %s\x1b[0m\n\n", Version)
}
