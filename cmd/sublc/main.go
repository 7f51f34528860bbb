// Command sublc compiles a textual stencil-bundle spec file into a
// binary artifact runnable by sublrun, mirroring the teacher's sublc's
// role as the "front end" of the two-stage compile/run pipeline.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sbl8/stencilcore/compiler"
)

func main() {
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Println("sublc - stencil bundle compiler")
		return
	}

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <src.stencil> <out.compiled>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	srcFile, outFile := args[0], args[1]

	src, err := os.ReadFile(srcFile)
	if err != nil {
		log.Fatalf("failed to read %s: %v", srcFile, err)
	}

	if err := compiler.WriteCompiled(src, outFile); err != nil {
		log.Fatalf("compilation failed: %v", err)
	}

	fmt.Printf("Successfully compiled %s -> %s\n", srcFile, outFile)
}
