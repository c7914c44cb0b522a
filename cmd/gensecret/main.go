package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// 256 bits is enough for HS256
const defaultKeyLen = 32

func main() {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	length := fs.IntP("bytes", "n", defaultKeyLen, "Secret length in bytes")
	useBase64 := fs.Bool("base64", false, "Print secret base64 encoded instead of hex")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if *length < defaultKeyLen {
		fmt.Fprintf(os.Stderr, "secret should be at least %d bytes long\n", defaultKeyLen)
		os.Exit(2)
	}

	b := make([]byte, *length)

	_, err := rand.Read(b)
	if err != nil {
		fmt.Printf("error while generating secret key: %v", err)
		os.Exit(1)
	}

	if *useBase64 {
		fmt.Println(base64.StdEncoding.EncodeToString(b))
		return
	}
	fmt.Println(hex.EncodeToString(b))
}
