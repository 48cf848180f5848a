// Command hashkey prints the ADMIN_KEY_HASH value for an admin key read from stdin.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/AnshRaj112/bazaar-backend/pkg/utils"
)

func main() {
	fmt.Fprint(os.Stderr, "admin key: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatalf("read key: %v", err)
	}
	key := strings.TrimRight(line, "\r\n")
	if key == "" {
		log.Fatal("empty key")
	}
	hash, err := utils.HashSecret(key)
	if err != nil {
		log.Fatalf("hash key: %v", err)
	}
	fmt.Println(hash)
}
