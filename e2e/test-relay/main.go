// Command test-relay calls a running token relay with a bearer token and
// prints what the relay saw and what the upstream returned.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	httpclient "github.com/astro-web3/token-relay/pkg/http"
)

type whoAmI struct {
	Subject       string   `json:"subject"`
	Authenticated bool     `json:"authenticated"`
	Authorities   []string `json:"authorities"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <jwt> [upstream/path] [server-addr]", os.Args[0])
	}

	token := os.Args[1]
	target := "orders/healthz"
	if len(os.Args) > 2 {
		target = os.Args[2]
	}
	serverAddr := "http://localhost:8080"
	if len(os.Args) > 3 {
		serverAddr = "http://localhost" + os.Args[3]
	}

	ctx := context.Background()

	var me whoAmI
	resp, err := httpclient.Get(ctx, serverAddr+"/api/v1/whoami",
		httpclient.WithAuthToken(token),
		httpclient.WithResult(&me),
	)
	if err != nil {
		log.Fatalf("whoami failed: %v", err)
	}
	if resp.IsError() {
		fmt.Printf("❌ whoami rejected\nStatus: %d\nBody: %s\n", resp.StatusCode(), resp.String())
		os.Exit(1)
	}

	fmt.Println("✅ Authenticated")
	fmt.Printf("   Subject: %s\n", me.Subject)
	fmt.Printf("   Authorities: %v\n", me.Authorities)

	resp, err = httpclient.Get(ctx, serverAddr+"/api/v1/relay/"+target, httpclient.WithAuthToken(token))
	if err != nil {
		log.Fatalf("relay failed: %v", err)
	}

	if resp.IsError() {
		fmt.Printf("\n❌ Relay to %s failed\n", target)
	} else {
		fmt.Printf("\n✅ Relayed to %s\n", target)
	}
	fmt.Printf("Status: %d\nBody: %s\n", resp.StatusCode(), resp.String())
}
