// Command discover browses the local network for advertised devices
// and prints what it finds. Useful for checking that the mDNS
// announcement is visible from another machine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sbussiso/OpenSentry/internal/mdns"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "how long to listen for announcements")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	found := 0
	err := mdns.Browse(ctx, func(f mdns.Found) {
		found++
		addrs := make([]string, 0, len(f.Addrs))
		for _, ip := range f.Addrs {
			addrs = append(addrs, ip.String())
		}
		fmt.Printf("%s\n", f.Instance)
		fmt.Printf("  host: %s port: %d addrs: %s\n", f.Host, f.Port, strings.Join(addrs, ", "))
		fmt.Printf("  device: %s (%s) version: %s auth: %s caps: %s\n",
			f.TXT["name"], f.TXT["id"], f.TXT["ver"], f.TXT["auth"], f.TXT["caps"])
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "discover:", err)
		os.Exit(1)
	}
	if found == 0 {
		fmt.Println("no devices found")
	}
}
