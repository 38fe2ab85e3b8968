//go:build !pcap
// +build !pcap

package sim

import (
	"context"
	"fmt"
)

// ReplayPCAPFile is unavailable without the 'pcap' build tag.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, listener *StreamListener) error {
	return fmt.Errorf("PCAP replay not supported: rebuild with -tags pcap")
}

// PCAPSupported reports whether this binary was built with PCAP replay.
func PCAPSupported() bool { return false }
