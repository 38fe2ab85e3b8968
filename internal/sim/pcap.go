//go:build pcap
// +build pcap

package sim

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReplayPCAPFile feeds captured sensor datagrams from a PCAP file into the
// listener's dispatch path. Used for store dry-runs without a simulator.
// This function is only available when building with the 'pcap' build tag.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, listener *StreamListener) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Printf("PCAP replay stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				log.Printf("PCAP replay complete: %d packets in %v", packetCount, time.Since(startTime))
				return nil
			}
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			packetCount++
			udp := udpLayer.(*layers.UDP)
			if err := listener.HandleDatagram(udp.Payload); err != nil {
				log.Printf("Error replaying sensor datagram: %v", err)
			}
		}
	}
}

// PCAPSupported reports whether this binary was built with PCAP replay.
func PCAPSupported() bool { return true }
