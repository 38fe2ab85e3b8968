// Command stream-replay feeds a captured sensor stream back through the
// datagram dispatch path and reports what it carried. Useful for
// checking a bridge capture without a simulator attached. Requires a
// binary built with -tags pcap.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/scene.report/internal/sim"
)

var (
	file    = flag.String("file", "", "PCAP capture to replay (required)")
	port    = flag.Int("port", 2369, "UDP port the capture was recorded on")
	sensors = flag.String("sensors", "", "Comma-separated sensor actor IDs to subscribe (required)")
)

func main() {
	flag.Parse()
	if *file == "" || *sensors == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !sim.PCAPSupported() {
		log.Fatal("this binary was built without PCAP support, rebuild with -tags pcap")
	}

	listener := sim.NewStreamListener(sim.StreamListenerConfig{Address: fmt.Sprintf(":%d", *port)})

	type tally struct {
		clouds int
		points int
	}
	counts := map[sim.ActorID]*tally{}
	for _, field := range strings.Split(*sensors, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
		if err != nil {
			log.Fatalf("bad sensor id %q: %v", field, err)
		}
		t := &tally{}
		counts[sim.ActorID(id)] = t
		listener.Listen(sim.ActorID(id), func(s sim.LidarSample) {
			t.clouds++
			t.points += s.PointCount()
		})
	}

	if err := sim.ReplayPCAPFile(context.Background(), *file, *port, listener); err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	for id, t := range counts {
		log.Printf("sensor %d: %d clouds, %d points", id, t.clouds, t.points)
	}
	datagrams, bytes, clouds, dropped, _ := listener.Stats().GetAndReset()
	log.Printf("totals: %d datagrams, %d bytes, %d clouds, %d dropped", datagrams, bytes, clouds, dropped)
}
